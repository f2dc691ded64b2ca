package meta

import (
	"fmt"

	"github.com/franz/speclib/internal/util"
)

// Constraint restricts one metadata field in a search: an exact match
// or an inclusive range.
type Constraint struct {
	lo, hi  Value
	isRange bool
}

// Exact matches spectra whose field equals v
func Exact(v Value) Constraint {
	return Constraint{lo: v, hi: v}
}

// Between matches spectra whose field lies in [a, b]. The bounds may be
// given in either order.
func Between(a, b Value) Constraint {
	return Constraint{lo: a, hi: b, isRange: true}
}

// IsRange reports whether c is a range constraint
func (c Constraint) IsRange() bool { return c.isRange }

// Value returns the operand of an exact constraint
func (c Constraint) Value() Value { return c.lo }

// Bounds returns the range bounds ordered as (min, max). Both bounds
// must be valid and of the same kind.
func (c Constraint) Bounds() (Value, Value, error) {
	if err := c.lo.Validate(); err != nil {
		return Value{}, Value{}, err
	}
	if err := c.hi.Validate(); err != nil {
		return Value{}, Value{}, err
	}
	order, err := c.lo.Compare(c.hi)
	if err != nil {
		return Value{}, Value{}, util.Precondition("range bounds %v and %v must share a kind", c.lo, c.hi)
	}
	if order > 0 {
		return c.hi, c.lo, nil
	}
	return c.lo, c.hi, nil
}

func (c Constraint) String() string {
	if c.isRange {
		return fmt.Sprintf("[%v, %v]", c.lo, c.hi)
	}
	return fmt.Sprintf("= %v", c.lo)
}

// Query maps field names to constraints; all constraints must hold
type Query map[string]Constraint

// Normalized returns q with every field name passed through FieldName.
// Two fields that normalize to the same name are an error.
func (q Query) Normalized() (Query, error) {
	out := make(Query, len(q))
	spelling := make(map[string]string, len(q))
	for name, c := range q {
		key, err := normalizedKey(name, spelling)
		if err != nil {
			return nil, err
		}
		out[key] = c
	}
	return out, nil
}
