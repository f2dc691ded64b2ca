// Package meta defines the metadata values attached to spectra and the
// constraints used to search them.
package meta

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/franz/speclib/internal/util"
)

// Kind tells which physical column a Value is stored in
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNum
	KindStr
)

func (k Kind) String() string {
	switch k {
	case KindNum:
		return "number"
	case KindStr:
		return "string"
	default:
		return "invalid"
	}
}

// Value is a metadata value: either a number or a string, never both.
// The zero Value is invalid and is rejected by every write.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Num returns a numeric Value
func Num(f float64) Value {
	return Value{kind: KindNum, num: f}
}

// Str returns a string Value
func Str(s string) Value {
	return Value{kind: KindStr, str: s}
}

// FromAny converts Go scalars into a Value
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case Value:
		return v, nil
	case float64:
		return Num(v), nil
	case float32:
		return Num(float64(v)), nil
	case int:
		return Num(float64(v)), nil
	case int32:
		return Num(float64(v)), nil
	case int64:
		return Num(float64(v)), nil
	case uint32:
		return Num(float64(v)), nil
	case uint64:
		return Num(float64(v)), nil
	case string:
		return Str(v), nil
	default:
		return Value{}, util.Precondition("unsupported metadata value type %T", x)
	}
}

// Kind returns the value's kind
func (v Value) Kind() Kind { return v.kind }

// IsNum reports whether v is numeric
func (v Value) IsNum() bool { return v.kind == KindNum }

// IsStr reports whether v is a string
func (v Value) IsStr() bool { return v.kind == KindStr }

// Validate rejects the zero Value and NaN, which no engine can compare
func (v Value) Validate() error {
	switch v.kind {
	case KindNum:
		if math.IsNaN(v.num) {
			return util.Precondition("metadata value is NaN")
		}
		return nil
	case KindStr:
		return nil
	default:
		return util.Precondition("metadata value is unset")
	}
}

// Float returns the numeric form of v. Strings that parse as finite
// numbers convert; anything else reports false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNum:
		return v.num, true
	case KindStr:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text returns the string form of v
func (v Value) Text() string {
	switch v.kind {
	case KindNum:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindStr:
		return v.str
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindStr {
		return strconv.Quote(v.str)
	}
	if v.kind == KindInvalid {
		return "<unset>"
	}
	return v.Text()
}

// Interface returns v as float64 or string
func (v Value) Interface() any {
	switch v.kind {
	case KindNum:
		return v.num
	case KindStr:
		return v.str
	default:
		return nil
	}
}

// Equal reports whether v and o have the same kind and content
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.str == o.str
}

// Compare orders two values of the same kind
func (v Value) Compare(o Value) (int, error) {
	if v.kind != o.kind {
		return 0, util.Precondition("cannot compare %s with %s", v.kind, o.kind)
	}
	switch v.kind {
	case KindNum:
		switch {
		case v.num < o.num:
			return -1, nil
		case v.num > o.num:
			return 1, nil
		}
		return 0, nil
	case KindStr:
		switch {
		case v.str < o.str:
			return -1, nil
		case v.str > o.str:
			return 1, nil
		}
		return 0, nil
	default:
		return 0, util.Precondition("cannot compare unset values")
	}
}

// MarshalJSON encodes v as a JSON number or string
func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a JSON number or string
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return fmt.Errorf("metadata value %s: %w", data, err)
	}
	*v = parsed
	return nil
}
