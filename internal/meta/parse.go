package meta

import (
	"math"
	"strconv"
	"strings"

	"github.com/franz/speclib/internal/util"
)

// RangeSeparator splits the bounds of a range in textual constraints
const RangeSeparator = ".."

// ParseValue reads a command-line value: finite numbers become Num,
// everything else Str
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Str(s)
	}
	return Num(f)
}

// ParseAssignment parses "field=value"
func ParseAssignment(s string) (string, Value, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", Value{}, util.Precondition("expected field=value, got %q", s)
	}
	field, err := FieldName(name)
	if err != nil {
		return "", Value{}, err
	}
	return field, ParseValue(raw), nil
}

// ParseAssignments parses a list of "field=value" items into a Map
func ParseAssignments(items []string) (Map, error) {
	out := make(Map, len(items))
	for _, item := range items {
		field, v, err := ParseAssignment(item)
		if err != nil {
			return nil, err
		}
		if _, dup := out[field]; dup {
			return nil, util.Precondition("field %q assigned twice", field)
		}
		out[field] = v
	}
	return out, nil
}

// ParseConstraint parses "field=value" or "field=min..max"
func ParseConstraint(s string) (string, Constraint, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", Constraint{}, util.Precondition("expected field=value or field=min%smax, got %q", RangeSeparator, s)
	}
	field, err := FieldName(name)
	if err != nil {
		return "", Constraint{}, err
	}
	if lo, hi, isRange := strings.Cut(raw, RangeSeparator); isRange {
		return field, Between(ParseValue(lo), ParseValue(hi)), nil
	}
	return field, Exact(ParseValue(raw)), nil
}

// ParseQuery parses a list of textual constraints
func ParseQuery(items []string) (Query, error) {
	q := make(Query, len(items))
	for _, item := range items {
		field, c, err := ParseConstraint(item)
		if err != nil {
			return nil, err
		}
		if _, dup := q[field]; dup {
			return nil, util.Precondition("field %q constrained twice", field)
		}
		q[field] = c
	}
	return q, nil
}
