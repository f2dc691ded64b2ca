package meta

import (
	"maps"
	"slices"

	"github.com/franz/speclib/internal/util"
)

// Map holds the metadata of one spectrum, keyed by field name
type Map map[string]Value

// Clone returns a shallow copy of m (nil stays nil)
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Merge returns base overlaid with override; override wins on conflicts
func Merge(base, override Map) Map {
	out := make(Map, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

// Keys returns the field names of m in sorted order
func (m Map) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Validate checks every name and value in m
func (m Map) Validate() error {
	for name, v := range m {
		if _, err := FieldName(name); err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Normalized returns m with every key passed through FieldName. Two keys
// that normalize to the same name are an error.
func (m Map) Normalized() (Map, error) {
	out := make(Map, len(m))
	spelling := make(map[string]string, len(m))
	for name, v := range m {
		key, err := normalizedKey(name, spelling)
		if err != nil {
			return nil, err
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// normalizedKey normalizes name and records it in spelling, failing when
// another spelling already produced the same field name
func normalizedKey(name string, spelling map[string]string) (string, error) {
	key, err := FieldName(name)
	if err != nil {
		return "", err
	}
	if other, dup := spelling[key]; dup {
		return "", util.Fail(util.ErrPrecondition, []any{"field", key},
			"field names %q and %q both normalize to %q", other, name, key)
	}
	spelling[key] = name
	return key, nil
}
