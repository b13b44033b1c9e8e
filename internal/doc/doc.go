// Package doc defines the nested document type stored in collections and
// the record-level algorithms that operate on it: array-aware path value
// extraction, projection to a requested field subset, and stable multi-key
// sorting.
//
// Documents are schema-less nested maps. Which dotted paths hold arrays is
// not inferred from the data; walkers consult a schema.Registry so that a
// plain field whose value happens to be a slice is never traversed as a
// list field, and vice versa.
package doc

import "github.com/btroidl/ivre/internal/codec"

// IDField is the identity key every stored document carries.
const IDField = "_id"

// Doc is one nested record. Nested values are Doc, []any, or scalars
// (string, int, int64, float64, bool, codec.Addr).
type Doc = map[string]any

// Copy returns a deep copy of the document. Scalars are shared; maps and
// slices are duplicated at every level.
func Copy(d Doc) Doc {
	return copyValue(d).(Doc)
}

func copyValue(v any) any {
	switch val := v.(type) {
	case Doc:
		out := make(Doc, len(val))
		for k, sub := range val {
			out[k] = copyValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = copyValue(sub)
		}
		return out
	default:
		return v
	}
}

// ID returns the document identity key, or "" when absent.
func ID(d Doc) string {
	if id, ok := d[IDField].(string); ok {
		return id
	}
	return ""
}

// AsInt coerces a stored numeric value to int. Returns (0, false) for
// non-numeric values.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// CompareValues orders two scalar document values. The second return is
// false when the values are not comparable (mixed non-numeric types, nested
// structures). Numbers compare across int/int64/float64; addresses compare
// by integer value; booleans order false before true.
func CompareValues(a, b any) (int, bool) {
	if aa, ok := a.(codec.Addr); ok {
		bb, ok := b.(codec.Addr)
		if !ok {
			return 0, false
		}
		return aa.Cmp(bb), true
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case bv:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// Equal reports deep equality of two document values, tolerant of mixed
// numeric representations.
func Equal(a, b any) bool {
	if c, ok := CompareValues(a, b); ok {
		return c == 0
	}
	switch av := a.(type) {
	case Doc:
		bv, ok := b.(Doc)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, sub := range av {
			other, ok := bv[k]
			if !ok || !Equal(sub, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i, sub := range av {
			if !Equal(sub, bv[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
