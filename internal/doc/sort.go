package doc

import "slices"

// SortKey is one (path, direction) ordering key.
type SortKey struct {
	Path string
	Desc bool
}

// Asc and Desc build sort keys.
func Asc(path string) SortKey  { return SortKey{Path: path} }
func Desc(path string) SortKey { return SortKey{Path: path, Desc: true} }

// Compare orders two documents by the given keys. A missing or nil value is
// strictly lower than any present value ascending and strictly higher
// descending, whatever the per-key comparison would say. The first non-tied
// key decides; values that cannot be compared tie.
func Compare(a, b Doc, keys []SortKey) int {
	for _, key := range keys {
		dir := 1
		if key.Desc {
			dir = -1
		}
		va := lookupPlain(a, key.Path)
		vb := lookupPlain(b, key.Path)
		if Equal(va, vb) {
			continue
		}
		if va == nil {
			return -dir
		}
		if vb == nil {
			return dir
		}
		c, ok := CompareValues(va, vb)
		if !ok || c == 0 {
			continue
		}
		return c * dir
	}
	return 0
}

// SortStable sorts documents in place by the given keys, preserving the
// original relative order of records that tie on every key.
func SortStable(docs []Doc, keys []SortKey) {
	slices.SortStableFunc(docs, func(a, b Doc) int {
		return Compare(a, b, keys)
	})
}

// CompareTuples orders two value tuples element-wise: nil is strictly
// lowest, incomparable elements tie, and on a full-prefix tie the shorter
// tuple sorts first.
func CompareTuples(a, b []any) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		va, vb := a[i], b[i]
		if Equal(va, vb) {
			continue
		}
		if va == nil {
			return -1
		}
		if vb == nil {
			return 1
		}
		if c, ok := CompareValues(va, vb); ok && c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// lookupPlain walks a dotted path through plain nested maps only. Sort keys
// do not traverse arrays; a path crossing anything but a sub-document
// resolves to nil.
func lookupPlain(d Doc, path string) any {
	cur := any(d)
	for {
		rec, ok := cur.(Doc)
		if !ok {
			return nil
		}
		first, rest, nested := cutPath(path)
		if !nested {
			return rec[first]
		}
		cur = rec[first]
		path = rest
	}
}
