package doc

import (
	"iter"
	"strings"

	"github.com/btroidl/ivre/internal/schema"
)

// Values yields every value reachable at the dotted path, mapping over each
// array level declared in the registry. The sequence is lazy, single-pass
// and not restartable. A missing intermediate or leaf field contributes
// nothing; it is never an error.
func Values(d Doc, path string, reg *schema.Registry) iter.Seq[any] {
	return func(yield func(any) bool) {
		genValues(d, path, "", reg, func(v any, _ int) bool {
			return yield(v)
		}, "", -1)
	}
}

// WeightedValues is Values with a per-value weight resolved from countField.
// When countField lies inside an array being iterated, the weight is looked
// up on the same element as the value; otherwise it is resolved once on the
// enclosing record. Records lacking the count field weigh 1.
func WeightedValues(d Doc, path, countField string, reg *schema.Registry) iter.Seq2[any, int] {
	return func(yield func(any, int) bool) {
		genValues(d, path, "", reg, yield, countField, -1)
	}
}

// ValuesAt is Values evaluated relative to a registry base path, used when
// walking sub-documents of a list field (the registry only knows full
// dotted paths).
func ValuesAt(d Doc, path, base string, reg *schema.Registry) iter.Seq[any] {
	return func(yield func(any) bool) {
		genValues(d, path, base, reg, func(v any, _ int) bool {
			return yield(v)
		}, "", -1)
	}
}

// ListsAt yields every array reachable at the dotted path relative to base.
// Unlike ValuesAt it does not flatten the final array level: consumers see
// the slices themselves, so an empty array is distinguishable from a
// missing field.
func ListsAt(d Doc, path, base string, reg *schema.Registry) iter.Seq[[]any] {
	return func(yield func([]any) bool) {
		genLists(d, path, base, reg, yield)
	}
}

func genLists(rec Doc, field, base string, reg *schema.Registry, yield func([]any) bool) bool {
	cur, rest, nested := cutPath(field)
	if !nested {
		v, ok := rec[field]
		if !ok || !reg.IsList(joinPath(base, field)) {
			return true
		}
		if elems, ok := v.([]any); ok {
			return yield(elems)
		}
		return true
	}
	v, ok := rec[cur]
	if !ok {
		return true
	}
	base = joinPath(base, cur)
	if reg.IsList(base) {
		elems, ok := v.([]any)
		if !ok {
			return true
		}
		for _, elem := range elems {
			sub, ok := elem.(Doc)
			if !ok {
				continue
			}
			if !genLists(sub, rest, base, reg, yield) {
				return false
			}
		}
		return true
	}
	sub, ok := v.(Doc)
	if !ok {
		return true
	}
	return genLists(sub, rest, base, reg, yield)
}

// ExistsAt reports whether the dotted path is present in the document,
// honoring array levels: inside a list field the path exists when any
// element carries it. Presence is key presence; an empty array still
// exists.
func ExistsAt(d Doc, path, base string, reg *schema.Registry) bool {
	cur, rest, nested := cutPath(path)
	if !nested {
		_, ok := d[path]
		return ok
	}
	v, ok := d[cur]
	if !ok {
		return false
	}
	base = joinPath(base, cur)
	if reg.IsList(base) {
		elems, ok := v.([]any)
		if !ok {
			return false
		}
		for _, elem := range elems {
			if sub, ok := elem.(Doc); ok && ExistsAt(sub, rest, base, reg) {
				return true
			}
		}
		return false
	}
	sub, ok := v.(Doc)
	if !ok {
		return false
	}
	return ExistsAt(sub, rest, base, reg)
}

// genValues walks one path segment per call. countField is the still-to-be-
// resolved count path ("" when none); countVal is the already-resolved
// weight (-1 when not yet resolved). Returns false when the consumer
// stopped the iteration.
func genValues(rec Doc, field, base string, reg *schema.Registry, yield func(any, int) bool, countField string, countVal int) bool {
	cur, rest, nested := cutPath(field)
	if !nested {
		v, ok := rec[field]
		if !ok {
			return true
		}
		weight := func() int {
			if countVal >= 0 {
				return countVal
			}
			if countField != "" {
				if n, ok := AsInt(rec[countField]); ok {
					return n
				}
			}
			return 1
		}
		if reg.IsList(joinPath(base, field)) {
			elems, ok := v.([]any)
			if !ok {
				return true
			}
			for _, elem := range elems {
				if !yield(elem, weight()) {
					return false
				}
			}
			return true
		}
		return yield(v, weight())
	}

	v, ok := rec[cur]
	if !ok {
		return true
	}
	if countField != "" && countVal < 0 {
		if remainder, ok := strings.CutPrefix(countField, cur+"."); ok {
			countField = remainder // count lives inside the array we descend
		} else {
			if n, ok := AsInt(rec[countField]); ok {
				countVal = n
			} else {
				countVal = 1
			}
			countField = ""
		}
	}
	base = joinPath(base, cur)
	if reg.IsList(base) {
		elems, ok := v.([]any)
		if !ok {
			return true
		}
		for _, elem := range elems {
			sub, ok := elem.(Doc)
			if !ok {
				continue
			}
			if !genValues(sub, rest, base, reg, yield, countField, countVal) {
				return false
			}
		}
		return true
	}
	sub, ok := v.(Doc)
	if !ok {
		return true
	}
	return genValues(sub, rest, base, reg, yield, countField, countVal)
}
