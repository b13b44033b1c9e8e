package doc

import "github.com/btroidl/ivre/internal/schema"

// fieldTree is a prefix tree of requested dotted paths. A nil subtree marks
// a leaf: the whole value at that path is wanted.
type fieldTree map[string]fieldTree

// buildFieldTree folds a list of dotted paths into a prefix tree. A path
// requested both as a leaf and as a prefix of deeper paths is kept as a
// leaf: the whole subtree wins over partial projections.
func buildFieldTree(fields []string) fieldTree {
	root := make(fieldTree)
	for _, field := range fields {
		cur := root
		segs := splitPath(field)
		leafed := false
		for _, seg := range segs[:len(segs)-1] {
			sub, ok := cur[seg]
			if ok && sub == nil {
				leafed = true // an ancestor is already a full-subtree leaf
				break
			}
			if !ok {
				sub = make(fieldTree)
				cur[seg] = sub
			}
			cur = sub
		}
		if !leafed {
			cur[segs[len(segs)-1]] = nil
		}
	}
	return root
}

// Project returns a copy of the document pruned to the requested dotted
// paths. Array structure is replicated element by element at every list
// level, the identity key is always preserved, and absent fields are
// omitted rather than defaulted.
func Project(d Doc, fields []string, reg *schema.Registry) Doc {
	res := projectTree(d, buildFieldTree(fields), "", reg)
	if id, ok := d[IDField]; ok {
		res[IDField] = id
	}
	return res
}

func projectTree(rec Doc, wanted fieldTree, base string, reg *schema.Registry) Doc {
	res := make(Doc, len(wanted))
	for field, sub := range wanted {
		v, ok := rec[field]
		if !ok {
			continue
		}
		if sub == nil {
			res[field] = copyValue(v)
			continue
		}
		full := joinPath(base, field)
		if reg.IsList(full) {
			elems, ok := v.([]any)
			if !ok {
				continue
			}
			out := make([]any, 0, len(elems))
			for _, elem := range elems {
				subrec, ok := elem.(Doc)
				if !ok {
					continue
				}
				out = append(out, projectTree(subrec, sub, full, reg))
			}
			res[field] = out
			continue
		}
		subrec, ok := v.(Doc)
		if !ok {
			continue
		}
		res[field] = projectTree(subrec, sub, full, reg)
	}
	return res
}

func splitPath(path string) []string {
	var segs []string
	for {
		first, rest, nested := cutPath(path)
		segs = append(segs, first)
		if !nested {
			return segs
		}
		path = rest
	}
}
