package filter

import (
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/schema"
)

// Matches is the storage collaborator's evaluator: it interprets a filter
// tree against one document. Leaf paths resolve array-aware through the
// registry; a leaf on a path crossing an array level matches when any
// element satisfies it.
func Matches(e Expr, d doc.Doc, reg *schema.Registry) bool {
	return matches(e, d, "", reg)
}

func matches(e Expr, d doc.Doc, base string, reg *schema.Registry) bool {
	switch ex := e.(type) {
	case TrueExpr:
		return true
	case FalseExpr:
		return false
	case *AndExpr:
		for _, t := range ex.Terms {
			if !matches(t, d, base, reg) {
				return false
			}
		}
		return true
	case *OrExpr:
		for _, t := range ex.Terms {
			if matches(t, d, base, reg) {
				return true
			}
		}
		return false
	case *NotExpr:
		return !matches(ex.Term, d, base, reg)
	case *AnyExpr:
		elemBase := joinBase(base, ex.Path)
		for elems := range doc.ListsAt(d, ex.Path, base, reg) {
			for _, elem := range elems {
				sub, ok := elem.(doc.Doc)
				if !ok {
					continue
				}
				if matches(ex.Cond, sub, elemBase, reg) {
					return true
				}
			}
		}
		return false
	case *AllExpr:
		elemBase := joinBase(base, ex.Path)
		found := false
		for elems := range doc.ListsAt(d, ex.Path, base, reg) {
			found = true
			for _, elem := range elems {
				sub, ok := elem.(doc.Doc)
				if !ok {
					continue
				}
				if !matches(ex.Cond, sub, elemBase, reg) {
					return false
				}
			}
		}
		return found
	case *LeafExpr:
		return matchLeaf(ex, d, base, reg)
	}
	return false
}

func matchLeaf(l *LeafExpr, d doc.Doc, base string, reg *schema.Registry) bool {
	if l.Op == OpExists {
		return doc.ExistsAt(d, l.Path, base, reg)
	}
	for v := range doc.ValuesAt(d, l.Path, base, reg) {
		switch l.Op {
		case OpEq, OpContains:
			if doc.Equal(v, l.Value) {
				return true
			}
		case OpNe:
			if !doc.Equal(v, l.Value) {
				return true
			}
		case OpLt, OpLe, OpGt, OpGe:
			if c, ok := doc.CompareValues(v, l.Value); ok && cmpSatisfies(l.Op, c) {
				return true
			}
		case OpOneOf:
			for _, want := range l.Values {
				if doc.Equal(v, want) {
					return true
				}
			}
		case OpRegex:
			if s, ok := v.(string); ok && l.Pattern.MatchString(s) {
				return true
			}
		}
	}
	return false
}

func cmpSatisfies(op Op, c int) bool {
	switch op {
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

func joinBase(base, path string) string {
	if base == "" {
		return path
	}
	return base + "." + path
}
