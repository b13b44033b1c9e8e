// Package filter provides the boolean predicate algebra applied to stored
// records. Filters are built as a tagged-variant expression tree and handed
// to the storage collaborator, whose evaluator (Matches) interprets them
// against documents with array-aware path resolution.
//
// The package is a pure value layer. It MUST NOT:
//   - Access a store
//   - Convert external value forms (callers pass internal forms)
//   - Know about pseudo-fields or aggregation
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Expr is the interface for all filter tree nodes.
// The marker method prevents external types from implementing Expr.
type Expr interface {
	expr()
	// String returns a human-readable representation of the filter.
	String() string
}

// TrueExpr matches every document. Composition base for And.
type TrueExpr struct{}

func (TrueExpr) expr()          {}
func (TrueExpr) String() string { return "TRUE" }

// FalseExpr matches no document. Composition base for Or.
type FalseExpr struct{}

func (FalseExpr) expr()          {}
func (FalseExpr) String() string { return "FALSE" }

// AndExpr is the conjunction of its terms.
// Invariant: len(Terms) >= 2.
type AndExpr struct {
	Terms []Expr
}

func (AndExpr) expr() {}

func (a *AndExpr) String() string {
	parts := make([]string, len(a.Terms))
	for i, t := range a.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// OrExpr is the disjunction of its terms.
// Invariant: len(Terms) >= 2.
type OrExpr struct {
	Terms []Expr
}

func (OrExpr) expr() {}

func (o *OrExpr) String() string {
	parts := make([]string, len(o.Terms))
	for i, t := range o.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// NotExpr is logical negation.
type NotExpr struct {
	Term Expr
}

func (NotExpr) expr() {}

func (n *NotExpr) String() string { return "NOT " + n.Term.String() }

// Op identifies a leaf comparison.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpOneOf
	OpRegex
	OpExists
	OpContains
)

func (op Op) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpOneOf:
		return "IN"
	case OpRegex:
		return "=~"
	case OpExists:
		return "EXISTS"
	case OpContains:
		return "CONTAINS"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// LeafExpr is one comparison on a dotted path. A path crossing an array
// level matches when any element satisfies the comparison, recursively per
// the schema registry.
type LeafExpr struct {
	Path    string
	Op      Op
	Value   any            // OpEq, OpNe, OpLt..OpGe, OpContains
	Values  []any          // OpOneOf
	Pattern *regexp.Regexp // OpRegex
}

func (LeafExpr) expr() {}

func (l *LeafExpr) String() string {
	switch l.Op {
	case OpExists:
		return fmt.Sprintf("%s EXISTS", l.Path)
	case OpOneOf:
		return fmt.Sprintf("%s IN %v", l.Path, l.Values)
	case OpRegex:
		return fmt.Sprintf("%s =~ /%s/", l.Path, l.Pattern)
	default:
		return fmt.Sprintf("%s %s %v", l.Path, l.Op, l.Value)
	}
}

// AnyExpr matches when at least one element of the array at Path satisfies
// Cond. Leaf paths inside Cond are relative to the element.
type AnyExpr struct {
	Path string
	Cond Expr
}

func (AnyExpr) expr() {}

func (a *AnyExpr) String() string {
	return fmt.Sprintf("%s ANY(%s)", a.Path, a.Cond)
}

// AllExpr matches when the array at Path is present and every element
// satisfies Cond (vacuously true for an empty array). A missing array does
// not match.
type AllExpr struct {
	Path string
	Cond Expr
}

func (AllExpr) expr() {}

func (a *AllExpr) String() string {
	return fmt.Sprintf("%s ALL(%s)", a.Path, a.Cond)
}

// All returns the always-true filter.
func All() Expr { return TrueExpr{} }

// None returns the always-false filter.
func None() Expr { return FalseExpr{} }

// And combines filters conjunctively, flattening nested conjunctions and
// simplifying constants.
func And(terms ...Expr) Expr {
	var flat []Expr
	for _, t := range terms {
		switch tt := t.(type) {
		case TrueExpr:
			continue
		case FalseExpr:
			return FalseExpr{}
		case *AndExpr:
			flat = append(flat, tt.Terms...)
		default:
			flat = append(flat, t)
		}
	}
	switch len(flat) {
	case 0:
		return TrueExpr{}
	case 1:
		return flat[0]
	}
	return &AndExpr{Terms: flat}
}

// Or combines filters disjunctively, flattening nested disjunctions and
// simplifying constants.
func Or(terms ...Expr) Expr {
	var flat []Expr
	for _, t := range terms {
		switch tt := t.(type) {
		case FalseExpr:
			continue
		case TrueExpr:
			return TrueExpr{}
		case *OrExpr:
			flat = append(flat, tt.Terms...)
		default:
			flat = append(flat, t)
		}
	}
	switch len(flat) {
	case 0:
		return FalseExpr{}
	case 1:
		return flat[0]
	}
	return &OrExpr{Terms: flat}
}

// Not negates a filter. Double negation cancels; constants invert.
func Not(term Expr) Expr {
	switch tt := term.(type) {
	case TrueExpr:
		return FalseExpr{}
	case FalseExpr:
		return TrueExpr{}
	case *NotExpr:
		return tt.Term
	}
	return &NotExpr{Term: term}
}

// Leaf builders.

func Eq(path string, v any) Expr       { return &LeafExpr{Path: path, Op: OpEq, Value: v} }
func Ne(path string, v any) Expr       { return &LeafExpr{Path: path, Op: OpNe, Value: v} }
func Lt(path string, v any) Expr       { return &LeafExpr{Path: path, Op: OpLt, Value: v} }
func Le(path string, v any) Expr       { return &LeafExpr{Path: path, Op: OpLe, Value: v} }
func Gt(path string, v any) Expr       { return &LeafExpr{Path: path, Op: OpGt, Value: v} }
func Ge(path string, v any) Expr       { return &LeafExpr{Path: path, Op: OpGe, Value: v} }
func Exists(path string) Expr          { return &LeafExpr{Path: path, Op: OpExists} }
func Contains(path string, v any) Expr { return &LeafExpr{Path: path, Op: OpContains, Value: v} }

func OneOf(path string, values ...any) Expr {
	return &LeafExpr{Path: path, Op: OpOneOf, Values: values}
}

func Regex(path string, pattern *regexp.Regexp) Expr {
	return &LeafExpr{Path: path, Op: OpRegex, Pattern: pattern}
}

// AnyElem matches documents where some element of the array at path
// satisfies cond.
func AnyElem(path string, cond Expr) Expr { return &AnyExpr{Path: path, Cond: cond} }

// AllElem matches documents where the array at path is present and every
// element satisfies cond.
func AllElem(path string, cond Expr) Expr { return &AllExpr{Path: path, Cond: cond} }

// Compare builds an ordering comparison from a textual operator. The
// operator must be one of <, <=, >, >=; anything else is ErrBadOperator.
func Compare(path, op string, v any) (Expr, error) {
	switch op {
	case "<":
		return Lt(path, v), nil
	case "<=":
		return Le(path, v), nil
	case ">":
		return Gt(path, v), nil
	case ">=":
		return Ge(path, v), nil
	}
	return nil, fmt.Errorf("%w: %q (path %q)", ErrBadOperator, op, path)
}
