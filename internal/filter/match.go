package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Match is a search argument that is either an exact string or a compiled
// regular expression. The zero value is unset, which search builders treat
// as "no constraint on this field".
type Match struct {
	exact string
	re    *regexp.Regexp
	isRe  bool
	set   bool
}

// Exact builds a Match comparing for string equality.
func Exact(s string) Match {
	return Match{exact: s, set: true}
}

// Pattern builds a Match searching with a regular expression.
func Pattern(re *regexp.Regexp) Match {
	return Match{re: re, isRe: true, set: true}
}

// ParseMatch interprets user input: "/pattern/" or "/pattern/flags" (flags
// among i, m, s) compiles to a regex Match, anything else is exact. A bad
// pattern or an unterminated "/..." literal is ErrBadPattern.
func ParseMatch(s string) (Match, error) {
	if !strings.HasPrefix(s, "/") {
		return Exact(s), nil
	}
	end := strings.LastIndex(s, "/")
	if end == 0 {
		return Match{}, fmt.Errorf("%w: unterminated pattern %q", ErrBadPattern, s)
	}
	pattern, flags := s[1:end], s[end+1:]
	for _, f := range flags {
		if !strings.ContainsRune("ims", f) {
			return Match{}, fmt.Errorf("%w: unknown flag %q in %q", ErrBadPattern, string(f), s)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	return Pattern(re), nil
}

// ExactValue returns the literal string and true when the match is a set,
// non-pattern constraint. Builders use it where exact input selects a
// different field than a pattern would.
func (m Match) ExactValue() (string, bool) {
	if !m.set || m.isRe {
		return "", false
	}
	return m.exact, true
}

// IsSet reports whether the match carries a constraint.
func (m Match) IsSet() bool { return m.set }

// IsPattern reports whether the match is a regular expression.
func (m Match) IsPattern() bool { return m.isRe }

// MatchString tests a candidate value directly, for extractor-side
// filtering outside the algebra.
func (m Match) MatchString(s string) bool {
	if !m.set {
		return true
	}
	if m.isRe {
		return m.re.MatchString(s)
	}
	return s == m.exact
}

// Expr builds the leaf comparing the field at path against the match:
// equality for exact matches, unanchored regex search for patterns.
func (m Match) Expr(path string) Expr {
	if m.isRe {
		return Regex(path, m.re)
	}
	return Eq(path, m.exact)
}

// ExprNeg is Expr with optional negation. Negated exact matches become a
// not-equals leaf; negated patterns wrap the regex leaf in NOT.
func (m Match) ExprNeg(path string, neg bool) Expr {
	if !neg {
		return m.Expr(path)
	}
	if m.isRe {
		return Not(Regex(path, m.re))
	}
	return Ne(path, m.exact)
}

// InArray builds the membership test for an array-valued field: exact
// matches use array containment, patterns match when any element matches.
func (m Match) InArray(path string, neg bool) Expr {
	var e Expr
	if m.isRe {
		e = Regex(path, m.re)
	} else {
		e = Contains(path, m.exact)
	}
	if neg {
		return Not(e)
	}
	return e
}
