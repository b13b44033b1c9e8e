package filter

import (
	"errors"
	"regexp"
	"testing"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/schema"
)

var reg = schema.NewRegistry("ports", "ports.scripts", "categories", "hostnames", "hostnames.domains")

func host() doc.Doc {
	return doc.Doc{
		"_id":        "h1",
		"addr":       int64(42),
		"categories": []any{"scan", "internet"},
		"ports": []any{
			doc.Doc{"port": int64(80), "protocol": "tcp", "state_state": "open", "service_name": "http"},
			doc.Doc{"port": int64(22), "protocol": "tcp", "state_state": "closed", "service_name": "ssh"},
		},
		"hostnames": []any{
			doc.Doc{"name": "www.example.com", "domains": []any{"example.com", "com"}},
		},
		"infos": doc.Doc{"country_code": "DE"},
	}
}

func TestLeafOps(t *testing.T) {
	h := host()
	tests := []struct {
		name string
		e    Expr
		want bool
	}{
		{"eq hit", Eq("addr", int64(42)), true},
		{"eq miss", Eq("addr", int64(43)), false},
		{"eq missing field", Eq("nope", int64(1)), false},
		{"ne hit", Ne("addr", int64(43)), true},
		{"ne miss", Ne("addr", int64(42)), false},
		{"ne missing field", Ne("nope", int64(1)), false},
		{"lt", Lt("addr", int64(43)), true},
		{"le eq", Le("addr", int64(42)), true},
		{"gt miss", Gt("addr", int64(42)), false},
		{"ge eq", Ge("addr", int64(42)), true},
		{"oneof hit", OneOf("addr", int64(1), int64(42)), true},
		{"oneof miss", OneOf("addr", int64(1), int64(2)), false},
		{"exists", Exists("infos.country_code"), true},
		{"exists missing", Exists("infos.city"), false},
		{"contains", Contains("categories", "scan"), true},
		{"contains miss", Contains("categories", "other"), false},
		{"regex", Regex("infos.country_code", regexp.MustCompile("^D")), true},
		{"array leaf any-element", Eq("ports.port", int64(22)), true},
		{"array leaf no element", Eq("ports.port", int64(443)), false},
		{"regex in array", Regex("hostnames.domains", regexp.MustCompile(`example\.`)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.e, h, reg); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.e, got, tt.want)
			}
		})
	}
}

func TestCombinators(t *testing.T) {
	h := host()
	open80 := AnyElem("ports", And(Eq("port", int64(80)), Eq("state_state", "open")))
	open443 := AnyElem("ports", And(Eq("port", int64(443)), Eq("state_state", "open")))

	if !Matches(open80, h, reg) {
		t.Fatal("any-element conjunction should match")
	}
	if Matches(open443, h, reg) {
		t.Fatal("port 443 is not open")
	}
	if !Matches(Or(open443, open80), h, reg) {
		t.Error("OR should match")
	}
	if Matches(And(open443, open80), h, reg) {
		t.Error("AND should not match")
	}
	if Matches(Not(open80), h, reg) {
		t.Error("NOT should invert")
	}
	if !Matches(Not(Not(open80)), h, reg) {
		t.Error("double negation should cancel")
	}
}

func TestAnyElemRequiresSameElement(t *testing.T) {
	// Port 80 is open and port 22 is ssh, but no single port is both.
	h := host()
	e := AnyElem("ports", And(Eq("port", int64(80)), Eq("service_name", "ssh")))
	if Matches(e, h, reg) {
		t.Error("conjunction must be satisfied by one element, not across elements")
	}
}

func TestAllElem(t *testing.T) {
	h := host()
	if !Matches(AllElem("ports", Eq("protocol", "tcp")), h, reg) {
		t.Error("every port is tcp")
	}
	if Matches(AllElem("ports", Eq("state_state", "open")), h, reg) {
		t.Error("not every port is open")
	}
	// Missing array never matches ALL.
	if Matches(AllElem("ports", Eq("protocol", "tcp")), doc.Doc{"_id": "x"}, reg) {
		t.Error("ALL on a missing array must not match")
	}
	// Empty array matches vacuously.
	if !Matches(AllElem("ports", Eq("protocol", "tcp")), doc.Doc{"ports": []any{}}, reg) {
		t.Error("ALL on an empty array is vacuously true")
	}
}

func TestConstants(t *testing.T) {
	h := host()
	if !Matches(All(), h, reg) || Matches(None(), h, reg) {
		t.Fatal("constant filters broken")
	}
	if And(All(), None()).String() != "FALSE" {
		t.Error("AND with FALSE should simplify to FALSE")
	}
	if Or(None(), All()).String() != "TRUE" {
		t.Error("OR with TRUE should simplify to TRUE")
	}
	if And().String() != "TRUE" || Or().String() != "FALSE" {
		t.Error("empty combinators should yield their identity")
	}
	if Not(All()).String() != "FALSE" || Not(None()).String() != "TRUE" {
		t.Error("negated constants should invert")
	}
}

func TestFlattening(t *testing.T) {
	e := And(Eq("a", 1), And(Eq("b", 2), Eq("c", 3)))
	a, ok := e.(*AndExpr)
	if !ok || len(a.Terms) != 3 {
		t.Errorf("nested AND should flatten, got %s", e)
	}
	o := Or(Eq("a", 1), Or(Eq("b", 2), Eq("c", 3)))
	oo, ok := o.(*OrExpr)
	if !ok || len(oo.Terms) != 3 {
		t.Errorf("nested OR should flatten, got %s", o)
	}
}

func TestCompareOperator(t *testing.T) {
	if _, err := Compare("f", "<", 1); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if _, err := Compare("f", "=<", 1); err == nil {
		t.Fatal("invalid operator should fail")
	}
}

func TestParseMatch(t *testing.T) {
	m, err := ParseMatch("plain text")
	if err != nil || m.IsPattern() {
		t.Fatalf("plain input should be exact, got %v (%v)", m, err)
	}
	m, err = ParseMatch("/ngin.?/")
	if err != nil || !m.IsPattern() {
		t.Fatalf("slashed input should be a pattern, err=%v", err)
	}
	if !m.MatchString("nginx") || m.MatchString("apache") {
		t.Error("pattern matching broken")
	}
	m, err = ParseMatch("/WEB/i")
	if err != nil {
		t.Fatalf("flagged pattern: %v", err)
	}
	if !m.MatchString("web server") {
		t.Error("i flag should make the pattern case-insensitive")
	}
	if _, err := ParseMatch("/x/q"); err == nil {
		t.Error("unknown flag should fail")
	}
	if _, err := ParseMatch("/(/"); err == nil {
		t.Error("invalid regex should fail")
	}
	if _, err := ParseMatch("/abc"); !errors.Is(err, ErrBadPattern) {
		t.Errorf("unterminated pattern error = %v, want ErrBadPattern", err)
	}
}

func TestMatchExprs(t *testing.T) {
	h := host()
	if !Matches(Exact("DE").Expr("infos.country_code"), h, reg) {
		t.Error("exact match expr")
	}
	if !Matches(Exact("FR").ExprNeg("infos.country_code", true), h, reg) {
		t.Error("negated exact match expr")
	}
	if !Matches(Exact("scan").InArray("categories", false), h, reg) {
		t.Error("in-array exact")
	}
	if !Matches(Pattern(regexp.MustCompile("^inter")).InArray("categories", false), h, reg) {
		t.Error("in-array pattern")
	}
	if !Matches(Exact("other").InArray("categories", true), h, reg) {
		t.Error("negated in-array")
	}
}
