package doc

import (
	"slices"
	"testing"

	"github.com/btroidl/ivre/internal/schema"
)

var testReg = schema.NewRegistry(
	"ports",
	"ports.scripts",
	"ports.scripts.ssh-hostkey",
	"hostnames",
	"hostnames.domains",
)

func testHost() Doc {
	return Doc{
		"_id":  "host-1",
		"addr": "stub",
		"ports": []any{
			Doc{
				"port": 80, "protocol": "tcp", "state_state": "open",
				"service_name": "http",
				"scripts": []any{
					Doc{"id": "http-title", "output": "Welcome"},
					Doc{"id": "ssh-hostkey", "ssh-hostkey": []any{
						Doc{"type": "ssh-rsa", "bits": 2048},
						Doc{"type": "ssh-ed25519", "bits": 256},
					}},
				},
			},
			Doc{"port": 22, "protocol": "tcp", "state_state": "closed", "service_name": "ssh"},
		},
		"hostnames": []any{
			Doc{"name": "www.example.com", "domains": []any{"example.com", "com"}},
		},
		"infos": Doc{"country_code": "DE", "as_num": 3320},
	}
}

func collect(d Doc, path string) []any {
	var out []any
	for v := range Values(d, path, testReg) {
		out = append(out, v)
	}
	return out
}

func TestValues(t *testing.T) {
	h := testHost()

	tests := []struct {
		path string
		want []any
	}{
		{"ports.port", []any{80, 22}},
		{"ports.service_name", []any{"http", "ssh"}},
		{"ports.scripts.id", []any{"http-title", "ssh-hostkey"}},
		{"ports.scripts.ssh-hostkey.type", []any{"ssh-rsa", "ssh-ed25519"}},
		{"hostnames.domains", []any{"example.com", "com"}},
		{"infos.country_code", []any{"DE"}},
		{"addr", []any{"stub"}},
	}
	for _, tt := range tests {
		if got := collect(h, tt.path); !slices.Equal(got, tt.want) {
			t.Errorf("Values(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestValuesMissing(t *testing.T) {
	h := testHost()
	for _, path := range []string{
		"nonexistent",
		"infos.city",
		"ports.scripts.vulns.id",
		"infos.country_code.deeper",
	} {
		if got := collect(h, path); got != nil {
			t.Errorf("Values(%q) = %v, want empty", path, got)
		}
	}
}

func TestValuesSinglePass(t *testing.T) {
	h := testHost()
	seq := Values(h, "ports.port", testReg)
	var first []any
	for v := range seq {
		first = append(first, v)
		break // early stop must be honored
	}
	if len(first) != 1 {
		t.Fatalf("expected a single value, got %v", first)
	}
}

func TestWeightedValues(t *testing.T) {
	rec := Doc{
		"value": "example.com",
		"count": int64(4),
	}
	reg := schema.NewRegistry()
	for v, w := range WeightedValues(rec, "value", "count", reg) {
		if v != "example.com" || w != 4 {
			t.Errorf("got (%v, %d), want (example.com, 4)", v, w)
		}
	}

	// Missing count field defaults to 1.
	for _, w := range WeightedValues(Doc{"value": "x"}, "value", "count", reg) {
		if w != 1 {
			t.Errorf("weight = %d, want 1", w)
		}
	}
}

func TestWeightedValuesInsideArray(t *testing.T) {
	// The count field lives inside the iterated array: the weight must be
	// local to each element, not the outer record.
	reg := schema.NewRegistry("items")
	rec := Doc{
		"count": int64(99), // decoy on the outer record
		"items": []any{
			Doc{"name": "a", "count": int64(2)},
			Doc{"name": "b", "count": int64(5)},
			Doc{"name": "c"},
		},
	}
	got := map[any]int{}
	for v, w := range WeightedValues(rec, "items.name", "items.count", reg) {
		got[v] = w
	}
	want := map[any]int{"a": 2, "b": 5, "c": 1}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("weight[%v] = %d, want %d", k, got[k], w)
		}
	}
}

func TestProject(t *testing.T) {
	h := testHost()
	got := Project(h, []string{"ports.port", "ports.state_state", "infos.country_code"}, testReg)

	if got["_id"] != "host-1" {
		t.Error("projection must preserve the identity key")
	}
	if _, ok := got["addr"]; ok {
		t.Error("unrequested field survived projection")
	}
	ports, ok := got["ports"].([]any)
	if !ok || len(ports) != 2 {
		t.Fatalf("ports = %v, want 2 elements", got["ports"])
	}
	p0 := ports[0].(Doc)
	if p0["port"] != 80 || p0["state_state"] != "open" {
		t.Errorf("ports[0] = %v", p0)
	}
	if _, ok := p0["service_name"]; ok {
		t.Error("unrequested nested field survived projection")
	}
	infos := got["infos"].(Doc)
	if infos["country_code"] != "DE" {
		t.Errorf("infos = %v", infos)
	}
	if _, ok := infos["as_num"]; ok {
		t.Error("unrequested infos field survived projection")
	}
}

func TestProjectAbsentOmitted(t *testing.T) {
	got := Project(Doc{"_id": "x"}, []string{"ports.port", "infos.city"}, testReg)
	if _, ok := got["ports"]; ok {
		t.Error("absent array field should be omitted, not defaulted")
	}
	if _, ok := got["infos"]; ok {
		t.Error("absent branch should be omitted")
	}
}

func TestProjectWholeSubtree(t *testing.T) {
	h := testHost()
	got := Project(h, []string{"ports"}, testReg)
	ports := got["ports"].([]any)
	if len(ports) != 2 {
		t.Fatal("whole subtree projection lost elements")
	}
	// Leaf projection keeps everything below.
	if ports[0].(Doc)["service_name"] != "http" {
		t.Error("leaf projection should copy the whole subtree")
	}
	// And must be a copy, not an alias.
	ports[0].(Doc)["service_name"] = "changed"
	if h["ports"].([]any)[0].(Doc)["service_name"] != "http" {
		t.Error("projection aliased the source document")
	}
}

func TestSortNilFirstAscending(t *testing.T) {
	docs := []Doc{
		{"_id": "a", "n": int64(5)},
		{"_id": "b"},
		{"_id": "c", "n": int64(1)},
	}
	SortStable(docs, []SortKey{Asc("n")})
	if ID(docs[0]) != "b" || ID(docs[1]) != "c" || ID(docs[2]) != "a" {
		t.Errorf("ascending order = %v", ids(docs))
	}
	SortStable(docs, []SortKey{Desc("n")})
	if ID(docs[0]) != "a" || ID(docs[1]) != "c" || ID(docs[2]) != "b" {
		t.Errorf("descending order = %v", ids(docs))
	}
}

func TestSortStability(t *testing.T) {
	docs := []Doc{
		{"_id": "1", "k": "x", "o": int64(1)},
		{"_id": "2", "k": "x", "o": int64(2)},
		{"_id": "3", "k": "x", "o": int64(3)},
	}
	SortStable(docs, []SortKey{Asc("k")})
	if ID(docs[0]) != "1" || ID(docs[1]) != "2" || ID(docs[2]) != "3" {
		t.Errorf("equal keys must keep original order, got %v", ids(docs))
	}
}

func TestSortMultiKey(t *testing.T) {
	docs := []Doc{
		{"_id": "a", "g": "b", "n": int64(1)},
		{"_id": "b", "g": "a", "n": int64(2)},
		{"_id": "c", "g": "a", "n": int64(1)},
	}
	SortStable(docs, []SortKey{Asc("g"), Desc("n")})
	if ID(docs[0]) != "b" || ID(docs[1]) != "c" || ID(docs[2]) != "a" {
		t.Errorf("multi-key order = %v", ids(docs))
	}
}

func TestSortNestedKey(t *testing.T) {
	docs := []Doc{
		{"_id": "a", "infos": Doc{"as_num": int64(15169)}},
		{"_id": "b", "infos": Doc{"as_num": int64(8075)}},
	}
	SortStable(docs, []SortKey{Asc("infos.as_num")})
	if ID(docs[0]) != "b" {
		t.Errorf("nested key order = %v", ids(docs))
	}
}

func ids(docs []Doc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = ID(d)
	}
	return out
}

func TestCopyIsDeep(t *testing.T) {
	h := testHost()
	c := Copy(h)
	c["ports"].([]any)[0].(Doc)["port"] = 8080
	if h["ports"].([]any)[0].(Doc)["port"] != 80 {
		t.Error("Copy aliased nested structures")
	}
}

func TestCounterRanking(t *testing.T) {
	c := NewCounter()
	c.Add("b", 1)
	c.Add("a", 2)
	c.Add("b", 1)
	c.Add([]any{"a", int64(1)}, 1)
	if err := c.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	top := c.Top(2)
	if len(top) != 2 {
		t.Fatalf("Top(2) returned %d entries", len(top))
	}
	// Equal counts rank in first-seen order.
	if top[0].Value != "b" || top[0].Count != 2 {
		t.Errorf("top[0] = %+v, want b x2", top[0])
	}
	if top[1].Value != "a" || top[1].Count != 2 {
		t.Errorf("top[1] = %+v, want a x2", top[1])
	}
}

func TestCounterUnencodableValue(t *testing.T) {
	c := NewCounter()
	c.Add("ok", 1)
	c.Add(func() {}, 1)
	if c.Err() == nil {
		t.Fatal("expected an error for a value that cannot be keyed")
	}
	top := c.Top(-1)
	if len(top) != 1 || top[0].Value != "ok" {
		t.Errorf("Top = %v, want only the countable value", top)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		want int
		ok   bool
	}{
		{int64(1), int64(2), -1, true},
		{int64(2), 2, 0, true},
		{float64(2.5), int64(2), 1, true},
		{"a", "b", -1, true},
		{false, true, -1, true},
		{"a", int64(1), 0, false},
	}
	for _, tt := range tests {
		got, ok := CompareValues(tt.a, tt.b)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("CompareValues(%v, %v) = (%d, %v), want (%d, %v)", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}
