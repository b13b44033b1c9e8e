package schema

import "testing"

func TestIsList(t *testing.T) {
	tests := []struct {
		reg  *Registry
		path string
		want bool
	}{
		{Hosts(), "ports", true},
		{Hosts(), "ports.scripts", true},
		{Hosts(), "ports.scripts.ssh-hostkey", true},
		{Hosts(), "ports.port", false},
		{Hosts(), "infos", false},
		{Hosts(), "no.such.path", false},
		{Passives(), "infos.domain", true},
		{Passives(), "ports", false},
	}
	for _, tt := range tests {
		if got := tt.reg.IsList(tt.path); got != tt.want {
			t.Errorf("IsList(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry("a", "a.b")
	if !r.IsList("a") || !r.IsList("a.b") {
		t.Error("registered paths should be list fields")
	}
	if r.IsList("a.b.c") {
		t.Error("child of a list field is not itself a list field")
	}
}
