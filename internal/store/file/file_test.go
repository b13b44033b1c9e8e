package file

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
	"github.com/btroidl/ivre/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.snap")
	return New(path, DefaultFileMode, schema.NewRegistry("tags"), logging.Discard())
}

func TestConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.snap")
	reg := schema.NewRegistry()

	s := New(path, DefaultFileMode, reg, logging.Discard())
	id, err := s.Insert(doc.Doc{"name": "a", "n": int64(7)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := New(path, DefaultFileMode, reg, logging.Discard())
	got, err := s2.Get(filter.Eq("name", "a"))
	if err != nil {
		t.Fatalf("Get from second instance: %v", err)
	}
	if doc.ID(got) != id {
		t.Errorf("id changed across reload: %q != %q", doc.ID(got), id)
	}
	if n, ok := doc.AsInt(got["n"]); !ok || n != 7 {
		t.Errorf("n = %v after reload, want 7", got["n"])
	}
}

func TestReopensAfterClose(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Insert(doc.Doc{"name": "a"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Any call after Close transparently reloads the snapshot.
	n, err := s.Count(filter.All())
	if err != nil {
		t.Fatalf("Count after Close: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 doc after reopen, got %d", n)
	}
}

func TestAddrRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.snap")
	reg := schema.NewRegistry()

	addr, err := codec.ParseAddr("192.0.2.7")
	if err != nil {
		t.Fatalf("ParseAddr: %v", err)
	}
	s := New(path, DefaultFileMode, reg, logging.Discard())
	if _, err := s.Insert(doc.Doc{"addr": addr}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := New(path, DefaultFileMode, reg, logging.Discard())
	got, err := s2.Get(filter.Eq("addr", addr))
	if err != nil {
		t.Fatalf("address did not survive the snapshot round-trip: %v", err)
	}
	back, ok := got["addr"].(codec.Addr)
	if !ok {
		t.Fatalf("addr decoded as %T, want codec.Addr", got["addr"])
	}
	if back != addr {
		t.Errorf("addr = %v after reload, want %v", back, addr)
	}
}

func TestPurgeRemovesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.snap")
	s := New(path, DefaultFileMode, schema.NewRegistry(), logging.Discard())
	if _, err := s.Insert(doc.Doc{"name": "a"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot should exist after insert: %v", err)
	}
	if err := s.Purge(); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("snapshot should be gone after purge, stat err = %v", err)
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	reg := schema.NewRegistry()

	if _, err := f(map[string]string{}, reg, logging.Discard()); !errors.Is(err, ErrMissingPathParam) {
		t.Errorf("expected ErrMissingPathParam, got %v", err)
	}
	if _, err := f(map[string]string{ParamPath: "x", ParamFileMode: "notoctal"}, reg, logging.Discard()); err == nil {
		t.Error("invalid fileMode should fail")
	}

	path := filepath.Join(t.TempDir(), "hosts.snap")
	s, err := f(map[string]string{ParamPath: path, ParamFileMode: "600"}, reg, logging.Discard())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, err := s.Insert(doc.Doc{"name": "a"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("snapshot mode = %o, want 600", info.Mode().Perm())
	}
}
