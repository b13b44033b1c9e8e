// Package storetest provides a shared conformance test suite for
// store.Store implementations. Each backend (memory, file) wires this
// suite to verify it satisfies the full Store contract.
package storetest

import (
	"errors"
	"testing"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/store"
)

// TestStore runs the full conformance suite against a Store
// implementation. newStore must return a fresh, empty store for each
// sub-test.
func TestStore(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("EmptySearch", func(t *testing.T) {
		s := newStore(t)
		docs, err := s.Search(filter.All())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("expected empty store, got %d docs", len(docs))
		}
	})

	t.Run("InsertAssignsID", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(doc.Doc{"name": "a"})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id == "" {
			t.Fatal("expected generated id")
		}
		got, err := s.Get(filter.Eq("name", "a"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if doc.ID(got) != id {
			t.Errorf("stored id %q, Insert returned %q", doc.ID(got), id)
		}
	})

	t.Run("InsertKeepsID", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(doc.Doc{"_id": "fixed", "name": "a"})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id != "fixed" {
			t.Errorf("expected id %q, got %q", "fixed", id)
		}
	})

	t.Run("SearchInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"a", "b", "c"} {
			if _, err := s.Insert(doc.Doc{"name": name}); err != nil {
				t.Fatalf("Insert %s: %v", name, err)
			}
		}
		docs, err := s.Search(filter.All())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(docs) != 3 {
			t.Fatalf("expected 3 docs, got %d", len(docs))
		}
		for i, name := range []string{"a", "b", "c"} {
			if docs[i]["name"] != name {
				t.Errorf("doc %d: expected name %q, got %v", i, name, docs[i]["name"])
			}
		}
	})

	t.Run("SearchFilters", func(t *testing.T) {
		s := newStore(t)
		mustInsert(t, s, doc.Doc{"name": "a", "n": int64(1)})
		mustInsert(t, s, doc.Doc{"name": "b", "n": int64(2)})
		mustInsert(t, s, doc.Doc{"name": "c", "n": int64(3)})

		docs, err := s.Search(filter.Gt("n", int64(1)))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("expected 2 docs, got %d", len(docs))
		}
		n, err := s.Count(filter.Gt("n", int64(1)))
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 2 {
			t.Errorf("Count = %d, want 2", n)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(filter.Eq("name", "missing")); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReturnedDocsAreCopies", func(t *testing.T) {
		s := newStore(t)
		mustInsert(t, s, doc.Doc{"name": "a", "tags": []any{"x"}})
		got, err := s.Get(filter.All())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got["name"] = "mutated"
		got["tags"].([]any)[0] = "mutated"

		again, err := s.Get(filter.All())
		if err != nil {
			t.Fatalf("Get again: %v", err)
		}
		if again["name"] != "a" || again["tags"].([]any)[0] != "x" {
			t.Error("mutating a returned doc leaked into the store")
		}
	})

	t.Run("Update", func(t *testing.T) {
		s := newStore(t)
		id := mustInsert(t, s, doc.Doc{"name": "a", "n": int64(1)})
		mustInsert(t, s, doc.Doc{"name": "b", "n": int64(1)})

		err := s.Update(func(d doc.Doc) { d["n"] = int64(9) }, []string{id})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := s.Get(filter.Eq("name", "a"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if n, _ := doc.AsInt(got["n"]); n != 9 {
			t.Errorf("updated n = %v, want 9", got["n"])
		}
		other, err := s.Get(filter.Eq("name", "b"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if n, _ := doc.AsInt(other["n"]); n != 1 {
			t.Errorf("untouched doc changed: n = %v", other["n"])
		}
	})

	t.Run("UpsertReplacesKeepingID", func(t *testing.T) {
		s := newStore(t)
		id := mustInsert(t, s, doc.Doc{"name": "a", "n": int64(1)})

		err := s.Upsert(doc.Doc{"name": "a", "n": int64(2)}, filter.Eq("name", "a"))
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		docs, err := s.Search(filter.All())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("expected 1 doc after upsert, got %d", len(docs))
		}
		if doc.ID(docs[0]) != id {
			t.Errorf("upsert changed the id: %q != %q", doc.ID(docs[0]), id)
		}
		if n, _ := doc.AsInt(docs[0]["n"]); n != 2 {
			t.Errorf("upserted n = %v, want 2", docs[0]["n"])
		}
	})

	t.Run("UpsertInsertsWhenNoMatch", func(t *testing.T) {
		s := newStore(t)
		err := s.Upsert(doc.Doc{"name": "new"}, filter.Eq("name", "new"))
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if _, err := s.Get(filter.Eq("name", "new")); err != nil {
			t.Fatalf("Get after upsert-insert: %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t)
		mustInsert(t, s, doc.Doc{"name": "a"})
		mustInsert(t, s, doc.Doc{"name": "b"})
		if err := s.Remove(filter.Eq("name", "a")); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		n, err := s.Count(filter.All())
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 doc after remove, got %d", n)
		}
	})

	t.Run("RemoveIDs", func(t *testing.T) {
		s := newStore(t)
		a := mustInsert(t, s, doc.Doc{"name": "a"})
		mustInsert(t, s, doc.Doc{"name": "b"})
		c := mustInsert(t, s, doc.Doc{"name": "c"})
		if err := s.RemoveIDs(a, c, "unknown"); err != nil {
			t.Fatalf("RemoveIDs: %v", err)
		}
		docs, err := s.Search(filter.All())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(docs) != 1 || docs[0]["name"] != "b" {
			t.Errorf("expected only doc b to survive, got %v", docs)
		}
	})

	t.Run("Purge", func(t *testing.T) {
		s := newStore(t)
		mustInsert(t, s, doc.Doc{"name": "a"})
		if err := s.Purge(); err != nil {
			t.Fatalf("Purge: %v", err)
		}
		n, err := s.Count(filter.All())
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 0 {
			t.Errorf("expected empty store after purge, got %d docs", n)
		}
	})
}

func mustInsert(t *testing.T, s store.Store, d doc.Doc) string {
	t.Helper()
	id, err := s.Insert(d)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return id
}
