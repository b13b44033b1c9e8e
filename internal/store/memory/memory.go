// Package memory implements an in-memory document store. All state is
// lost on process exit; it backs tests and throwaway scans.
package memory

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
)

// Store holds documents in insertion order.
type Store struct {
	mu     sync.RWMutex
	docs   []doc.Doc
	reg    *schema.Registry
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New(reg *schema.Registry, logger *slog.Logger) *Store {
	logger = logging.Default(logger).With("component", "store.memory")
	return &Store{reg: reg, logger: logger}
}

// NewFactory returns a factory creating in-memory stores. No parameters
// are recognized.
func NewFactory() store.Factory {
	return func(_ map[string]string, reg *schema.Registry, logger *slog.Logger) (store.Store, error) {
		return New(reg, logger), nil
	}
}

func (s *Store) Search(e filter.Expr) ([]doc.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []doc.Doc
	for _, d := range s.docs {
		if filter.Matches(e, d, s.reg) {
			out = append(out, doc.Copy(d))
		}
	}
	return out, nil
}

func (s *Store) Count(e filter.Expr) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.docs {
		if filter.Matches(e, d, s.reg) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Get(e filter.Expr) (doc.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if filter.Matches(e, d, s.reg) {
			return doc.Copy(d), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) Insert(d doc.Doc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(d), nil
}

func (s *Store) insertLocked(d doc.Doc) string {
	d = doc.Copy(d)
	id := doc.ID(d)
	if id == "" {
		id = uuid.NewString()
		d[doc.IDField] = id
	}
	s.docs = append(s.docs, d)
	return id
}

func (s *Store) Update(transform func(doc.Doc), ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := idSet(ids)
	for _, d := range s.docs {
		if _, ok := wanted[doc.ID(d)]; ok {
			transform(d)
		}
	}
	return nil
}

func (s *Store) Upsert(d doc.Doc, match filter.Expr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.docs {
		if filter.Matches(match, cur, s.reg) {
			repl := doc.Copy(d)
			repl[doc.IDField] = doc.ID(cur)
			s.docs[i] = repl
			return nil
		}
	}
	s.insertLocked(d)
	return nil
}

func (s *Store) Remove(e filter.Expr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.docs[:0]
	for _, d := range s.docs {
		if !filter.Matches(e, d, s.reg) {
			kept = append(kept, d)
		}
	}
	s.docs = kept
	return nil
}

func (s *Store) RemoveIDs(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := idSet(ids)
	kept := s.docs[:0]
	for _, d := range s.docs {
		if _, ok := wanted[doc.ID(d)]; !ok {
			kept = append(kept, d)
		}
	}
	s.docs = kept
	return nil
}

func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	return nil
}

// Close is a no-op; there is nothing to release.
func (s *Store) Close() error { return nil }

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
