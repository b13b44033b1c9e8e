// Package store defines the storage collaborator used by the active and
// passive databases. A Store holds one collection of schemaless documents
// and answers filter queries against it.
//
// Backends are constructed through factory functions taking string
// parameter maps, so callers can select and configure a backend without
// importing it.
package store

import (
	"errors"
	"log/slog"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/schema"
)

var (
	// ErrNotFound is returned by Get when no document matches.
	ErrNotFound = errors.New("no matching document")
)

// Store is a single collection of documents.
//
// Returned documents are deep copies: mutating them never affects stored
// state. All mutation goes through Insert, Update, Upsert, Remove,
// RemoveIDs and Purge.
type Store interface {
	// Search returns every document matching e, in insertion order.
	Search(e filter.Expr) ([]doc.Doc, error)
	// Count returns the number of documents matching e.
	Count(e filter.Expr) (int, error)
	// Get returns the first document matching e, or ErrNotFound.
	Get(e filter.Expr) (doc.Doc, error)
	// Insert adds a document and returns its identifier. A missing _id is
	// assigned; an existing one is kept.
	Insert(d doc.Doc) (string, error)
	// Update applies transform in place to each document whose identifier
	// is listed. Unknown identifiers are ignored.
	Update(transform func(doc.Doc), ids []string) error
	// Upsert replaces the first document matching match with d (keeping
	// the stored identifier), or inserts d when nothing matches.
	Upsert(d doc.Doc, match filter.Expr) error
	// Remove deletes every document matching e.
	Remove(e filter.Expr) error
	// RemoveIDs deletes documents by identifier. Unknown identifiers are
	// ignored.
	RemoveIDs(ids ...string) error
	// Purge deletes the whole collection.
	Purge() error
	// Close releases backend resources. A closed store may transparently
	// reopen on the next call if the backend supports it.
	Close() error
}

// Factory creates a configured Store from backend-specific parameters.
// The registry tells the filter evaluator which document paths are
// array-valued.
type Factory func(params map[string]string, reg *schema.Registry, logger *slog.Logger) (Store, error)
