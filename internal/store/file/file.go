// Package file implements a document store persisted as a single
// zstd-compressed msgpack snapshot per collection.
//
// The snapshot is loaded lazily on first access and rewritten atomically
// (temp-file-then-rename) after every mutation. Close drops the in-memory
// state; any later call transparently reloads from disk.
package file

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
)

// Factory parameter keys.
const (
	ParamPath     = "path"
	ParamFileMode = "fileMode"
)

const DefaultFileMode = 0o644

var ErrMissingPathParam = errors.New("missing required parameter: path")

// zstdDec is a package-level decoder, concurrent-safe, always available
// for reads.
var zstdDec *zstd.Decoder

// zstdEnc is a package-level encoder used only through EncodeAll.
var zstdEnc *zstd.Encoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
	zstdEnc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic("zstd: init encoder: " + err.Error())
	}
}

// Store is a file-backed document collection.
type Store struct {
	mu     sync.Mutex
	path   string
	mode   os.FileMode
	reg    *schema.Registry
	logger *slog.Logger

	docs   []doc.Doc
	loaded bool
}

var _ store.Store = (*Store)(nil)

// New returns a store persisting to path. The file is not touched until
// the first access.
func New(path string, mode os.FileMode, reg *schema.Registry, logger *slog.Logger) *Store {
	logger = logging.Default(logger).With("component", "store.file", "path", path)
	return &Store{path: path, mode: mode, reg: reg, logger: logger}
}

// NewFactory returns a factory creating file-backed stores. The "path"
// parameter is required; "fileMode" takes an octal mode.
func NewFactory() store.Factory {
	return func(params map[string]string, reg *schema.Registry, logger *slog.Logger) (store.Store, error) {
		path, ok := params[ParamPath]
		if !ok || path == "" {
			return nil, ErrMissingPathParam
		}
		mode := os.FileMode(DefaultFileMode)
		if v, ok := params[ParamFileMode]; ok {
			n, err := strconv.ParseUint(v, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", ParamFileMode, err)
			}
			mode = os.FileMode(n)
		}
		return New(path, mode, reg, logger), nil
	}
}

// load reads the snapshot if it has not been loaded yet. A missing file
// is an empty collection.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	raw, err := os.ReadFile(filepath.Clean(s.path))
	if errors.Is(err, os.ErrNotExist) {
		s.docs = nil
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	payload, err := zstdDec.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.UseLooseInterfaceDecoding(true)
	var docs []doc.Doc
	if err := dec.Decode(&docs); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	s.docs = docs
	s.loaded = true
	s.logger.Debug("snapshot loaded", "docs", len(docs))
	return nil
}

// persist rewrites the snapshot atomically via temp-file-then-rename.
func (s *Store) persist() error {
	payload, err := msgpack.Marshal(s.docs)
	if err != nil {
		return err
	}
	raw := zstdEnc.EncodeAll(payload, nil)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if _, err := tmp.Write(raw); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(s.mode); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *Store) Search(e filter.Expr) ([]doc.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	var out []doc.Doc
	for _, d := range s.docs {
		if filter.Matches(e, d, s.reg) {
			out = append(out, doc.Copy(d))
		}
	}
	return out, nil
}

func (s *Store) Count(e filter.Expr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, err
	}
	n := 0
	for _, d := range s.docs {
		if filter.Matches(e, d, s.reg) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Get(e filter.Expr) (doc.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
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
	if err := s.load(); err != nil {
		return "", err
	}
	id := s.insertLocked(d)
	if err := s.persist(); err != nil {
		return "", err
	}
	return id, nil
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
	if err := s.load(); err != nil {
		return err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	touched := false
	for _, d := range s.docs {
		if _, ok := wanted[doc.ID(d)]; ok {
			transform(d)
			touched = true
		}
	}
	if !touched {
		return nil
	}
	return s.persist()
}

func (s *Store) Upsert(d doc.Doc, match filter.Expr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	replaced := false
	for i, cur := range s.docs {
		if filter.Matches(match, cur, s.reg) {
			repl := doc.Copy(d)
			repl[doc.IDField] = doc.ID(cur)
			s.docs[i] = repl
			replaced = true
			break
		}
	}
	if !replaced {
		s.insertLocked(d)
	}
	return s.persist()
}

func (s *Store) Remove(e filter.Expr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	kept := s.docs[:0]
	for _, d := range s.docs {
		if !filter.Matches(e, d, s.reg) {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(s.docs) {
		return nil
	}
	s.docs = kept
	return s.persist()
}

func (s *Store) RemoveIDs(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	kept := s.docs[:0]
	for _, d := range s.docs {
		if _, ok := wanted[doc.ID(d)]; !ok {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(s.docs) {
		return nil
	}
	s.docs = kept
	return s.persist()
}

// Purge deletes the collection and its snapshot file.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger.Debug("collection purged")
	return nil
}

// Close drops the in-memory state. The next call reloads the snapshot.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.loaded = false
	return nil
}
