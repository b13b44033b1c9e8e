// Package passive stores and queries passive network observation events.
//
// Each record is one merged observation: a (sensor, recon type, source,
// value, ...) combination with an occurrence count and a first/last seen
// window. Repeated sightings of the same observation fold into one record
// through InsertOrUpdate instead of accumulating duplicates.
package passive

import (
	"errors"
	"log/slog"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
)

// InfoResolver derives the metadata block attached to a record when it is
// first created. It receives the caller-facing record and returns the
// derived info sub-document, or nil when nothing can be derived. It is
// never invoked again when later sightings fold into the record.
type InfoResolver func(doc.Doc) doc.Doc

// DB queries and maintains the passive observation collection.
type DB struct {
	store  store.Store
	reg    *schema.Registry
	logger *slog.Logger
}

// NewDB wraps a storage collaborator holding passive records.
func NewDB(st store.Store, logger *slog.Logger) *DB {
	return &DB{
		store:  st,
		reg:    schema.Passives(),
		logger: logging.Default(logger).With("component", "passive"),
	}
}

// GetOptions bound and shape a query's results.
type GetOptions struct {
	Fields []string
	Sort   []doc.SortKey
	Limit  int // 0 = unlimited
	Skip   int
}

// searchInternal streams matching records in storage form: sorted, then
// skipped/limited.
func (db *DB) searchInternal(flt filter.Expr, opts GetOptions) ([]doc.Doc, error) {
	if flt == nil {
		flt = filter.All()
	}
	recs, err := db.store.Search(flt)
	if err != nil {
		return nil, err
	}
	if len(opts.Sort) > 0 {
		doc.SortStable(recs, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(recs) {
			return nil, nil
		}
		recs = recs[opts.Skip:]
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// Get returns the records matching flt in caller-facing form.
func (db *DB) Get(flt filter.Expr, opts GetOptions) ([]doc.Doc, error) {
	recs, err := db.searchInternal(flt, opts)
	if err != nil {
		return nil, err
	}
	out := make([]doc.Doc, 0, len(recs))
	for _, rec := range recs {
		if opts.Fields != nil {
			rec = doc.Project(rec, opts.Fields, db.reg)
		}
		out = append(out, internal2rec(rec))
	}
	return out, nil
}

// GetOne returns the first record matching flt, or store.ErrNotFound.
func (db *DB) GetOne(flt filter.Expr, opts GetOptions) (doc.Doc, error) {
	opts.Limit = 1
	recs, err := db.Get(flt, opts)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// Count returns the number of records matching flt.
func (db *DB) Count(flt filter.Expr) (int, error) {
	if flt == nil {
		flt = filter.All()
	}
	return db.store.Count(flt)
}

// Insert stores one record without merging. The resolver, when given,
// attaches derived info first.
func (db *DB) Insert(spec doc.Doc, resolver InfoResolver) error {
	if resolver != nil {
		if infos := resolver(spec); infos != nil {
			spec = doc.Copy(spec)
			spec["infos"] = infos
		}
	}
	_, err := db.store.Insert(rec2internal(spec))
	return err
}

// InsertOrUpdate merges one observation into the collection.
//
// The match key is the equality conjunction over every stored field of
// the record except the derived info block and the occurrence count. When
// a record with the same key exists, it folds in place: the count grows
// by the incoming count (default 1), firstseen never increases, lastseen
// never decreases. Otherwise a record is created with count, firstseen
// and lastseen initialized from the observation, and the resolver runs
// once to attach derived info.
func (db *DB) InsertOrUpdate(timestamp any, spec doc.Doc, resolver InfoResolver, lastseen any) error {
	if spec == nil {
		return nil
	}
	orig := doc.Copy(spec)
	rec := rec2internal(spec)
	delete(rec, "infos")
	count := 1
	if c, ok := doc.AsInt(rec["count"]); ok {
		count = c
	}
	delete(rec, "count")

	ts, err := codec.ToTimestamp(timestamp)
	if err != nil {
		return err
	}
	ls := ts
	if lastseen != nil {
		if ls, err = codec.ToTimestamp(lastseen); err != nil {
			return err
		}
	}

	terms := make([]filter.Expr, 0, len(rec))
	for key, value := range rec {
		terms = append(terms, filter.Eq(key, value))
	}
	match := filter.And(terms...)

	cur, err := db.store.Get(match)
	switch {
	case err == nil:
		return db.store.Update(func(d doc.Doc) {
			if c, ok := doc.AsInt(d["count"]); ok {
				d["count"] = int64(c + count)
			} else {
				d["count"] = int64(count)
			}
			if first, ok := asInt64(d["firstseen"]); !ok || ts < first {
				d["firstseen"] = ts
			}
			if last, ok := asInt64(d["lastseen"]); !ok || ls > last {
				d["lastseen"] = ls
			}
		}, []string{doc.ID(cur)})
	case errors.Is(err, store.ErrNotFound):
		created := doc.Copy(rec)
		created["count"] = int64(count)
		created["firstseen"] = ts
		created["lastseen"] = ls
		if resolver != nil {
			if infos := resolver(orig); infos != nil {
				created["infos"] = infos
			}
		}
		db.logger.Debug("record created", "recontype", created["recontype"])
		return db.store.Upsert(created, match)
	default:
		return err
	}
}

// Remove deletes every record matching flt.
func (db *DB) Remove(flt filter.Expr) error {
	return db.store.Remove(flt)
}

// RemoveID deletes one record by identifier.
func (db *DB) RemoveID(id string) error {
	return db.store.RemoveIDs(id)
}

// Purge deletes the whole collection.
func (db *DB) Purge() error {
	db.logger.Debug("collection purged")
	return db.store.Purge()
}

// Close releases the underlying collection handle.
func (db *DB) Close() error {
	return db.store.Close()
}

// rec2internal converts a caller-facing record to storage form: address
// text parsed to its internal form, seen timestamps normalized to Unix
// seconds, captured certificates encoded to base64, identity dropped.
func rec2internal(spec doc.Doc) doc.Doc {
	rec := doc.Copy(spec)
	if s, ok := rec["addr"].(string); ok {
		if a, err := codec.ParseAddr(s); err == nil {
			rec["addr"] = a
		}
	}
	for _, fld := range []string{"firstseen", "lastseen"} {
		if v, ok := rec[fld]; ok {
			if ts, err := codec.ToTimestamp(v); err == nil {
				rec[fld] = ts
			}
		}
	}
	if rec["recontype"] == "SSL_SERVER" && rec["source"] == "cert" {
		if b, ok := rec["value"].([]byte); ok {
			rec["value"] = codec.ToBinary(b)
		}
	}
	delete(rec, doc.IDField)
	return rec
}

// internal2rec converts a stored record (already a private copy) to its
// caller-facing form, inverse of rec2internal; the identity key stays.
func internal2rec(rec doc.Doc) doc.Doc {
	if a, ok := rec["addr"].(codec.Addr); ok {
		rec["addr"] = a.String()
	}
	for _, fld := range []string{"firstseen", "lastseen"} {
		if ts, ok := asInt64(rec[fld]); ok {
			rec[fld] = codec.FromTimestamp(ts)
		}
	}
	if rec["recontype"] == "SSL_SERVER" && rec["source"] == "cert" {
		if s, ok := rec["value"].(string); ok {
			if b, err := codec.FromBinary(s); err == nil {
				rec["value"] = b
			}
		}
	}
	return rec
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
