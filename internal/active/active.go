// Package active stores and queries host records produced by active
// scanning. Each record describes one host at scan time: its address,
// open ports with service fingerprints and script results, traceroute
// data and OS detection. Scan session documents live in a side
// collection and are garbage-collected when their last host goes away.
package active

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
)

// ErrDuplicateScan rejects storing a scan document whose identifier is
// already present.
var ErrDuplicateScan = errors.New("duplicate scan document")

// DB queries and maintains a host collection and its scan document side
// collection.
type DB struct {
	store  store.Store
	scans  store.Store
	reg    *schema.Registry
	logger *slog.Logger
}

// NewDB wraps the two storage collaborators holding host records and
// scan documents.
func NewDB(hosts, scans store.Store, logger *slog.Logger) *DB {
	return &DB{
		store:  hosts,
		scans:  scans,
		reg:    schema.Hosts(),
		logger: logging.Default(logger).With("component", "active"),
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

// Get returns the host records matching flt in caller-facing form.
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
		out = append(out, internal2host(rec))
	}
	return out, nil
}

// GetOne returns the first host record matching flt, or store.ErrNotFound.
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

// Count returns the number of host records matching flt.
func (db *DB) Count(flt filter.Expr) (int, error) {
	if flt == nil {
		flt = filter.All()
	}
	return db.store.Count(flt)
}

// Distinct returns the distinct values of a field across matching
// records, in first-seen order.
func (db *DB) Distinct(field string, flt filter.Expr, opts GetOptions) ([]any, error) {
	if flt == nil {
		flt = filter.All()
	}
	recs, err := db.searchInternal(filter.And(flt, filter.Exists(field)), opts)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []any
	for _, rec := range recs {
		for v := range doc.Values(internal2host(rec), field, db.reg) {
			key, err := msgpack.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("distinct value: %w", err)
			}
			if _, dup := seen[string(key)]; dup {
				continue
			}
			seen[string(key)] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

// StoreHost inserts one host record, converting addresses and scan times
// to storage form and assigning an identifier when missing.
func (db *DB) StoreHost(host doc.Doc) (string, error) {
	id, err := db.store.Insert(host2internal(host))
	if err != nil {
		return "", err
	}
	db.logger.Debug("host stored", "id", id)
	return id, nil
}

// Remove deletes one host record, as returned by Get. Scan documents no
// longer referenced by any remaining host are deleted too.
func (db *DB) Remove(rec doc.Doc) error {
	scanids, _ := rec["scanid"].([]any)
	if err := db.store.RemoveIDs(doc.ID(rec)); err != nil {
		return err
	}
	return db.removeOrphanScans(scanids)
}

// RemoveID is Remove by host identifier.
func (db *DB) RemoveID(id string) error {
	var scanids []any
	if rec, err := db.store.Get(filter.Eq(doc.IDField, id)); err == nil {
		scanids, _ = rec["scanid"].([]any)
	}
	if err := db.store.RemoveIDs(id); err != nil {
		return err
	}
	return db.removeOrphanScans(scanids)
}

func (db *DB) removeOrphanScans(scanids []any) error {
	for _, v := range scanids {
		id, ok := v.(string)
		if !ok {
			continue
		}
		n, err := db.store.Count(filter.Contains("scanid", id))
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if err := db.scans.RemoveIDs(id); err != nil {
			return err
		}
		db.logger.Debug("orphaned scan document removed", "scan", id)
	}
	return nil
}

// StoreScanDoc inserts one scan session document. A document whose
// identifier is already present is rejected with ErrDuplicateScan and
// nothing is stored.
func (db *DB) StoreScanDoc(scan doc.Doc) (string, error) {
	rec := doc.Copy(scan)
	id := doc.ID(rec)
	if id == "" {
		id = uuid.NewString()
		rec[doc.IDField] = id
	} else {
		_, err := db.scans.Get(filter.Eq(doc.IDField, id))
		switch {
		case err == nil:
			return "", fmt.Errorf("%w: %q", ErrDuplicateScan, id)
		case !errors.Is(err, store.ErrNotFound):
			return "", err
		}
	}
	if _, err := db.scans.Insert(rec); err != nil {
		return "", err
	}
	db.logger.Debug("scan stored", "id", id)
	return id, nil
}

// GetScan returns one scan document by identifier, or store.ErrNotFound.
func (db *DB) GetScan(id string) (doc.Doc, error) {
	return db.scans.Get(filter.Eq(doc.IDField, id))
}

// HasScan reports whether a scan document with the identifier exists.
func (db *DB) HasScan(id string) (bool, error) {
	_, err := db.GetScan(id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Purge deletes both collections.
func (db *DB) Purge() error {
	db.logger.Debug("collections purged")
	return errors.Join(db.store.Purge(), db.scans.Purge())
}

// Close releases both collection handles.
func (db *DB) Close() error {
	return errors.Join(db.store.Close(), db.scans.Close())
}

// GetLocations returns the number of matching hosts per geographic
// coordinate pair, highest count first.
func (db *DB) GetLocations(flt filter.Expr) ([]doc.TopValue, error) {
	recs, err := db.searchInternal(flt, GetOptions{})
	if err != nil {
		return nil, err
	}
	counter := doc.NewCounter()
	for _, rec := range recs {
		infos, _ := rec["infos"].(doc.Doc)
		coords, ok := infos["coordinates"].([]any)
		if !ok || len(coords) == 0 {
			continue
		}
		counter.Add(coords, 1)
	}
	if err := counter.Err(); err != nil {
		return nil, err
	}
	return counter.Top(-1), nil
}

// GetAddrPorts returns, per matching host with ports, its address and
// the (state, port) pairs, plus the total number of port entries seen.
func (db *DB) GetAddrPorts(flt filter.Expr, opts GetOptions) ([]doc.Doc, int, error) {
	recs, err := db.Get(flt, opts)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	var out []doc.Doc
	for _, rec := range recs {
		ports, _ := rec["ports"].([]any)
		total += len(ports)
		if len(ports) == 0 {
			continue
		}
		var kept []any
		for _, p := range ports {
			port, ok := p.(doc.Doc)
			if !ok {
				continue
			}
			state, ok := port["state_state"]
			if !ok {
				continue
			}
			kept = append(kept, doc.Doc{
				"state_state": state,
				"port":        port["port"],
			})
		}
		out = append(out, doc.Doc{"addr": rec["addr"], "ports": kept})
	}
	return out, total, nil
}

// GetAddrs returns the addresses of the matching hosts.
func (db *DB) GetAddrs(flt filter.Expr, opts GetOptions) ([]doc.Doc, int, error) {
	recs, err := db.Get(flt, opts)
	if err != nil {
		return nil, 0, err
	}
	out := make([]doc.Doc, 0, len(recs))
	for _, rec := range recs {
		out = append(out, doc.Doc{"addr": rec["addr"]})
	}
	return out, len(out), nil
}

// GetOpenPortCount returns, per matching host carrying an open port
// summary, its address, scan start time and open port count.
func (db *DB) GetOpenPortCount(flt filter.Expr, opts GetOptions) ([]doc.Doc, int, error) {
	recs, err := db.Get(flt, opts)
	if err != nil {
		return nil, 0, err
	}
	var out []doc.Doc
	for _, rec := range recs {
		op, _ := rec["openports"].(doc.Doc)
		count, ok := op["count"]
		if !ok {
			continue
		}
		out = append(out, doc.Doc{
			"addr":      rec["addr"],
			"starttime": rec["starttime"],
			"openports": doc.Doc{"count": count},
		})
	}
	return out, len(recs), nil
}

// PortFeatures returns the distinct (port[, service[, product[,
// version]]]) tuples across the ports of matching hosts. The host
// pseudo-port entry is excluded. Tuples sort element-wise with absent
// values first unless unsorted is set.
func (db *DB) PortFeatures(flt filter.Expr, unsorted, useService, useProduct, useVersion bool) ([][]any, error) {
	if flt == nil {
		flt = filter.All()
	}
	recs, err := db.searchInternal(filter.And(flt, filter.Exists("ports.port")), GetOptions{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out [][]any
	for _, rec := range recs {
		ports, _ := rec["ports"].([]any)
		for _, p := range ports {
			port, ok := p.(doc.Doc)
			if !ok {
				continue
			}
			if n, ok := doc.AsInt(port["port"]); ok && n == -1 {
				continue
			}
			tuple := []any{port["port"]}
			if useService {
				tuple = append(tuple, port["service_name"])
				if useProduct {
					tuple = append(tuple, port["service_product"])
					if useVersion {
						tuple = append(tuple, port["service_version"])
					}
				}
			}
			key, err := msgpack.Marshal(tuple)
			if err != nil {
				return nil, fmt.Errorf("port tuple key: %w", err)
			}
			if _, dup := seen[string(key)]; dup {
				continue
			}
			seen[string(key)] = struct{}{}
			out = append(out, tuple)
		}
	}
	if !unsorted {
		sort.SliceStable(out, func(i, j int) bool {
			return doc.CompareTuples(out[i], out[j]) < 0
		})
	}
	return out, nil
}

// host2internal converts a caller-facing host record to storage form:
// addresses parsed to their internal form, scan times normalized to Unix
// seconds, the scan reference wrapped into its list form.
func host2internal(host doc.Doc) doc.Doc {
	rec := doc.Copy(host)
	if s, ok := rec["scanid"].(string); ok {
		rec["scanid"] = []any{s}
	}
	if s, ok := rec["addr"].(string); ok {
		if a, err := codec.ParseAddr(s); err == nil {
			rec["addr"] = a
		}
	}
	for _, port := range subDocs(rec["ports"]) {
		if s, ok := port["state_reason_ip"].(string); ok {
			if a, err := codec.ParseAddr(s); err == nil {
				port["state_reason_ip"] = a
			}
		}
	}
	for _, trace := range subDocs(rec["traces"]) {
		for _, hop := range subDocs(trace["hops"]) {
			if s, ok := hop["ipaddr"].(string); ok {
				if a, err := codec.ParseAddr(s); err == nil {
					hop["ipaddr"] = a
				}
			}
		}
	}
	for _, fld := range []string{"starttime", "endtime"} {
		if v, ok := rec[fld]; ok {
			if ts, err := codec.ToTimestamp(v); err == nil {
				rec[fld] = ts
			}
		}
	}
	return rec
}

// internal2host converts a stored record (already a private copy) to its
// caller-facing form, inverse of host2internal; the identity key stays.
func internal2host(rec doc.Doc) doc.Doc {
	if a, ok := rec["addr"].(codec.Addr); ok {
		rec["addr"] = a.String()
	}
	for _, port := range subDocs(rec["ports"]) {
		if a, ok := port["state_reason_ip"].(codec.Addr); ok {
			port["state_reason_ip"] = a.String()
		}
	}
	for _, trace := range subDocs(rec["traces"]) {
		for _, hop := range subDocs(trace["hops"]) {
			if a, ok := hop["ipaddr"].(codec.Addr); ok {
				hop["ipaddr"] = a.String()
			}
		}
	}
	for _, fld := range []string{"starttime", "endtime"} {
		if ts, ok := asInt64(rec[fld]); ok {
			rec[fld] = codec.FromTimestamp(ts)
		}
	}
	return rec
}

// subDocs narrows an array value to its document elements.
func subDocs(v any) []doc.Doc {
	elems, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]doc.Doc, 0, len(elems))
	for _, elem := range elems {
		if sub, ok := elem.(doc.Doc); ok {
			out = append(out, sub)
		}
	}
	return out
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
