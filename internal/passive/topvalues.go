package passive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
)

// ErrBadPseudoField rejects malformed aggregation field arguments.
var ErrBadPseudoField = errors.New("invalid aggregation field")

// TopValues ranks the most common values of a field across matching
// records, highest count first, ties in first-seen order, at most topN
// entries.
//
// distinct counts one occurrence per record; otherwise each record
// weighs in with its own merged occurrence count. The pseudo-field
// "net" / "net:<bits>" groups IPv4 records by CIDR prefix (default /24)
// instead of a stored path.
func (db *DB) TopValues(field string, flt filter.Expr, distinct bool, topN int, opts GetOptions) ([]doc.TopValue, error) {
	if flt == nil {
		flt = filter.All()
	}
	counter := doc.NewCounter()

	if field == "net" || strings.HasPrefix(field, "net:") {
		bits := 24
		if _, arg, found := strings.Cut(field, ":"); found {
			var err error
			if bits, err = strconv.Atoi(arg); err != nil || bits < 0 || bits > 32 {
				return nil, fmt.Errorf("%w: %q", ErrBadPseudoField, field)
			}
		}
		recs, err := db.searchInternal(filter.And(flt, IPv4()), opts)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			a, ok := rec["addr"].(codec.Addr)
			if !ok {
				continue
			}
			weight := 1
			if !distinct {
				if c, ok := doc.AsInt(rec["count"]); ok {
					weight = c
				}
			}
			counter.Add(fmt.Sprintf("%s/%d", a.MaskPrefix(bits), bits), weight)
		}
		if err := counter.Err(); err != nil {
			return nil, err
		}
		return counter.Top(topN), nil
	}

	recs, err := db.searchInternal(filter.And(flt, filter.Exists(field)), opts)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if distinct {
			for v := range doc.Values(rec, field, db.reg) {
				counter.Add(v, 1)
			}
		} else {
			for v, w := range doc.WeightedValues(rec, field, "count", db.reg) {
				counter.Add(v, w)
			}
		}
	}
	if err := counter.Err(); err != nil {
		return nil, err
	}
	return counter.Top(topN), nil
}

// PortFeatures returns the distinct (port[, service[, product[,
// version]]]) tuples across matching records. Tuples sort element-wise
// with absent values first unless unsorted is set.
func (db *DB) PortFeatures(flt filter.Expr, unsorted, useService, useProduct, useVersion bool) ([][]any, error) {
	if flt == nil {
		flt = filter.All()
	}
	recs, err := db.searchInternal(filter.And(flt, filter.Exists("port")), GetOptions{})
	if err != nil {
		return nil, err
	}

	extract := func(rec doc.Doc) []any {
		infos, _ := rec["infos"].(doc.Doc)
		tuple := []any{rec["port"]}
		if useService {
			tuple = append(tuple, infos["service_name"])
			if useProduct {
				tuple = append(tuple, infos["service_product"])
				if useVersion {
					tuple = append(tuple, infos["service_version"])
				}
			}
		}
		return tuple
	}

	return doc.DistinctTuples(recs, extract, !unsorted)
}
