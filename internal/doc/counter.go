package doc

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// TopValue is one ranked aggregation result.
type TopValue struct {
	Value any
	Count int
}

// Counter accumulates weighted value frequencies. Values are keyed by
// their canonical msgpack encoding, so composite values (tuples of mixed
// arity) count correctly alongside scalars. Ties rank by first-seen order.
type Counter struct {
	counts  map[string]int
	seen    map[string]int
	display map[string]any
	next    int
	err     error
}

func NewCounter() *Counter {
	return &Counter{
		counts:  make(map[string]int),
		seen:    make(map[string]int),
		display: make(map[string]any),
	}
}

// Add counts one occurrence of v with the given weight. A value that
// cannot be keyed is not counted; the failure is kept for Err.
func (c *Counter) Add(v any, weight int) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		if c.err == nil {
			c.err = fmt.Errorf("count value: %w", err)
		}
		return
	}
	key := string(raw)
	if _, ok := c.seen[key]; !ok {
		c.seen[key] = c.next
		c.next++
		c.display[key] = v
	}
	c.counts[key] += weight
}

// Err returns the first keying failure seen by Add, or nil.
func (c *Counter) Err() error { return c.err }

// DistinctTuples collects the distinct tuples extract produces over docs,
// in first-seen order, or sorted element-wise with CompareTuples when
// ordered is set.
func DistinctTuples(docs []Doc, extract func(Doc) []any, ordered bool) ([][]any, error) {
	seen := make(map[string]struct{})
	var out [][]any
	for _, d := range docs {
		tuple := extract(d)
		raw, err := msgpack.Marshal(tuple)
		if err != nil {
			return nil, fmt.Errorf("tuple key: %w", err)
		}
		if _, ok := seen[string(raw)]; ok {
			continue
		}
		seen[string(raw)] = struct{}{}
		out = append(out, tuple)
	}
	if ordered {
		sort.SliceStable(out, func(i, j int) bool {
			return CompareTuples(out[i], out[j]) < 0
		})
	}
	return out, nil
}

// Top returns the n highest-frequency values, counts non-increasing,
// ties in first-seen order. Fewer than n entries are returned when fewer
// values were counted.
func (c *Counter) Top(n int) []TopValue {
	keys := make([]string, 0, len(c.counts))
	for key := range c.counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := c.counts[keys[i]], c.counts[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return c.seen[keys[i]] < c.seen[keys[j]]
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	out := make([]TopValue, len(keys))
	for i, key := range keys {
		out[i] = TopValue{Value: c.display[key], Count: c.counts[key]}
	}
	return out
}
