package passive

import (
	"errors"
	"testing"
	"time"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/logging"
	"github.com/btroidl/ivre/internal/schema"
	"github.com/btroidl/ivre/internal/store"
	"github.com/btroidl/ivre/internal/store/memory"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	return NewDB(memory.New(schema.Passives(), logging.Discard()), logging.Discard())
}

func obs(sensor, rectype, value string) doc.Doc {
	return doc.Doc{
		"sensor":    sensor,
		"recontype": rectype,
		"source":    "TEST",
		"value":     value,
	}
}

func TestInsertOrUpdateMergesSightings(t *testing.T) {
	db := newTestDB(t)

	// Three sightings of the same observation at t=10, 5, 20.
	for _, ts := range []int64{10, 5, 20} {
		if err := db.InsertOrUpdate(ts, obs("S", "DNS_ANSWER", "example.com"), nil, nil); err != nil {
			t.Fatalf("InsertOrUpdate(t=%d): %v", ts, err)
		}
	}

	recs, err := db.Get(nil, GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one merged record, got %d", len(recs))
	}
	rec := recs[0]
	if n, _ := doc.AsInt(rec["count"]); n != 3 {
		t.Errorf("count = %v, want 3", rec["count"])
	}
	if got := rec["firstseen"].(time.Time).Unix(); got != 5 {
		t.Errorf("firstseen = %d, want 5", got)
	}
	if got := rec["lastseen"].(time.Time).Unix(); got != 20 {
		t.Errorf("lastseen = %d, want 20", got)
	}
}

func TestInsertOrUpdateDistinctObservations(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertOrUpdate(int64(10), obs("S", "DNS_ANSWER", "example.com"), nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}
	if err := db.InsertOrUpdate(int64(10), obs("S", "DNS_ANSWER", "example.net"), nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}
	n, err := db.Count(nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestInsertOrUpdateIncomingCount(t *testing.T) {
	db := newTestDB(t)
	first := obs("S", "TCP_BANNER", "SSH-2.0")
	first["count"] = int64(5)
	if err := db.InsertOrUpdate(int64(10), first, nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}
	second := obs("S", "TCP_BANNER", "SSH-2.0")
	second["count"] = int64(2)
	if err := db.InsertOrUpdate(int64(12), second, nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}

	rec, err := db.GetOne(nil, GetOptions{})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if n, _ := doc.AsInt(rec["count"]); n != 7 {
		t.Errorf("count = %v, want 7", rec["count"])
	}
}

func TestInsertOrUpdateLastseenOverride(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertOrUpdate(int64(10), obs("S", "TCP_BANNER", "x"), nil, int64(50)); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}
	rec, err := db.GetOne(nil, GetOptions{})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if got := rec["firstseen"].(time.Time).Unix(); got != 10 {
		t.Errorf("firstseen = %d, want 10", got)
	}
	if got := rec["lastseen"].(time.Time).Unix(); got != 50 {
		t.Errorf("lastseen = %d, want 50", got)
	}
}

func TestResolverRunsOnlyAtCreation(t *testing.T) {
	db := newTestDB(t)
	calls := 0
	resolver := func(rec doc.Doc) doc.Doc {
		calls++
		return doc.Doc{"note": "derived"}
	}
	for _, ts := range []int64{10, 20, 30} {
		if err := db.InsertOrUpdate(ts, obs("S", "DNS_ANSWER", "example.com"), resolver, nil); err != nil {
			t.Fatalf("InsertOrUpdate: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("resolver ran %d times, want 1", calls)
	}
	rec, err := db.GetOne(nil, GetOptions{})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	infos, ok := rec["infos"].(doc.Doc)
	if !ok || infos["note"] != "derived" {
		t.Errorf("infos = %v, want derived note", rec["infos"])
	}
}

func TestAddrAndTimesConvertedOnGet(t *testing.T) {
	db := newTestDB(t)
	rec := obs("S", "TCP_BANNER", "hello")
	rec["addr"] = "192.0.2.1"
	if err := db.InsertOrUpdate(int64(1000), rec, nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}

	got, err := db.GetOne(nil, GetOptions{})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if got["addr"] != "192.0.2.1" {
		t.Errorf("addr = %v, want text form", got["addr"])
	}
	if _, ok := got["firstseen"].(time.Time); !ok {
		t.Errorf("firstseen = %T, want time.Time", got["firstseen"])
	}
}

func TestSearchPort(t *testing.T) {
	db := newTestDB(t)
	rec := obs("S", "TCP_SERVER_BANNER", "SSH-2.0")
	rec["port"] = int64(22)
	if err := db.InsertOrUpdate(int64(10), rec, nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}

	flt, err := Port(22, "tcp", "open", false)
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if n, _ := db.Count(flt); n != 1 {
		t.Errorf("port 22 should match, count = %d", n)
	}
	flt, err = Port(23, "tcp", "open", false)
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if n, _ := db.Count(flt); n != 0 {
		t.Errorf("port 23 should not match, count = %d", n)
	}

	if _, err := Port(22, "udp", "open", false); !errors.Is(err, ErrBadProtocol) {
		t.Errorf("udp: expected ErrBadProtocol, got %v", err)
	}
	if _, err := Port(22, "tcp", "closed", false); !errors.Is(err, ErrBadPortState) {
		t.Errorf("closed: expected ErrBadPortState, got %v", err)
	}
}

func TestSearchBuilders(t *testing.T) {
	db := newTestDB(t)
	seed := []doc.Doc{
		obs("sensor1", "DNS_ANSWER", "www.example.com"),
		obs("sensor2", "TCP_SERVER_BANNER", "SSH-2.0-OpenSSH_8.9"),
		{
			"sensor": "sensor1", "recontype": "HTTP_CLIENT_HEADER",
			"source": "USER-AGENT", "value": "curl/8.0",
		},
		{
			"sensor": "sensor1", "recontype": "HTTP_CLIENT_HEADER",
			"source": "AUTHORIZATION", "value": "Basic dXNlcjpwYXNz",
		},
	}
	for i, rec := range seed {
		if err := db.InsertOrUpdate(int64(10+i), rec, nil, nil); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	count := func(t *testing.T, flt filter.Expr) int {
		t.Helper()
		n, err := db.Count(flt)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		return n
	}

	if n := count(t, Sensor(filter.Exact("sensor1"), false)); n != 3 {
		t.Errorf("Sensor(sensor1) = %d, want 3", n)
	}
	if n := count(t, Sensor(filter.Exact("sensor1"), true)); n != 1 {
		t.Errorf("Sensor(sensor1, neg) = %d, want 1", n)
	}
	if n := count(t, DNS(filter.Exact("www.example.com"), false, false, "")); n != 1 {
		t.Errorf("DNS = %d, want 1", n)
	}
	ua, err := UserAgent(filter.Match{}, false)
	if err != nil {
		t.Fatalf("UserAgent: %v", err)
	}
	if n := count(t, ua); n != 1 {
		t.Errorf("UserAgent = %d, want 1", n)
	}
	if _, err := UserAgent(filter.Match{}, true); !errors.Is(err, ErrBadNegation) {
		t.Errorf("negated UserAgent: expected ErrBadNegation, got %v", err)
	}
	if n := count(t, BasicAuth()); n != 1 {
		t.Errorf("BasicAuth = %d, want 1", n)
	}
	if n := count(t, TCPBanner(filter.Exact("SSH-2.0-OpenSSH_8.9"))); n != 1 {
		t.Errorf("TCPBanner = %d, want 1", n)
	}
	m, err := filter.ParseMatch("/openssh/i")
	if err != nil {
		t.Fatalf("ParseMatch: %v", err)
	}
	if n := count(t, TCPBanner(m)); n != 1 {
		t.Errorf("TCPBanner pattern = %d, want 1", n)
	}
}

func TestSearchDNSSubdomains(t *testing.T) {
	db := newTestDB(t)
	resolver := func(rec doc.Doc) doc.Doc {
		return doc.Doc{"domain": []any{"www.example.com", "example.com", "com"}}
	}
	if err := db.InsertOrUpdate(int64(10), obs("S", "DNS_ANSWER", "www.example.com"), resolver, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}

	if n, _ := db.Count(DNS(filter.Exact("example.com"), false, true, "")); n != 1 {
		t.Error("subdomain search should match via the domain chain")
	}
	if n, _ := db.Count(DNS(filter.Exact("example.com"), false, false, "")); n != 0 {
		t.Error("plain search must not match a parent domain")
	}
}

func TestSearchNewerAndTimeAgo(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertOrUpdate(int64(100), obs("S", "TCP_BANNER", "x"), nil, nil); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}

	flt, err := Newer(int64(50), false, true)
	if err != nil {
		t.Fatalf("Newer: %v", err)
	}
	if n, _ := db.Count(flt); n != 1 {
		t.Error("record first seen at 100 is newer than 50")
	}
	flt, err = Newer(int64(100), false, true)
	if err != nil {
		t.Fatalf("Newer: %v", err)
	}
	if n, _ := db.Count(flt); n != 0 {
		t.Error("newer-than is strict")
	}
	// Sightings from 1970 are long past any recent window.
	if n, _ := db.Count(TimeAgo(time.Hour, false, true)); n != 0 {
		t.Error("TimeAgo(1h) should not match an epoch-era record")
	}
	if n, _ := db.Count(TimeAgo(time.Hour, true, true)); n != 1 {
		t.Error("negated TimeAgo should match an epoch-era record")
	}
}

func TestTopValuesDistinctVsWeighted(t *testing.T) {
	db := newTestDB(t)
	// banner "a" seen 5 times as one record, banner "b" seen once each
	// from two sensors.
	for range 5 {
		if err := db.InsertOrUpdate(int64(10), obs("S", "TCP_SERVER_BANNER", "a"), nil, nil); err != nil {
			t.Fatalf("InsertOrUpdate: %v", err)
		}
	}
	for _, sensor := range []string{"S", "T"} {
		if err := db.InsertOrUpdate(int64(10), obs(sensor, "TCP_SERVER_BANNER", "b"), nil, nil); err != nil {
			t.Fatalf("InsertOrUpdate: %v", err)
		}
	}

	// Distinct mode: one occurrence per record — b(2) over a(1).
	top, err := db.TopValues("value", nil, true, 10, GetOptions{})
	if err != nil {
		t.Fatalf("TopValues distinct: %v", err)
	}
	if len(top) != 2 || top[0].Value != "b" || top[0].Count != 2 || top[1].Count != 1 {
		t.Errorf("distinct top = %v, want b:2 a:1", top)
	}

	// Weighted mode: records weigh their merged count — a(5) over b(2).
	top, err = db.TopValues("value", nil, false, 10, GetOptions{})
	if err != nil {
		t.Fatalf("TopValues weighted: %v", err)
	}
	if len(top) != 2 || top[0].Value != "a" || top[0].Count != 5 || top[1].Count != 2 {
		t.Errorf("weighted top = %v, want a:5 b:2", top)
	}
}

func TestTopValuesNet(t *testing.T) {
	db := newTestDB(t)
	for i, addr := range []string{"192.0.2.1", "192.0.2.200", "198.51.100.1"} {
		rec := obs("S", "TCP_BANNER", string(rune('a'+i)))
		rec["addr"] = addr
		if err := db.InsertOrUpdate(int64(10), rec, nil, nil); err != nil {
			t.Fatalf("InsertOrUpdate: %v", err)
		}
	}

	top, err := db.TopValues("net", nil, true, 10, GetOptions{})
	if err != nil {
		t.Fatalf("TopValues net: %v", err)
	}
	if len(top) != 2 || top[0].Value != "192.0.2.0/24" || top[0].Count != 2 {
		t.Errorf("net top = %v, want 192.0.2.0/24:2 first", top)
	}

	top, err = db.TopValues("net:16", nil, true, 10, GetOptions{})
	if err != nil {
		t.Fatalf("TopValues net:16: %v", err)
	}
	if len(top) != 2 || top[0].Value != "192.0.0.0/16" {
		t.Errorf("net:16 top = %v, want 192.0.0.0/16 first", top)
	}

	if _, err := db.TopValues("net:garbage", nil, true, 10, GetOptions{}); !errors.Is(err, ErrBadPseudoField) {
		t.Errorf("expected ErrBadPseudoField, got %v", err)
	}
}

func TestTopValuesLimit(t *testing.T) {
	db := newTestDB(t)
	for i := range 5 {
		if err := db.InsertOrUpdate(int64(10), obs("S", "TCP_BANNER", string(rune('a'+i))), nil, nil); err != nil {
			t.Fatalf("InsertOrUpdate: %v", err)
		}
	}
	top, err := db.TopValues("value", nil, true, 3, GetOptions{})
	if err != nil {
		t.Fatalf("TopValues: %v", err)
	}
	if len(top) != 3 {
		t.Errorf("expected at most 3 entries, got %d", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i].Count > top[i-1].Count {
			t.Error("counts must be non-increasing")
		}
	}
}

func TestPortFeatures(t *testing.T) {
	db := newTestDB(t)
	seed := []struct {
		port    int64
		service string
	}{
		{443, "https"},
		{22, "ssh"},
		{22, "ssh"},
		{80, ""},
	}
	for i, s := range seed {
		rec := obs("S", "TCP_SERVER_BANNER", string(rune('a'+i)))
		rec["port"] = s.port
		if s.service != "" {
			rec["infos"] = doc.Doc{"service_name": s.service}
		}
		if err := db.Insert(rec, nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	tuples, err := db.PortFeatures(nil, false, true, false, false)
	if err != nil {
		t.Fatalf("PortFeatures: %v", err)
	}
	if len(tuples) != 3 {
		t.Fatalf("expected 3 distinct tuples, got %v", tuples)
	}
	// Sorted by port: 22, 80, 443.
	if n, _ := doc.AsInt(tuples[0][0]); n != 22 {
		t.Errorf("first tuple = %v, want port 22", tuples[0])
	}
	if n, _ := doc.AsInt(tuples[1][0]); n != 80 {
		t.Errorf("second tuple = %v, want port 80", tuples[1])
	}
	if tuples[1][1] != nil {
		t.Errorf("port 80 has no service, got %v", tuples[1][1])
	}
}

func TestGetOneNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetOne(filter.Eq("sensor", "nope"), GetOptions{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
