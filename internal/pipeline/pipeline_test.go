package pipeline

import (
	"testing"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
	"github.com/allaspectsdev/otel-api-scraper/internal/testutil"
)

func TestApplyFilters_DropBeforeKeep(t *testing.T) {
	records := []Record{
		{"t": "ignore", "s": "ok"},
		{"s": "ok"},
		{"s": "fail"},
	}
	cfg := config.FiltersConfig{
		Drop: []config.DropRule{{Any: []config.MatchPredicate{{Field: "t", MatchType: "equals", Value: "ignore"}}}},
		Keep: []config.KeepRule{{All: []config.MatchPredicate{{Field: "s", MatchType: "equals", Value: "ok"}}}},
	}
	got := applyFilters(records, cfg)
	if len(got) != 1 || got[0]["s"] != "ok" || got[0]["t"] != nil {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestApplyLimit_Stable(t *testing.T) {
	records := []Record{{"i": 1.0}, {"i": 2.0}, {"i": 3.0}}
	got := applyLimit(records, 1)
	if len(got) != 1 || got[0]["i"] != 1.0 {
		t.Fatalf("applyLimit did not take the first record: %+v", got)
	}
	if all := applyLimit(records, 0); len(all) != 3 {
		t.Fatalf("applyLimit(0) should be unlimited, got %d", len(all))
	}
}

func TestPredicate_In(t *testing.T) {
	r := Record{"status": "ok"}
	p := config.MatchPredicate{Field: "status", MatchType: "in", Value: []interface{}{"ok", "warn"}}
	if !matchPredicate(r, p) {
		t.Fatal("expected candidate in expected sequence to match")
	}

	r2 := Record{"status": "ok,warn,fail"}
	p2 := config.MatchPredicate{Field: "status", MatchType: "in", Value: "ok"}
	if !matchPredicate(r2, p2) {
		t.Fatal("expected substring 'in' semantics to match")
	}
}

func TestPredicate_RegexAndNilCandidate(t *testing.T) {
	r := Record{"msg": "hello world"}
	p := config.MatchPredicate{Field: "msg", MatchType: "regex", Value: "wor.d"}
	if !matchPredicate(r, p) {
		t.Fatal("expected regex search to match")
	}

	missing := config.MatchPredicate{Field: "nope", MatchType: "equals", Value: "x"}
	if matchPredicate(r, missing) {
		t.Fatal("a missing (nil) candidate must never match")
	}
}

func TestDedup_ReorderYieldsOneKeep(t *testing.T) {
	fs := store.NewMemoryFingerprintStore(0)
	cfg := config.DeltaDetectionConfig{Enabled: true, FingerprintMode: "keys", FingerprintKeys: []string{"id"}}
	p := New("src", config.FiltersConfig{}, cfg, fs, time.Minute)

	records := []Record{{"id": "x", "v": 1.0}, {"id": "x", "v": 2.0}, {"id": "x", "v": 3.0}}
	got, err := p.Run(records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one surviving record, got %d", len(got))
	}
	stats := p.LastStats()
	if stats.Misses != 1 || stats.Hits != 2 || stats.Total != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDedup_SQLiteBackedStore(t *testing.T) {
	fs := testutil.NewTestFingerprintStore(t)
	cfg := config.DeltaDetectionConfig{Enabled: true, FingerprintMode: "full_record"}
	p := New("src", config.FiltersConfig{}, cfg, fs, time.Minute)

	first, err := p.Run([]Record{{"id": "a"}, {"id": "b"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected both fresh records kept, got %d", len(first))
	}

	second, err := p.Run([]Record{{"id": "a"}, {"id": "c"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(second) != 1 || second[0]["id"] != "c" {
		t.Fatalf("expected only the unseen record kept, got %+v", second)
	}
}

func TestDedup_TTLExpiryAllowsReinsertion(t *testing.T) {
	fs := store.NewMemoryFingerprintStore(0)
	cfg := config.DeltaDetectionConfig{Enabled: true, FingerprintMode: "keys", FingerprintKeys: []string{"id"}, TTLSeconds: 5}
	p := New("src", config.FiltersConfig{}, cfg, fs, time.Minute)

	first, err := p.Run([]Record{{"id": "x", "v": "a"}, {"id": "x", "v": "b"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(first))
	}

	fs.Advance(6 * time.Second)

	second, err := p.Run([]Record{{"id": "x", "v": "c"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected record to be kept again after TTL expiry, got %d", len(second))
	}
}
