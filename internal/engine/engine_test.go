package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/gateway"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
	"github.com/allaspectsdev/otel-api-scraper/internal/telemetry"
)

// newTestEngine wires a real engine around in-memory stores, a dry-run
// emitter, and a TLS-free gateway, the same shape the runner builds in
// production minus the OTLP exporters.
func newTestEngine(t *testing.T, sources ...config.SourceConfig) (*Engine, store.StateStore) {
	t.Helper()

	cfg := &config.Config{
		Scraper: config.ScraperSettings{
			DryRun:                   true,
			ServiceName:              "engine-test",
			MaxGlobalConcurrency:     8,
			DefaultSourceConcurrency: 4,
			DefaultTimeFormat:        "2006-01-02T15:04:05Z07:00",
			FingerprintStore: config.FingerprintStoreConfig{
				DefaultTTLSeconds: 3600,
			},
		},
		Sources: sources,
	}

	fpStore := store.NewMemoryFingerprintStore(0)
	state := store.NewMemoryStateStore()
	gw := gateway.New(cfg.Scraper.MaxGlobalConcurrency, false)
	t.Cleanup(func() { gw.Close() })

	emitter, err := telemetry.New(context.Background(), cfg.Scraper, zerolog.Nop())
	if err != nil {
		t.Fatalf("telemetry.New: %v", err)
	}
	t.Cleanup(func() { emitter.Shutdown(context.Background()) })

	eng, err := New(cfg, gw, fpStore, state, emitter, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.Shutdown(ctx)
	})
	return eng, state
}

func TestScrapeSource_InstantAdvancesWatermark(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"a":1},{"a":2}]`))
	}))
	defer srv.Close()

	src := config.SourceConfig{
		Name:      "widgets",
		Frequency: "5min",
		BaseURL:   srv.URL,
		Endpoint:  "/records",
		Scrape:    config.ScrapeSpec{Type: "instant", HTTPMethod: http.MethodGet},
	}
	eng, state := newTestEngine(t, src)

	before := time.Now().UTC()
	if err := eng.ScrapeSource(context.Background(), "widgets"); err != nil {
		t.Fatalf("ScrapeSource: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 fetch for an instant scrape, got %d", got)
	}
	wm, ok, err := state.LastSuccess("widgets")
	if err != nil || !ok {
		t.Fatalf("expected a committed watermark, got ok=%v err=%v", ok, err)
	}
	if wm.Before(before.Add(-time.Second)) {
		t.Fatalf("watermark %v predates the tick", wm)
	}
}

func TestScrapeSource_FirstScrapeDisabledFetchesNothing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	src := config.SourceConfig{
		Name:      "events",
		Frequency: "5min",
		BaseURL:   srv.URL,
		Endpoint:  "/events",
		Scrape: config.ScrapeSpec{
			Type:           "range",
			HTTPMethod:     http.MethodGet,
			RunFirstScrape: false,
			RangeKeys:      &config.RangeKeys{StartKey: "from", EndKey: "to"},
		},
	}
	eng, state := newTestEngine(t, src)

	if err := eng.ScrapeSource(context.Background(), "events"); err != nil {
		t.Fatalf("ScrapeSource: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no fetches on a skipped first scrape, got %d", got)
	}
	if _, ok, _ := state.LastSuccess("events"); !ok {
		t.Fatal("skipped first scrape must still set the watermark")
	}
}

func TestScrapeSource_ParallelWindowFailureBlocksCommit(t *testing.T) {
	var calls, failures int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 3 {
			atomic.AddInt32(&failures, 1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"x"}]}`))
	}))
	defer srv.Close()

	src := config.SourceConfig{
		Name:      "events",
		Frequency: "5min",
		BaseURL:   srv.URL,
		Endpoint:  "/events",
		DataKey:   "data",
		Scrape: config.ScrapeSpec{
			Type:           "range",
			HTTPMethod:     http.MethodGet,
			ParallelWindow: &config.ParallelWindow{Unit: "minutes", Value: 1},
			RangeKeys:      &config.RangeKeys{StartKey: "from", EndKey: "to"},
		},
	}
	eng, state := newTestEngine(t, src)

	// A watermark just under 5 minutes back plans exactly 5 one-minute
	// windows (the tail is truncated to tickStart).
	watermark := time.Now().UTC().Add(-5*time.Minute + 100*time.Millisecond)
	if err := state.SetLastSuccess("events", watermark); err != nil {
		t.Fatalf("seeding watermark: %v", err)
	}

	if err := eng.ScrapeSource(context.Background(), "events"); err != nil {
		t.Fatalf("ScrapeSource: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Fatalf("expected exactly 5 window fetches, got %d", got)
	}
	if got := atomic.LoadInt32(&failures); got != 1 {
		t.Fatalf("expected the failure injection to fire once, got %d", got)
	}
	wm, ok, _ := state.LastSuccess("events")
	if !ok {
		t.Fatal("watermark row vanished")
	}
	if !wm.Equal(watermark) {
		t.Fatalf("errored tick advanced the watermark: %v -> %v", watermark, wm)
	}
}

func TestScrapeSource_ShapeMismatchBlocksCommit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	src := config.SourceConfig{
		Name:      "widgets",
		Frequency: "5min",
		BaseURL:   srv.URL,
		Endpoint:  "/records",
		Scrape:    config.ScrapeSpec{Type: "instant", HTTPMethod: http.MethodGet},
	}
	eng, state := newTestEngine(t, src)

	if err := eng.ScrapeSource(context.Background(), "widgets"); err != nil {
		t.Fatalf("ScrapeSource: %v", err)
	}
	if _, ok, _ := state.LastSuccess("widgets"); ok {
		t.Fatal("a SHAPE_MISMATCH tick must not commit a watermark")
	}
}

func TestScrapeSource_RootMappingAgainstListPayloadBlocksCommit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"a":1}]`))
	}))
	defer srv.Close()

	src := config.SourceConfig{
		Name:      "widgets",
		Frequency: "5min",
		BaseURL:   srv.URL,
		Endpoint:  "/records",
		Scrape:    config.ScrapeSpec{Type: "instant", HTTPMethod: http.MethodGet},
		GaugeReadings: []config.GaugeReading{
			{Name: "g", DataKey: "$root.meta.total"},
		},
	}
	eng, state := newTestEngine(t, src)

	if err := eng.ScrapeSource(context.Background(), "widgets"); err != nil {
		t.Fatalf("ScrapeSource: %v", err)
	}
	if _, ok, _ := state.LastSuccess("widgets"); ok {
		t.Fatal("$root.* against a list payload must not commit a watermark")
	}
}

func TestScrapeSource_UnknownSource(t *testing.T) {
	eng, _ := newTestEngine(t)
	err := eng.ScrapeSource(context.Background(), "nope")
	if !IsUnknownSource(err) {
		t.Fatalf("expected the unknown-source sentinel, got %v", err)
	}
}

func TestScrapeSource_DedupAcrossTicks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","v":"a"}]`))
	}))
	defer srv.Close()

	src := config.SourceConfig{
		Name:      "widgets",
		Frequency: "5min",
		BaseURL:   srv.URL,
		Endpoint:  "/records",
		Scrape:    config.ScrapeSpec{Type: "instant", HTTPMethod: http.MethodGet},
		DeltaDetection: config.DeltaDetectionConfig{
			Enabled:         true,
			FingerprintMode: "keys",
			FingerprintKeys: []string{"id"},
			TTLSeconds:      60,
		},
	}
	eng, _ := newTestEngine(t, src)

	for i := 0; i < 2; i++ {
		if err := eng.ScrapeSource(context.Background(), "widgets"); err != nil {
			t.Fatalf("ScrapeSource #%d: %v", i+1, err)
		}
	}
	sr := eng.sources["widgets"]
	stats := sr.pipeline.LastStats()
	if stats.Hits != 1 || stats.Misses != 0 {
		t.Fatalf("second tick should dedup the repeated record, stats=%+v", stats)
	}
}
