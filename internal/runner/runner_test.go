package runner

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		Scraper: config.ScraperSettings{
			DryRun:                   true,
			ServiceName:              "runner-test",
			MaxGlobalConcurrency:     4,
			DefaultSourceConcurrency: 2,
			DefaultTimeFormat:        "2006-01-02T15:04:05Z07:00",
			FingerprintStore: config.FingerprintStoreConfig{
				Backend:                "memory",
				MaxEntriesPerSource:    100,
				DefaultTTLSeconds:      3600,
				CleanupIntervalSeconds: 3600,
			},
		},
		Sources: []config.SourceConfig{
			{
				Name:      "widgets",
				Frequency: "5min",
				BaseURL:   "https://example.test",
				Endpoint:  "/widgets",
				Scrape:    config.ScrapeSpec{Type: "instant"},
			},
		},
	}
}

func TestNew_WiresEveryComponent(t *testing.T) {
	r, err := New(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Engine() == nil {
		t.Fatal("expected a non-nil engine")
	}
	if got := r.Engine().SourceNames(); len(got) != 1 || got[0] != "widgets" {
		t.Fatalf("expected [widgets], got %v", got)
	}
}

func TestStartAndShutdown_DoesNotBlockOrPanic(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(ctx)
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNew_SQLiteBackedConfigWiresAndShutsDown(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, testutil.NewTestConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.RunOnce(ctx)
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
