// Package testutil provides shared fixtures for exercising the stores,
// pipeline, and engine without a live OTLP collector or network access.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
)

// NewTestFingerprintStore creates a SQLite-backed FingerprintStore rooted in
// a temporary directory, closed automatically when the test completes.
func NewTestFingerprintStore(t *testing.T) store.FingerprintStore {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteFingerprintStore(filepath.Join(dir, "fingerprints.db"), 0, 0, 3, 0.01)
	if err != nil {
		t.Fatalf("failed to create test fingerprint store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewTestStateStore creates a SQLite-backed StateStore rooted in a
// temporary directory, closed automatically when the test completes.
func NewTestStateStore(t *testing.T) store.StateStore {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStateStore(filepath.Join(dir, "state.db"), 3, 0.01)
	if err != nil {
		t.Fatalf("failed to create test state store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewTestConfig returns a minimal valid Config for testing: dry-run (no
// OTLP exporters), a SQLite fingerprint store rooted in a temp directory,
// and a single instant source named "test-source".
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scraper.OtelCollectorEndpoint = "localhost:4317"
	cfg.Scraper.DryRun = true
	cfg.Scraper.FingerprintStore.SQLite.Path = filepath.Join(t.TempDir(), "fingerprints.db")
	cfg.Sources = []config.SourceConfig{SampleInstantSource("test-source")}
	return cfg
}

// TempDir creates a temporary directory for test data.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
