package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "nonexistent.yaml")); err == nil {
		t.Fatal("expected error loading a nonexistent config file")
	}
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.yaml")

	content := `
scraper:
  otelCollectorEndpoint: "localhost:4317"
  servicePort: 9090
  logLevel: "debug"
sources:
  - name: orders
    frequency: 5min
    baseUrl: https://api.example.com
    endpoint: /v1/orders
    scrape:
      type: instant
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scraper.ServicePort != 9090 {
		t.Errorf("ServicePort: got %d, want 9090", cfg.Scraper.ServicePort)
	}
	if cfg.Scraper.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Scraper.LogLevel, "debug")
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "orders" {
		t.Fatalf("expected one source named orders, got %+v", cfg.Sources)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.yaml")

	content := `
scraper:
  otelCollectorEndpoint: "localhost:4317"
  servicePort: 7677
sources: []
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("SCRAPER_SCRAPER_SERVICEPORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scraper.ServicePort != 8888 {
		t.Errorf("ServicePort with env override: got %d, want 8888", cfg.Scraper.ServicePort)
	}
}

func TestLoad_ValidationFailure_MissingEndpoint(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")

	content := `
scraper: {}
sources: []
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected validation error for missing otelCollectorEndpoint")
	}
}

func TestLoad_EnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.yaml")

	t.Setenv("TEST_COLLECTOR_ENDPOINT", "collector.internal:4317")

	content := `
scraper:
  otelCollectorEndpoint: "${TEST_COLLECTOR_ENDPOINT}"
sources: []
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scraper.OtelCollectorEndpoint != "collector.internal:4317" {
		t.Errorf("OtelCollectorEndpoint: got %q, want interpolated value", cfg.Scraper.OtelCollectorEndpoint)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scraper.ServicePort != DefaultServicePort {
		t.Errorf("ServicePort: got %d, want %d", cfg.Scraper.ServicePort, DefaultServicePort)
	}
	if cfg.Scraper.MaxGlobalConcurrency != DefaultMaxGlobalConcurrency {
		t.Errorf("MaxGlobalConcurrency: got %d, want %d", cfg.Scraper.MaxGlobalConcurrency, DefaultMaxGlobalConcurrency)
	}
	if cfg.Scraper.FingerprintStore.Backend != "sqlite" {
		t.Errorf("FingerprintStore.Backend: got %q, want sqlite", cfg.Scraper.FingerprintStore.Backend)
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	loadedConfigFile.Store("")
	if path := ConfigFilePath(); path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestGet_ReturnsDefaultWhenUnset(t *testing.T) {
	configPtr.Store(nil)
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get returned nil")
	}
	if cfg.Scraper.ServicePort != DefaultServicePort {
		t.Errorf("Get default ServicePort: got %d, want %d", cfg.Scraper.ServicePort, DefaultServicePort)
	}
}
