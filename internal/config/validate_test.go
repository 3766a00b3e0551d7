package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Scraper.OtelCollectorEndpoint = "localhost:4317"
	cfg.Sources = []SourceConfig{
		{
			Name:      "orders",
			Frequency: "5min",
			BaseURL:   "https://api.example.com",
			Endpoint:  "/v1/orders",
			Scrape:    ScrapeSpec{Type: "instant", HTTPMethod: "GET"},
		},
	}
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_MissingCollectorEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Scraper.OtelCollectorEndpoint = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing otelCollectorEndpoint")
	}
	if !strings.Contains(err.Error(), "otelCollectorEndpoint") {
		t.Errorf("error should mention otelCollectorEndpoint: %v", err)
	}
}

func TestValidate_BadTransport(t *testing.T) {
	cfg := validConfig()
	cfg.Scraper.OtelTransport = "carrier-pigeon"

	if err := validate(cfg); err == nil {
		t.Fatal("expected error for bad otelTransport")
	}
}

func TestValidate_ZeroConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Scraper.MaxGlobalConcurrency = 0

	if err := validate(cfg); err == nil {
		t.Fatal("expected error for maxGlobalConcurrency=0")
	}
}

func TestValidate_AdminApiRequiresSecretEnv(t *testing.T) {
	cfg := validConfig()
	cfg.Scraper.EnableAdminAPI = true
	cfg.Scraper.AdminSecretEnv = ""

	if err := validate(cfg); err == nil {
		t.Fatal("expected error when enableAdminApi is set without adminSecretEnv")
	}
}

func TestValidate_RedisBackendNormalizesToValkey(t *testing.T) {
	cfg := validConfig()
	cfg.Scraper.FingerprintStore.Backend = "redis"

	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Scraper.FingerprintStore.Backend != "valkey" {
		t.Errorf("backend: got %q, want valkey", cfg.Scraper.FingerprintStore.Backend)
	}
}

func TestValidate_DuplicateSourceName(t *testing.T) {
	cfg := validConfig()
	cfg.Sources = append(cfg.Sources, cfg.Sources[0])

	if err := validate(cfg); err == nil {
		t.Fatal("expected error for duplicate source name")
	}
}

func TestValidate_RangeScrapeRequiresRangeKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Scrape = ScrapeSpec{Type: "range"}

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for range scrape without rangeKeys")
	}
	if !strings.Contains(err.Error(), "rangeKeys") {
		t.Errorf("error should mention rangeKeys: %v", err)
	}
}

func TestValidate_OAuthRequiresTokenOrRuntimeCreds(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Auth = &AuthConfig{Type: "oauth"}

	if err := validate(cfg); err == nil {
		t.Fatal("expected error for oauth auth missing token and runtime credentials")
	}
}
