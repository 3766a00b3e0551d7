package config

import (
	"fmt"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// validate checks structural and cross-field constraints that mapstructure
// decoding alone cannot express, mirroring the grounded source's pydantic
// model_validators.
func validate(cfg *Config) error {
	s := &cfg.Scraper
	if s.OtelCollectorEndpoint == "" {
		return errs.ConfigInvalid(fmt.Errorf("scraper.otelCollectorEndpoint is required"))
	}
	if s.OtelTransport != "grpc" && s.OtelTransport != "http" {
		return errs.ConfigInvalid(fmt.Errorf("scraper.otelTransport must be grpc or http, got %q", s.OtelTransport))
	}
	if s.MaxGlobalConcurrency < 1 {
		return errs.ConfigInvalid(fmt.Errorf("scraper.maxGlobalConcurrency must be >= 1"))
	}
	if s.DefaultSourceConcurrency < 1 {
		return errs.ConfigInvalid(fmt.Errorf("scraper.defaultSourceConcurrency must be >= 1"))
	}
	if s.LogLevel != "" && !validLogLevel(s.LogLevel) {
		return errs.ConfigInvalid(fmt.Errorf("scraper.logLevel must be one of %v, got %q", ValidLogLevels, s.LogLevel))
	}
	if s.EnableAdminAPI && s.AdminSecretEnv == "" {
		return errs.ConfigInvalid(fmt.Errorf("enableAdminApi=true requires scraper.adminSecretEnv to be set to an env var name"))
	}
	switch s.FingerprintStore.Backend {
	case "sqlite":
	case "redis":
		s.FingerprintStore.Backend = "valkey"
	case "valkey":
	default:
		return errs.ConfigInvalid(fmt.Errorf("fingerprintStore.backend must be one of sqlite, valkey, redis, got %q", s.FingerprintStore.Backend))
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Name == "" {
			return errs.ConfigInvalid(fmt.Errorf("sources[%d].name is required", i))
		}
		if _, dup := seen[src.Name]; dup {
			return errs.ConfigInvalid(fmt.Errorf("duplicate source name %q", src.Name))
		}
		seen[src.Name] = struct{}{}
		if err := validateSource(src); err != nil {
			return errs.ConfigInvalid(fmt.Errorf("source %q: %w", src.Name, err))
		}
	}
	return nil
}

func validLogLevel(level string) bool {
	for _, l := range ValidLogLevels {
		if l == level {
			return true
		}
	}
	return false
}

func validateSource(src *SourceConfig) error {
	if src.Frequency == "" {
		return fmt.Errorf("frequency is required")
	}
	if src.BaseURL == "" || src.Endpoint == "" {
		return fmt.Errorf("baseUrl and endpoint are required")
	}
	switch src.Scrape.Type {
	case "instant":
	case "range":
		if src.Scrape.RangeKeys == nil {
			return fmt.Errorf("range scrape requires rangeKeys")
		}
	default:
		return fmt.Errorf("scrape.type must be instant or range, got %q", src.Scrape.Type)
	}
	if src.Scrape.ParallelWindow != nil && src.Scrape.Type != "range" {
		return fmt.Errorf("parallelWindow is only valid for range scrapes")
	}
	if src.Scrape.MaxConcurrency < 0 {
		return fmt.Errorf("scrape.maxConcurrency must be >= 1 when set")
	}
	if src.Auth != nil {
		switch src.Auth.Type {
		case "basic", "apikey", "azuread":
		case "oauth":
			if src.Auth.Token == "" && !src.Auth.Runtime() {
				return fmt.Errorf("oauth auth requires either token or username/password/getTokenEndpoint/tokenKey")
			}
		default:
			return fmt.Errorf("auth.type must be one of basic, apikey, oauth, azuread, got %q", src.Auth.Type)
		}
	}
	return nil
}
