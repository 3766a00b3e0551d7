package runner

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
)

// newFingerprintStore builds the configured dedup backend, falling back to
// an in-memory store if the durable backend cannot be reached at startup.
func newFingerprintStore(cfg config.FingerprintStoreConfig, log zerolog.Logger) store.FingerprintStore {
	defaultTTL := time.Duration(cfg.DefaultTTLSeconds) * time.Second

	switch cfg.Backend {
	case "valkey", "redis":
		addr := fmt.Sprintf("%s:%d", cfg.Valkey.Host, cfg.Valkey.Port)
		fs, err := store.NewValkeyFingerprintStore(addr, cfg.Valkey.DB, cfg.Valkey.Password, cfg.Valkey.SSL, cfg.MaxEntriesPerSource)
		if err != nil {
			log.Warn().Err(errs.New(errs.KindStoreUnavailable, err)).Str("backend", cfg.Backend).Msg("fingerprint store unreachable, falling back to in-memory")
			return store.NewMemoryFingerprintStore(cfg.MaxEntriesPerSource)
		}
		return fs
	case "sqlite", "":
		fs, err := store.NewSQLiteFingerprintStore(cfg.SQLite.Path, cfg.MaxEntriesPerSource, defaultTTL, cfg.LockRetries, cfg.LockBackoffSeconds)
		if err != nil {
			log.Warn().Err(errs.New(errs.KindStoreUnavailable, err)).Str("backend", "sqlite").Msg("fingerprint store unreachable, falling back to in-memory")
			return store.NewMemoryFingerprintStore(cfg.MaxEntriesPerSource)
		}
		return fs
	default:
		log.Warn().Str("backend", cfg.Backend).Msg("unknown fingerprint store backend, falling back to in-memory")
		return store.NewMemoryFingerprintStore(cfg.MaxEntriesPerSource)
	}
}

// newStateStore builds the configured watermark-tracking backend, sharing
// the same SQLite file as the fingerprint store when both are sqlite-backed.
func newStateStore(cfg config.FingerprintStoreConfig, log zerolog.Logger) store.StateStore {
	switch cfg.Backend {
	case "valkey", "redis":
		addr := fmt.Sprintf("%s:%d", cfg.Valkey.Host, cfg.Valkey.Port)
		ss, err := store.NewValkeyStateStore(addr, cfg.Valkey.DB, cfg.Valkey.Password, cfg.Valkey.SSL)
		if err != nil {
			log.Warn().Err(errs.New(errs.KindStoreUnavailable, err)).Str("backend", cfg.Backend).Msg("state store unreachable, falling back to in-memory")
			return store.NewMemoryStateStore()
		}
		return ss
	case "sqlite", "":
		ss, err := store.NewSQLiteStateStore(cfg.SQLite.Path, cfg.LockRetries, cfg.LockBackoffSeconds)
		if err != nil {
			log.Warn().Err(errs.New(errs.KindStoreUnavailable, err)).Str("backend", "sqlite").Msg("state store unreachable, falling back to in-memory")
			return store.NewMemoryStateStore()
		}
		return ss
	default:
		log.Warn().Str("backend", cfg.Backend).Msg("unknown state store backend, falling back to in-memory")
		return store.NewMemoryStateStore()
	}
}
