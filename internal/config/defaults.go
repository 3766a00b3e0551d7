package config

// DefaultConfigFilename is the name consulted when SCRAPER_CONFIG is unset.
const DefaultConfigFilename = "config.yaml"

// DefaultServicePort is the default admin HTTP bind port.
const DefaultServicePort = 8080

// DefaultMaxGlobalConcurrency is the default process-wide fetch concurrency.
const DefaultMaxGlobalConcurrency = 10

// DefaultSourceConcurrency is the default per-source fetch concurrency.
const DefaultSourceConcurrency = 4

// DefaultTimeFormat mirrors the grounded source's "%Y-%m-%dT%H:%M:%S%z" as a
// Go reference-time layout.
const DefaultTimeFormat = "2006-01-02T15:04:05Z07:00"

// DefaultFingerprintMaxEntriesPerSource bounds per-source fingerprint growth.
const DefaultFingerprintMaxEntriesPerSource = 50000

// DefaultFingerprintTTLSeconds is the default dedup TTL.
const DefaultFingerprintTTLSeconds = 86400

// DefaultCleanupIntervalSeconds is the default fingerprint cleanup cadence.
const DefaultCleanupIntervalSeconds = 3600

// DefaultLockRetries bounds durable-KV contention retries.
const DefaultLockRetries = 5

// DefaultLockBackoffSeconds is the base backoff for durable-KV contention.
const DefaultLockBackoffSeconds = 0.1

// DefaultSQLitePath is the default location of the fingerprint/state database.
const DefaultSQLitePath = "./scraper_fingerprints.db"

// DefaultValkeyHost and DefaultValkeyPort are the default remote KV target.
const (
	DefaultValkeyHost = "localhost"
	DefaultValkeyPort = 6379
)

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// DefaultConfig returns a Config populated with every default the external
// configuration surface documents.
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperSettings{
			EnableSelfTelemetry:      false,
			ServiceName:              "otel-api-scraper",
			AllowOverlapScans:        false,
			LogLevel:                 "debug",
			OtelTransport:            "grpc",
			EnforceTLS:               true,
			DryRun:                   false,
			TerminateGracefully:      true,
			ServicePort:              DefaultServicePort,
			EnableAdminAPI:           false,
			DefaultTimeFormat:        DefaultTimeFormat,
			MaxGlobalConcurrency:     DefaultMaxGlobalConcurrency,
			DefaultSourceConcurrency: DefaultSourceConcurrency,
			FingerprintStore: FingerprintStoreConfig{
				Backend:                "sqlite",
				MaxEntriesPerSource:    DefaultFingerprintMaxEntriesPerSource,
				DefaultTTLSeconds:      DefaultFingerprintTTLSeconds,
				CleanupIntervalSeconds: DefaultCleanupIntervalSeconds,
				LockRetries:            DefaultLockRetries,
				LockBackoffSeconds:     DefaultLockBackoffSeconds,
				SQLite: FingerprintSQLite{
					Path: DefaultSQLitePath,
				},
				Valkey: FingerprintValkey{
					Host: DefaultValkeyHost,
					Port: DefaultValkeyPort,
				},
			},
		},
		Sources: nil,
	}
}
