package config

import "fmt"

// Config is the top-level configuration for otel-api-scraper.
type Config struct {
	Scraper ScraperSettings `mapstructure:"scraper"`
	Sources []SourceConfig  `mapstructure:"sources"`
}

// ScraperSettings holds process-wide behavior.
type ScraperSettings struct {
	EnableSelfTelemetry     bool                  `mapstructure:"enableSelfTelemetry"`
	ServiceName             string                `mapstructure:"serviceName"`
	AllowOverlapScans       bool                  `mapstructure:"allowOverlapScans"`
	LogLevel                string                `mapstructure:"logLevel"`
	OtelCollectorEndpoint   string                `mapstructure:"otelCollectorEndpoint"`
	OtelTransport           string                `mapstructure:"otelTransport"` // "grpc" | "http"
	EnforceTLS              bool                  `mapstructure:"enforceTls"`
	DryRun                  bool                  `mapstructure:"dryRun"`
	TerminateGracefully     bool                  `mapstructure:"terminateGracefully"`
	ServicePort             int                   `mapstructure:"servicePort"`
	EnableAdminAPI          bool                  `mapstructure:"enableAdminApi"`
	AdminSecretEnv          string                `mapstructure:"adminSecretEnv"`
	DefaultTimeFormat       string                `mapstructure:"defaultTimeFormat"`
	MaxGlobalConcurrency    int                   `mapstructure:"maxGlobalConcurrency"`
	DefaultSourceConcurrency int                  `mapstructure:"defaultSourceConcurrency"`
	FingerprintStore        FingerprintStoreConfig `mapstructure:"fingerprintStore"`
}

// FingerprintStoreConfig is the global dedup/state store configuration.
type FingerprintStoreConfig struct {
	Backend               string              `mapstructure:"backend"` // sqlite | valkey | redis
	MaxEntriesPerSource    int                 `mapstructure:"maxEntriesPerSource"`
	DefaultTTLSeconds      int                 `mapstructure:"defaultTtlSeconds"`
	CleanupIntervalSeconds int                 `mapstructure:"cleanupIntervalSeconds"`
	LockRetries            int                 `mapstructure:"lockRetries"`
	LockBackoffSeconds     float64             `mapstructure:"lockBackoffSeconds"`
	SQLite                 FingerprintSQLite   `mapstructure:"sqlite"`
	Valkey                 FingerprintValkey   `mapstructure:"valkey"`
}

// FingerprintSQLite configures the durable local KV backend.
type FingerprintSQLite struct {
	Path string `mapstructure:"path"`
}

// FingerprintValkey configures the remote KV backend (valkey/redis-compatible).
type FingerprintValkey struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	SSL      bool   `mapstructure:"ssl"`
}

// SourceConfig is the full configuration for a single API source.
type SourceConfig struct {
	Name              string              `mapstructure:"name"`
	Frequency         string              `mapstructure:"frequency"`
	AllowOverlapScans bool                `mapstructure:"allowOverlapScans"`
	EmitLogs          bool                `mapstructure:"emitLogs"`
	Auth              *AuthConfig         `mapstructure:"auth"`
	Scrape            ScrapeSpec          `mapstructure:"scrape"`
	Endpoint          string              `mapstructure:"endpoint"`
	BaseURL           string              `mapstructure:"baseUrl"`
	DataKey           string              `mapstructure:"dataKey"`
	Filters           FiltersConfig       `mapstructure:"filters"`
	DeltaDetection    DeltaDetectionConfig `mapstructure:"deltaDetection"`
	GaugeReadings     []GaugeReading      `mapstructure:"gaugeReadings"`
	CounterReadings   []CounterReading    `mapstructure:"counterReadings"`
	HistogramReadings []HistogramReading  `mapstructure:"histogramReadings"`
	Attributes        []AttributeConfig   `mapstructure:"attributes"`
	LogStatusField    *LogStatusField     `mapstructure:"logStatusField"`
}

// AuthConfig is a tagged union over the supported auth strategies, decoded
// from a single YAML block discriminated by Type. Unused fields for a given
// Type are left zero.
type AuthConfig struct {
	Type string `mapstructure:"type"` // basic | apikey | oauth | azuread

	// basic
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// apikey
	KeyName  string `mapstructure:"keyName"`
	KeyValue string `mapstructure:"keyValue"`

	// oauth
	Token            string            `mapstructure:"token"`
	GetTokenEndpoint string            `mapstructure:"getTokenEndpoint"`
	TokenKey         string            `mapstructure:"tokenKey"`
	BodyData         *OAuthBodyData    `mapstructure:"bodyData"`
	GetTokenMethod   string            `mapstructure:"getTokenMethod"`
	TokenHeaders     map[string]string `mapstructure:"tokenHeaders"`

	// azuread
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenEndpoint string `mapstructure:"tokenEndpoint"`
	Resource     string `mapstructure:"resource"`
}

// Runtime reports whether this oauth config requires runtime token acquisition.
func (a *AuthConfig) Runtime() bool {
	return a.Username != "" && a.Password != "" && a.GetTokenEndpoint != "" && a.TokenKey != ""
}

// OAuthBodyData describes the payload shape used to acquire an OAuth token.
type OAuthBodyData struct {
	Type string      `mapstructure:"type"` // raw | json
	Data interface{} `mapstructure:"data"`
}

// ParallelWindow splits a range scrape into contiguous sub-windows.
type ParallelWindow struct {
	Unit  string `mapstructure:"unit"` // minutes | hours | days
	Value int    `mapstructure:"value"`
}

// RangeKeys describes how a range scrape's bounds are communicated to the API.
type RangeKeys struct {
	StartKey         string      `mapstructure:"startKey"`
	EndKey           string      `mapstructure:"endKey"`
	FirstScrapeStart string      `mapstructure:"firstScrapeStart"`
	Unit             string      `mapstructure:"unit"` // minutes|hours|days|weeks|months
	Value            interface{} `mapstructure:"value"` // int or "from-config"
	TakeNegative     bool        `mapstructure:"takeNegative"`
	DateFormat       string      `mapstructure:"dateFormat"`
}

// IsRelative reports whether this range uses relative window semantics.
func (r *RangeKeys) IsRelative() bool {
	return r != nil && r.Unit != ""
}

// HasExplicitBounds reports whether start and end keys are both set.
func (r *RangeKeys) HasExplicitBounds() bool {
	return r != nil && r.StartKey != "" && r.EndKey != ""
}

// ScrapeSpec is the scrape-time configuration for a single source.
type ScrapeSpec struct {
	Type            string            `mapstructure:"type"` // range | instant
	HTTPMethod      string            `mapstructure:"httpMethod"`
	TimeFormat      string            `mapstructure:"timeFormat"`
	MaxConcurrency  int               `mapstructure:"maxConcurrency"`
	ParallelWindow  *ParallelWindow   `mapstructure:"parallelWindow"`
	RangeKeys       *RangeKeys        `mapstructure:"rangeKeys"`
	URLEncodeTimeKeys bool            `mapstructure:"urlEncodeTimeKeys"`
	ExtraHeaders    map[string]string `mapstructure:"extraHeaders"`
	ExtraArgs       map[string]interface{} `mapstructure:"extraArgs"`
	RunFirstScrape  bool              `mapstructure:"runFirstScrape"`
}

// MatchPredicate is a single predicate used in drop/keep filters.
type MatchPredicate struct {
	Field     string      `mapstructure:"field"`
	MatchType string      `mapstructure:"matchType"` // equals|not_equals|in|regex
	Value     interface{} `mapstructure:"value"`
}

// DropRule drops a record if any of its predicates match.
type DropRule struct {
	Any []MatchPredicate `mapstructure:"any"`
}

// KeepRule retains a record only if all of its predicates match.
type KeepRule struct {
	All []MatchPredicate `mapstructure:"all"`
}

// FilterLimits caps the number of records kept per scrape.
type FilterLimits struct {
	MaxRecordsPerScrape int `mapstructure:"maxRecordsPerScrape"`
}

// FiltersConfig is the full filter configuration for a source.
type FiltersConfig struct {
	Drop   []DropRule   `mapstructure:"drop"`
	Keep   []KeepRule   `mapstructure:"keep"`
	Limits FilterLimits `mapstructure:"limits"`
}

// DeltaDetectionConfig controls fingerprint-based deduplication.
type DeltaDetectionConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	FingerprintMode string   `mapstructure:"fingerprintMode"` // full_record | keys
	FingerprintKeys []string `mapstructure:"fingerprintKeys"`
	TTLSeconds      int      `mapstructure:"ttlSeconds"`
}

// GaugeReading maps a record field to an observable gauge.
type GaugeReading struct {
	Name       string  `mapstructure:"name"`
	DataKey    string  `mapstructure:"dataKey"`
	FixedValue *float64 `mapstructure:"fixedValue"`
	Unit       string  `mapstructure:"unit"`
}

// CounterReading maps a record field to a counter increment.
type CounterReading struct {
	Name       string  `mapstructure:"name"`
	DataKey    string  `mapstructure:"dataKey"`
	FixedValue *float64 `mapstructure:"fixedValue"`
	Unit       string  `mapstructure:"unit"`
}

// HistogramReading maps a record field to a histogram observation.
type HistogramReading struct {
	Name       string   `mapstructure:"name"`
	DataKey    string   `mapstructure:"dataKey"`
	FixedValue *float64 `mapstructure:"fixedValue"`
	Unit       string   `mapstructure:"unit"`
	Buckets    []float64 `mapstructure:"buckets"`
}

// AttributeAsMetric optionally emits a metric derived from an attribute value.
type AttributeAsMetric struct {
	MetricName  string             `mapstructure:"metricName"`
	ValueMapping map[string]float64 `mapstructure:"valueMapping"`
	Unit        string             `mapstructure:"unit"`
}

// AttributeConfig maps a record field to a telemetry attribute.
type AttributeConfig struct {
	Name    string             `mapstructure:"name"`
	DataKey string             `mapstructure:"dataKey"`
	AsMetric *AttributeAsMetric `mapstructure:"asMetric"`
}

// LogStatusRule matches a field value against one or more expected values.
type LogStatusRule struct {
	Value     interface{} `mapstructure:"value"` // string or []string
	MatchType string      `mapstructure:"matchType"` // equals | in
}

// LogStatusField configures severity resolution for emitted logs.
type LogStatusField struct {
	Name    string         `mapstructure:"name"`
	Info    *LogStatusRule `mapstructure:"info"`
	Warning *LogStatusRule `mapstructure:"warning"`
	Error   *LogStatusRule `mapstructure:"error"`
}

func (s *SourceConfig) String() string {
	return fmt.Sprintf("source(%s)", s.Name)
}
