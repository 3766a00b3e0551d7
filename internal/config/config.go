package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last
// successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use. If no
// config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

func set(cfg *Config) {
	configPtr.Store(cfg)
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// Load reads the YAML configuration file at path, substitutes environment
// variables into every string value, decodes it into a Config, validates it,
// and publishes it to the process-global atomic pointer.
//
// There is no reload path: sources exist from process start to shutdown.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var tree interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, errs.ConfigInvalid(err)
	}
	tree = resolveEnv(normalizeYAMLTree(tree))

	// Re-encode the env-substituted tree and feed it to viper at config-file
	// precedence, so SCRAPER_* environment overrides still rank above it.
	resolved, err := yaml.Marshal(tree)
	if err != nil {
		return nil, errs.ConfigInvalid(err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadConfig(bytes.NewReader(resolved)); err != nil {
		return nil, errs.ConfigInvalid(err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, errs.ConfigInvalid(err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	loadedConfigFile.Store(path)
	set(cfg)
	return cfg, nil
}

// normalizeYAMLTree converts the map[interface{}]interface{} shape that
// gopkg.in/yaml.v3 can produce for nested maps into map[string]interface{}
// so resolveEnv and viper both see a consistent tree.
func normalizeYAMLTree(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = normalizeYAMLTree(child)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLTree(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = normalizeYAMLTree(child)
		}
		return out
	default:
		return v
	}
}
