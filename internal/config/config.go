package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Service       ServiceConfig
	Provider      ProviderConfig
	Query         QueryConfig
	Loop          LoopConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

// ProviderConfig selects and shapes the remote generation provider. An empty
// Model or BaseURL defers to the provider's own default.
type ProviderConfig struct {
	Kind            string
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
	MaxRetries      int
}

type QueryConfig struct {
	Driver   string
	RowLimit int
}

type LoopConfig struct {
	MaxRevisions int
	AutoApprove  bool
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type ObservabilityConfig struct {
	LogLevel    slog.Level
	LogJSON     bool
	MetricsAddr string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	return LoadWithFile(serviceName, "", lookup)
}

// LoadWithFile builds the effective configuration: defaults, then the YAML
// file at path when non-empty, then environment overrides. Flags stay with
// the CLI layer and are applied on top by the caller.
func LoadWithFile(serviceName, path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := defaults()
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_PROVIDER", &cfg.Provider.Kind); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_BASE_URL", &cfg.Provider.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_API_KEY", &cfg.Provider.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_MODEL", &cfg.Provider.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "ASKDB_TEMPERATURE", &cfg.Provider.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_MAX_OUTPUT_TOKENS", &cfg.Provider.MaxOutputTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKDB_TIMEOUT", &cfg.Provider.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_MAX_RETRIES", &cfg.Provider.MaxRetries); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_DRIVER", &cfg.Query.Driver); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_ROW_LIMIT", &cfg.Query.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKDB_REVISIONS", &cfg.Loop.MaxRevisions); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_AUTO_APPROVE", &cfg.Loop.AutoApprove); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKDB_METRICS_ADDR", &cfg.Observability.MetricsAddr); err != nil {
		return Config{}, err
	}

	applyProviderKeyFallback(lookup, &cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyProviderKeyFallback honors the conventional provider key variables
// when ASKDB_API_KEY is unset, so existing shells keep working.
func applyProviderKeyFallback(lookup LookupFunc, cfg *Config) {
	if cfg.Provider.APIKey != "" {
		return
	}
	var key string
	switch cfg.Provider.Kind {
	case ProviderOpenAI:
		key = "OPENAI_API_KEY"
	case ProviderGemini:
		key = "GEMINI_API_KEY"
	default:
		return
	}
	if raw, ok := lookup(key); ok {
		cfg.Provider.APIKey = strings.TrimSpace(raw)
	}
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

func defaults() Config {
	return Config{
		Service: ServiceConfig{Name: "askdb"},
		Provider: ProviderConfig{
			Kind:        ProviderOpenAI,
			Temperature: 0.1,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Query: QueryConfig{
			Driver:   "",
			RowLimit: 100,
		},
		Loop: LoopConfig{
			MaxRevisions: 3,
			AutoApprove:  false,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "askdb",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
			Prefix:          "",
		},
		Observability: ObservabilityConfig{
			LogLevel:    slog.LevelWarn,
			LogJSON:     false,
			MetricsAddr: "",
		},
	}
}

// Validate checks the assembled configuration. Load runs it automatically;
// callers that layer their own overrides on top should run it again.
func Validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch cfg.Provider.Kind {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid provider: %q", cfg.Provider.Kind)
	}
	switch cfg.Query.Driver {
	case "", DriverSQLite, DriverDuckDB, DriverPostgres:
	default:
		return fmt.Errorf("invalid driver: %q", cfg.Query.Driver)
	}
	if cfg.Query.RowLimit < 0 {
		return fmt.Errorf("row limit must not be negative")
	}
	if cfg.Loop.MaxRevisions < 0 {
		return fmt.Errorf("revisions must not be negative")
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := ParseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = value
	return nil
}

// ParseLogLevel maps a human level name onto a slog.Level.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", raw)
	}
}
