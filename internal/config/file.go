package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// filePayload mirrors the YAML config file. Pointer fields distinguish an
// absent key from a zero value so the file only overrides what it names.
type filePayload struct {
	Provider        *string          `yaml:"provider"`
	BaseURL         *string          `yaml:"base_url"`
	APIKey          *string          `yaml:"api_key"`
	Model           *string          `yaml:"model"`
	Temperature     *float64         `yaml:"temperature"`
	MaxOutputTokens *int             `yaml:"max_output_tokens"`
	Timeout         *string          `yaml:"timeout"`
	MaxRetries      *int             `yaml:"max_retries"`
	Driver          *string          `yaml:"driver"`
	RowLimit        *int             `yaml:"row_limit"`
	Revisions       *int             `yaml:"revisions"`
	AutoApprove     *bool            `yaml:"auto_approve"`
	LogLevel        *string          `yaml:"log_level"`
	LogJSON         *bool            `yaml:"log_json"`
	MetricsAddr     *string          `yaml:"metrics_addr"`
	ObjectStore     *fileObjectStore `yaml:"object_store"`
}

type fileObjectStore struct {
	Endpoint  *string `yaml:"endpoint"`
	Region    *string `yaml:"region"`
	Bucket    *string `yaml:"bucket"`
	AccessKey *string `yaml:"access_key"`
	SecretKey *string `yaml:"secret_key"`
	UseSSL    *bool   `yaml:"use_ssl"`
	Prefix    *string `yaml:"prefix"`
}

func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var payload filePayload
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(payload.Provider, &cfg.Provider.Kind)
	setString(payload.BaseURL, &cfg.Provider.BaseURL)
	setString(payload.APIKey, &cfg.Provider.APIKey)
	setString(payload.Model, &cfg.Provider.Model)
	if payload.Temperature != nil {
		cfg.Provider.Temperature = *payload.Temperature
	}
	if payload.MaxOutputTokens != nil {
		cfg.Provider.MaxOutputTokens = *payload.MaxOutputTokens
	}
	if payload.Timeout != nil {
		value, err := time.ParseDuration(strings.TrimSpace(*payload.Timeout))
		if err != nil {
			return fmt.Errorf("invalid timeout in %s: %w", path, err)
		}
		cfg.Provider.Timeout = value
	}
	if payload.MaxRetries != nil {
		cfg.Provider.MaxRetries = *payload.MaxRetries
	}
	setString(payload.Driver, &cfg.Query.Driver)
	if payload.RowLimit != nil {
		cfg.Query.RowLimit = *payload.RowLimit
	}
	if payload.Revisions != nil {
		cfg.Loop.MaxRevisions = *payload.Revisions
	}
	if payload.AutoApprove != nil {
		cfg.Loop.AutoApprove = *payload.AutoApprove
	}
	if payload.LogLevel != nil {
		level, err := ParseLogLevel(*payload.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level in %s: %w", path, err)
		}
		cfg.Observability.LogLevel = level
	}
	if payload.LogJSON != nil {
		cfg.Observability.LogJSON = *payload.LogJSON
	}
	setString(payload.MetricsAddr, &cfg.Observability.MetricsAddr)

	if store := payload.ObjectStore; store != nil {
		setString(store.Endpoint, &cfg.ObjectStore.Endpoint)
		setString(store.Region, &cfg.ObjectStore.Region)
		setString(store.Bucket, &cfg.ObjectStore.Bucket)
		setString(store.AccessKey, &cfg.ObjectStore.AccessKeyID)
		setString(store.SecretKey, &cfg.ObjectStore.SecretAccessKey)
		if store.UseSSL != nil {
			cfg.ObjectStore.UseSSL = *store.UseSSL
		}
		setString(store.Prefix, &cfg.ObjectStore.Prefix)
	}
	return nil
}

func setString(src *string, dst *string) {
	if src == nil {
		return
	}
	*dst = strings.TrimSpace(*src)
}
