package config

import (
	"fmt"
	"strings"
	"time"
)

var knownCatalogTypes = map[string]bool{
	"hadoop": true, "rest": true, "glue": true, "hive": true,
}

var knownFileFormats = map[string]bool{
	"parquet": true, "orc": true,
}

// Validate performs structural validation on the config.
func (c Config) Validate() error {
	var errs []string

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.OTel.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Sprintf("otel.exporter must be none, stdout or otlp, got %q", c.OTel.Exporter))
	}
	if c.OTel.Exporter == "otlp" && c.OTel.Endpoint == "" {
		errs = append(errs, "otel.endpoint is required for otlp exporter")
	}

	errs = append(errs, c.Sink.validate("sink.")...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Validate checks the catalog settings alone.
func (c CommonConfig) Validate() error {
	if errs := c.validate(""); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c CommonConfig) validate(prefix string) []string {
	var errs []string
	if c.CatalogName == "" {
		errs = append(errs, prefix+"catalog_name is required")
	}
	if !knownCatalogTypes[strings.ToLower(c.CatalogType)] {
		errs = append(errs, fmt.Sprintf("%scatalog_type: unknown catalog type %q", prefix, c.CatalogType))
	}
	switch strings.ToLower(c.CatalogType) {
	case "hadoop":
		if c.Warehouse == "" {
			errs = append(errs, prefix+"warehouse is required for hadoop catalog")
		}
	case "rest":
		if c.URI == "" {
			errs = append(errs, prefix+"uri is required for rest catalog")
		}
	}
	if c.CacheEnabled && c.CacheExpiration < 0 {
		errs = append(errs, prefix+"cache_expiration must be >= 0")
	}
	return errs
}

// Validate checks the catalog and write settings.
func (c SinkConfig) Validate() error {
	if errs := c.validate(""); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c SinkConfig) validate(prefix string) []string {
	errs := c.CommonConfig.validate(prefix)

	if !knownFileFormats[strings.ToLower(c.FileFormat)] {
		errs = append(errs, fmt.Sprintf("%sfile_format must be parquet or orc, got %q", prefix, c.FileFormat))
	}
	if c.TargetFileSizeBytes <= 0 {
		errs = append(errs, fmt.Sprintf("%starget_file_size_bytes must be > 0, got %d", prefix, c.TargetFileSizeBytes))
	}
	if c.CommitRetries < 0 {
		errs = append(errs, fmt.Sprintf("%scommit_retries must be >= 0, got %d", prefix, c.CommitRetries))
	}
	checkDur := func(path string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s%s must be > 0", prefix, path))
		}
	}
	checkDur("commit_backoff_base", c.CommitBackoffBase)
	checkDur("commit_backoff_cap", c.CommitBackoffCap)
	if c.CommitBackoffCap > 0 && c.CommitBackoffBase > c.CommitBackoffCap {
		errs = append(errs, prefix+"commit_backoff_base must be <= commit_backoff_cap")
	}
	seen := make(map[string]bool, len(c.PrimaryKeys))
	for _, k := range c.PrimaryKeys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, prefix+"primary_keys must not contain empty names")
			continue
		}
		if seen[strings.ToLower(k)] {
			errs = append(errs, fmt.Sprintf("%sprimary_keys: duplicate column %q", prefix, k))
		}
		seen[strings.ToLower(k)] = true
	}
	return errs
}
