// Package loader handles configuration file loading, validation, and
// environment overrides.
//
// Precedence, lowest first:
//   - defaults (package config)
//   - the YAML file, with ${VAR} references expanded
//   - CLUSTER_* environment variables
//   - command-line flags (applied by each command)

package loader

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/parquet"
)

// Environment variable names.
const (
	EnvUpstreamURL   = "CLUSTER_UPSTREAM_URL"
	EnvFetchInterval = "CLUSTER_FETCH_INTERVAL"
	EnvCacheFolder   = "CLUSTER_CACHE_FOLDER"
	EnvDisableFetch  = "CLUSTER_DISABLE_FETCH"
	EnvListen        = "CLUSTER_LISTEN"
	EnvLogLevel      = "CLUSTER_LOG_LEVEL"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.WithKind(errors.ErrInvalidConfig, err, "parse config %s", path)
	}

	return cfg, nil
}

// LoadWithEnv loads path and applies the process environment.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with CLUSTER_* variables found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	errs := errors.NewValidationErrors()

	if v, ok := lookup(EnvUpstreamURL); ok && v != "" {
		cfg.Upstream.URL = v
	}
	if v, ok := lookup(EnvFetchInterval); ok && v != "" {
		dur, err := ParseDuration(v)
		if err != nil {
			errs.AddField(EnvFetchInterval, err.Error())
		} else {
			cfg.Upstream.Interval = Duration(dur)
		}
	}
	if v, ok := lookup(EnvCacheFolder); ok && v != "" {
		cfg.Cache.Dir = v
	}
	if v, ok := lookup(EnvDisableFetch); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs.AddField(EnvDisableFetch, "expected a boolean")
		} else {
			cfg.Upstream.DisableFetch = b
		}
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		cfg.Server.Listen = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}

	return errs.Err()
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Upstream validation
	if cfg.Upstream.URL == "" && !cfg.Upstream.DisableFetch {
		errs.AddMissing("upstream.url")
	}
	if cfg.Upstream.Interval.Duration() <= 0 {
		errs.AddField("upstream.interval", "must be positive")
	}
	if cfg.Upstream.Timeout.Duration() <= 0 {
		errs.AddField("upstream.timeout", "must be positive")
	}
	if cfg.Upstream.MaxBodyBytes.Bytes() <= 0 {
		errs.AddField("upstream.max_body_bytes", "must be positive")
	}

	// Cache validation
	if cfg.Cache.Dir == "" {
		errs.AddMissing("cache.dir")
	}
	if cfg.Cache.IndexTTL.Duration() < 0 {
		errs.AddField("cache.index_ttl", "cannot be negative")
	}
	if cfg.Cache.GzipLevel < 1 || cfg.Cache.GzipLevel > 9 {
		errs.AddField("cache.gzip_level", "must be between 1 and 9")
	}

	// Server validation
	if cfg.Server.Listen == "" {
		errs.AddMissing("server.listen")
	}
	if cfg.Server.DrainTimeout.Duration() < 0 {
		errs.AddField("server.drain_timeout", "cannot be negative")
	}

	// Export validation
	switch cfg.Export.Compression {
	case "zstd", "snappy", "lz4", "gzip", "none":
	default:
		errs.AddField("export.compression", fmt.Sprintf("unknown codec %q", cfg.Export.Compression))
	}

	// Logging validation
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs.AddField("logging.level", err.Error())
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// ExportOptions converts the export section to Parquet writer options.
func ExportOptions(cfg *ExportConfig) parquet.Options {
	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(cfg.Compression)
	return opts
}
