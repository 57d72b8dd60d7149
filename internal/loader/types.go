// Package loader - Configuration Types
//
// Defines the YAML configuration structure shared by clusterartd,
// clusterart-fetch, clusterart-migrate and clusterart-export.
//
// STRUCTURE:
//
//	upstream:   where snapshots come from and how often
//	cache:      the snapshot cache directory
//	server:     HTTP serving
//	export:     Parquet export
//	logging:    level and format
//
// Every value has a default in package config; a missing config file is
// not an error.

package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/krokicki/cluster-art/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure.
type Config struct {
	// Upstream configures the cluster-status source.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Cache configures the snapshot cache.
	Cache CacheConfig `yaml:"cache"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Export configures Parquet export.
	Export ExportConfig `yaml:"export"`

	// Logging configures the global logger.
	Logging LoggingConfig `yaml:"logging"`
}

// UpstreamConfig configures fetching.
type UpstreamConfig struct {
	// URL is the cluster-status endpoint.
	// Env: CLUSTER_UPSTREAM_URL
	URL string `yaml:"url"`

	// Interval is the time between two fetch cycles.
	// Accepts "2m" or a plain number of seconds.
	// Env: CLUSTER_FETCH_INTERVAL
	// Default: 120s
	Interval Duration `yaml:"interval"`

	// Timeout bounds one upstream request.
	// Default: 30s
	Timeout Duration `yaml:"timeout"`

	// MaxBodyBytes caps the size of a response body.
	// Supports: "256MB", "1GB" or plain bytes.
	MaxBodyBytes ByteSize `yaml:"max_body_bytes"`

	// DisableFetch turns the service into a read-only view of an existing
	// cache.
	// Env: CLUSTER_DISABLE_FETCH
	DisableFetch bool `yaml:"disable_fetch"`
}

// CacheConfig configures the snapshot cache.
type CacheConfig struct {
	// Dir is the cache root.
	// Env: CLUSTER_CACHE_FOLDER
	// Default: cache
	Dir string `yaml:"dir"`

	// IndexTTL is how long a directory scan is reused. 0 disables reuse.
	// Default: 15s
	IndexTTL Duration `yaml:"index_ttl"`

	// GzipLevel is the compression level of new entries (1-9).
	// Default: 6
	GzipLevel int `yaml:"gzip_level"`

	// MigrateOnStart runs the migrator before the first fetch.
	MigrateOnStart bool `yaml:"migrate_on_start"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	// Env: CLUSTER_LISTEN
	// Default: 0.0.0.0:8000
	Listen string `yaml:"listen"`

	// IndexFile is the page served at "/".
	// Default: index.html
	IndexFile string `yaml:"index_file"`

	// DrainTimeout bounds graceful shutdown.
	// Default: 10s
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// ExportConfig configures Parquet export.
type ExportConfig struct {
	// Compression is one of zstd, snappy, lz4, gzip, none.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Env: CLUSTER_LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// JSON switches to JSON output.
	JSON bool `yaml:"json"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:          config.DefaultUpstreamURL,
			Interval:     Duration(config.DefaultFetchInterval),
			Timeout:      Duration(config.DefaultFetchTimeout),
			MaxBodyBytes: ByteSize(config.DefaultMaxSnapshotBytes),
		},

		Cache: CacheConfig{
			Dir:       config.DefaultCacheDir,
			IndexTTL:  Duration(config.DefaultIndexTTL),
			GzipLevel: config.DefaultGzipLevel,
		},

		Server: ServerConfig{
			Listen:       config.DefaultListenAddress,
			IndexFile:    config.DefaultIndexFile,
			DrainTimeout: Duration(config.DefaultDrainTimeout),
		},

		Export: ExportConfig{
			Compression: config.DefaultExportCompression,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Accepts Go duration strings ("90s", "2m") or a plain number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ParseDuration parses a Go duration string, or a plain integer as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if dur, err := time.ParseDuration(s); err == nil {
		return dur, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: expected e.g. \"2m\" or seconds", s)
	}
	return time.Duration(secs) * time.Second, nil
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "100MB", "1GB", "500KB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "100MB" or "1GB".
func parseByteSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	// Longest suffix first so "MB" is not read as "B"
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.multiplier, nil
		}
	}

	// Try as plain number
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}
