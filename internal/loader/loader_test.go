package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/krokicki/cluster-art/config"
	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/storage/parquet"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.yaml")} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q): %v", path, err)
		}
		if cfg.Cache.Dir != config.DefaultCacheDir {
			t.Errorf("expected default cache dir, got %q", cfg.Cache.Dir)
		}
		if cfg.Upstream.Interval.Duration() != config.DefaultFetchInterval {
			t.Errorf("expected default interval, got %s", cfg.Upstream.Interval.Duration())
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("defaults should validate: %v", err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_CACHE_ROOT", "/srv/cache")

	path := writeConfig(t, `
upstream:
  url: http://status.example/api
  interval: 90
  timeout: 5s
  max_body_bytes: 64MB
cache:
  dir: ${TEST_CACHE_ROOT}
  gzip_level: 9
server:
  listen: 127.0.0.1:9000
export:
  compression: snappy
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Upstream.URL != "http://status.example/api" {
		t.Errorf("unexpected url %q", cfg.Upstream.URL)
	}
	if cfg.Upstream.Interval.Duration() != 90*time.Second {
		t.Errorf("expected 90s interval, got %s", cfg.Upstream.Interval.Duration())
	}
	if cfg.Upstream.Timeout.Duration() != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Upstream.Timeout.Duration())
	}
	if cfg.Upstream.MaxBodyBytes.Bytes() != 64*1024*1024 {
		t.Errorf("expected 64MB, got %d", cfg.Upstream.MaxBodyBytes.Bytes())
	}
	if cfg.Cache.Dir != "/srv/cache" {
		t.Errorf("expected expanded cache dir, got %q", cfg.Cache.Dir)
	}
	if cfg.Cache.GzipLevel != 9 {
		t.Errorf("expected gzip level 9, got %d", cfg.Cache.GzipLevel)
	}
	// Unset keys keep their defaults
	if cfg.Cache.IndexTTL.Duration() != config.DefaultIndexTTL {
		t.Errorf("expected default index ttl, got %s", cfg.Cache.IndexTTL.Duration())
	}
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("unexpected listen %q", cfg.Server.Listen)
	}
	if got := ExportOptions(&cfg.Export).Compression; got != parquet.CompressionSnappy {
		t.Errorf("expected snappy, got %s", got)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "upstream: [unterminated")
	if _, err := Load(path); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvUpstreamURL:   "http://override/api",
		EnvFetchInterval: "30",
		EnvCacheFolder:   "/tmp/c",
		EnvDisableFetch:  "true",
		EnvListen:        ":8080",
		EnvLogLevel:      "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Upstream.URL != "http://override/api" || cfg.Cache.Dir != "/tmp/c" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Upstream.Interval.Duration() != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.Upstream.Interval.Duration())
	}
	if !cfg.Upstream.DisableFetch {
		t.Error("expected fetch disabled")
	}
	if cfg.Server.Listen != ":8080" || cfg.Logging.Level != "warn" {
		t.Errorf("unexpected server/logging %+v %+v", cfg.Server, cfg.Logging)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	env := map[string]string{
		EnvFetchInterval: "soon",
		EnvDisableFetch:  "maybe",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	err := ApplyEnv(cfg, lookup)
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if cfg.Upstream.Interval.Duration() != config.DefaultFetchInterval {
		t.Errorf("bad value should not change interval, got %s", cfg.Upstream.Interval.Duration())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero interval", func(c *Config) { c.Upstream.Interval = 0 }, false},
		{"empty url", func(c *Config) { c.Upstream.URL = "" }, false},
		{"empty url with fetch disabled", func(c *Config) {
			c.Upstream.URL = ""
			c.Upstream.DisableFetch = true
		}, true},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }, false},
		{"gzip level", func(c *Config) { c.Cache.GzipLevel = 11 }, false},
		{"unknown codec", func(c *Config) { c.Export.Compression = "brotli" }, false},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := Validate(cfg)
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"2m", 2 * time.Minute, false},
		{"120", 120 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("%q: expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}
