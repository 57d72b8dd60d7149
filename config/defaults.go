// Package config provides configuration defaults for the cluster-art
// services.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml, CLUSTER_* environment
// variables or command-line flags.
package config

import "time"

// =============================================================================
// Upstream Defaults
// =============================================================================

const (
	// DefaultUpstreamURL is the cluster-status endpoint polled by the fetcher.
	// Override via config: upstream.url, env: CLUSTER_UPSTREAM_URL
	DefaultUpstreamURL = "https://cluster-status.int.janelia.org/api/cluster-status"

	// DefaultFetchInterval is the time between two fetch cycles.
	// Override via config: upstream.interval, env: CLUSTER_FETCH_INTERVAL
	DefaultFetchInterval = 120 * time.Second

	// DefaultFetchTimeout bounds a single upstream request.
	// Override via config: upstream.timeout
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxSnapshotBytes caps the size of an upstream response body.
	// Override via config: upstream.max_body_bytes
	DefaultMaxSnapshotBytes = 256 * 1024 * 1024
)

// =============================================================================
// Cache Defaults
// =============================================================================

const (
	// DefaultCacheDir is the root of the snapshot cache.
	// Override via config: cache.dir, env: CLUSTER_CACHE_FOLDER
	DefaultCacheDir = "cache"

	// DefaultIndexTTL is how long a timestamp scan is reused before the tree
	// is walked again. Writes through the same store invalidate it at once.
	// Zero disables the index cache.
	// Override via config: cache.index_ttl
	DefaultIndexTTL = 15 * time.Second

	// DefaultGzipLevel is the compression level for new cache entries.
	// Override via config: cache.gzip_level
	DefaultGzipLevel = 6
)

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8000"

	// DefaultIndexFile is the frontend page served at "/".
	// Override via config: server.index_file
	DefaultIndexFile = "index.html"

	// DefaultDrainTimeout is how long in-flight requests may take during
	// shutdown.
	// Override via config: server.drain_timeout
	DefaultDrainTimeout = 10 * time.Second
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet codec used by clusterart-export.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"
)
