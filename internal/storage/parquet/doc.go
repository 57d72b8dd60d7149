// Package parquet exports cached snapshots as flat per-host Parquet rows.
//
// The package provides:
//   - HostRow, one row per host per snapshot
//   - HostWriter/HostReader for Parquet files of HostRows
//   - Export, which flattens every entry of a time window into one file
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
