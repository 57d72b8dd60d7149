// Package storage implements the snapshot cache behind the cluster-art
// visualization.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Upstream   │────▶│  Ingestion  │────▶│    Store    │
//	│   Client    │     │  Pipeline   │     │ (gzip JSON) │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                                               │
//	                           ┌───────────────────┼──────────────┐
//	                           ▼                   ▼              ▼
//	                    ┌─────────────┐     ┌─────────────┐ ┌──────────┐
//	                    │  Migrator   │     │   Parquet   │ │  Server  │
//	                    │ (layout fix)│     │   Export    │ │  (HTTP)  │
//	                    └─────────────┘     └─────────────┘ └──────────┘
//
// Snapshots are stored one file per capture, bucketed by UTC date:
//
//	<root>/<YYYYMM>/<DD>/<unix-seconds>.json.gz
//
// The storage system provides:
//   - Compact per-host occupancy encoding (package transform)
//   - Atomic, fsynced writes so readers never see partial files
//   - Timestamp queries: latest, nearest, all, window
//   - Read compatibility with the legacy flat layout and plain .json files
//   - Idempotent migration of legacy and misplaced files
//   - Parquet export of per-host occupancy rows
//
// Service ties the store, migrator and fetch pipeline to one configuration.
package storage
