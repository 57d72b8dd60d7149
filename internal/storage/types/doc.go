// Package types defines the core data types used throughout the snapshot
// cache.
//
// Key types:
//   - RawSnapshot: one upstream cluster-status payload, decoded leniently
//   - OptimizedSnapshot: the compact form persisted on disk
//   - CacheEntry: one stored file, identified by its unix timestamp
//   - Ext, Layout: the file extension and directory layout of an entry
package types
