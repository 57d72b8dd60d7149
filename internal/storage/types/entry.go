package types

import (
	"fmt"
	"time"
)

// Ext is the file extension of a cache entry.
type Ext string

const (
	// ExtGzip is gzip-compressed JSON. All new writes use it.
	ExtGzip Ext = ".json.gz"

	// ExtJSON is uncompressed JSON, accepted for backward compatibility only.
	ExtJSON Ext = ".json"
)

// AllExts lists the recognized extensions in preference order.
func AllExts() []Ext {
	return []Ext{ExtGzip, ExtJSON}
}

// Compressed reports whether entries with this extension are gzip streams.
func (e Ext) Compressed() bool {
	return e == ExtGzip
}

// String returns the extension including its leading dot.
func (e Ext) String() string {
	return string(e)
}

// Layout identifies where an entry sits in the cache tree.
type Layout int

const (
	// LayoutHierarchical is <root>/<YYYYMM>/<DD>/<ts><ext>, or any file below
	// a subdirectory of the root.
	LayoutHierarchical Layout = iota

	// LayoutFlat is the legacy <root>/<ts><ext>.
	LayoutFlat
)

// String returns a human-readable layout name.
func (l Layout) String() string {
	switch l {
	case LayoutHierarchical:
		return "hierarchical"
	case LayoutFlat:
		return "flat"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// CacheEntry is one stored snapshot file. Its identity is Timestamp.
type CacheEntry struct {
	// Timestamp is the capture time in seconds since the unix epoch.
	Timestamp int64

	// Path is the file location.
	Path string

	Ext    Ext
	Layout Layout
}

// Time returns the capture time in UTC.
func (e CacheEntry) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// Compressed reports whether the entry's bytes are a gzip stream.
func (e CacheEntry) Compressed() bool {
	return e.Ext.Compressed()
}

// Better reports whether e should back its timestamp in preference to
// other. Hierarchical beats flat, then compressed beats plain, then the
// lexically smaller path wins so the choice is stable.
func (e CacheEntry) Better(other CacheEntry) bool {
	if e.Layout != other.Layout {
		return e.Layout < other.Layout
	}
	if e.Compressed() != other.Compressed() {
		return e.Compressed()
	}
	return e.Path < other.Path
}
