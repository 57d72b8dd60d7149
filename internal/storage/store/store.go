// Package store owns the snapshot cache directory.
//
// Entries live at <root>/<YYYYMM>/<DD>/<timestamp>.json.gz (see package
// layout). The directory tree is the index: listing walks the tree, so the
// cost of a listing grows with the number of entries. A positive index TTL
// keeps the last walk around; writes through the same Store drop it.
//
// Legacy entries (flat <root>/<ts>.json[.gz] and plain .json) stay readable
// but are never produced.
//
// A Store is safe for concurrent readers and a single writer. Writes go to a
// temp file in the destination directory and are renamed into place after
// fsync, so readers never observe a partial entry.
package store

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/layout"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// Store reads and writes cache entries under one root directory.
type Store struct {
	root      string
	log       *slog.Logger
	now       func() time.Time
	gzipLevel int
	indexTTL  time.Duration

	mu         sync.RWMutex
	index      *index
	indexedAt  time.Time
	generation uint64

	group singleflight.Group

	stats Stats
}

// Stats holds store statistics.
type Stats struct {
	Writes          atomic.Int64
	WriteErrors     atomic.Int64
	FallbackClock   atomic.Int64
	Scans           atomic.Int64
	CorruptEntries  atomic.Int64
	MissingEntries  atomic.Int64
	BytesCompressed atomic.Int64
}

// StoreStats is a point-in-time copy of Stats.
type StoreStats struct {
	Writes          int64
	WriteErrors     int64
	FallbackClock   int64
	Scans           int64
	CorruptEntries  int64
	MissingEntries  int64
	BytesCompressed int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to the "store" component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock sets the wall clock used when a snapshot has no usable capture
// time, and for index expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIndexTTL enables reuse of a tree walk for ttl. Zero walks the tree on
// every query.
func WithIndexTTL(ttl time.Duration) Option {
	return func(s *Store) { s.indexTTL = ttl }
}

// WithGzipLevel sets the compression level of new entries.
func WithGzipLevel(level int) Option {
	return func(s *Store) { s.gzipLevel = level }
}

// New creates a Store rooted at root. The directory is created on first
// write; a missing root reads as an empty cache.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:      layout.ResolveRoot(root),
		now:       time.Now,
		gzipLevel: defaultGzipLevel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Component("store")
	}
	return s
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// =============================================================================
// Index
// =============================================================================

// index maps each known timestamp to the file that backs it.
type index struct {
	entries map[int64]types.CacheEntry
	sorted  []int64
}

func (idx *index) entry(ts int64) (types.CacheEntry, bool) {
	e, ok := idx.entries[ts]
	return e, ok
}

// loadIndex returns the current index, walking the tree when the cached one
// is missing or expired. Concurrent walks are coalesced.
func (s *Store) loadIndex() *index {
	if s.indexTTL > 0 {
		s.mu.RLock()
		idx, at := s.index, s.indexedAt
		s.mu.RUnlock()
		if idx != nil && s.now().Sub(at) < s.indexTTL {
			return idx
		}
	}

	v, _, _ := s.group.Do("scan", func() (interface{}, error) {
		s.mu.RLock()
		gen := s.generation
		s.mu.RUnlock()

		idx := s.scan()

		if s.indexTTL > 0 {
			s.mu.Lock()
			if s.generation == gen {
				s.index = idx
				s.indexedAt = s.now()
			}
			s.mu.Unlock()
		}
		return idx, nil
	})

	return v.(*index)
}

// invalidate drops the cached index after a write.
func (s *Store) invalidate() {
	s.mu.Lock()
	s.generation++
	s.index = nil
	s.mu.Unlock()
	s.group.Forget("scan")
}

// scan walks the whole tree and collects every cache-shaped file with a
// valid timestamp. When a timestamp is backed by several files the
// hierarchical, then compressed, one wins. Unreadable directories are logged
// and skipped.
func (s *Store) scan() *index {
	s.stats.Scans.Add(1)

	idx := &index{entries: make(map[int64]types.CacheEntry)}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && os.IsNotExist(err) {
				return nil
			}
			s.log.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext, ok := layout.ExtOf(path)
		if !ok {
			return nil
		}
		ts, ok := layout.TimestampFromPath(path)
		if !ok {
			s.log.Debug("skipping file with invalid timestamp", "path", path)
			return nil
		}

		entry := types.CacheEntry{
			Timestamp: ts,
			Path:      path,
			Ext:       ext,
			Layout:    types.LayoutHierarchical,
		}
		if filepath.Dir(path) == s.root {
			entry.Layout = types.LayoutFlat
		}

		if existing, ok := idx.entries[ts]; ok && !entry.Better(existing) {
			return nil
		}
		idx.entries[ts] = entry
		return nil
	})
	if err != nil {
		s.log.Warn("cache scan incomplete", "root", s.root, "error", err)
	}

	idx.sorted = make([]int64, 0, len(idx.entries))
	for ts := range idx.entries {
		idx.sorted = append(idx.sorted, ts)
	}
	sort.Slice(idx.sorted, func(i, j int) bool { return idx.sorted[i] < idx.sorted[j] })

	return idx
}

// =============================================================================
// Resolution
// =============================================================================

// resolver is one candidate location for a timestamp.
type resolver struct {
	layout types.Layout
	ext    types.Ext
	path   func(root string, ts int64, ext types.Ext) string
}

// fallbackResolvers are probed in order after the indexed path.
var fallbackResolvers = []resolver{
	{types.LayoutHierarchical, types.ExtGzip, layout.PathFor},
	{types.LayoutHierarchical, types.ExtJSON, layout.PathFor},
	{types.LayoutFlat, types.ExtGzip, layout.FlatPathFor},
	{types.LayoutFlat, types.ExtJSON, layout.FlatPathFor},
}

// resolve finds a file backing ts: first the path seen by the scan, then
// the canonical and legacy locations in order. A timestamp whose file
// vanished since the scan reports false.
func (s *Store) resolve(idx *index, ts int64) (types.CacheEntry, bool) {
	candidates := make([]types.CacheEntry, 0, len(fallbackResolvers)+1)
	if e, ok := idx.entry(ts); ok {
		candidates = append(candidates, e)
	}
	for _, r := range fallbackResolvers {
		candidates = append(candidates, types.CacheEntry{
			Timestamp: ts,
			Path:      r.path(s.root, ts, r.ext),
			Ext:       r.ext,
			Layout:    r.layout,
		})
	}

	tried := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if tried[c.Path] {
			continue
		}
		tried[c.Path] = true

		info, err := os.Stat(c.Path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.Warn("cannot stat cache entry", "path", c.Path, "error", err)
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		return c, true
	}

	s.stats.MissingEntries.Add(1)
	s.log.Debug("timestamp has no backing file", "timestamp", ts)
	return types.CacheEntry{}, false
}

// =============================================================================
// Queries
// =============================================================================

// Latest returns the entry with the greatest timestamp. It reports false
// when the cache is empty or the root does not exist.
func (s *Store) Latest() (types.CacheEntry, bool) {
	idx := s.loadIndex()
	for i := len(idx.sorted) - 1; i >= 0; i-- {
		if e, ok := s.resolve(idx, idx.sorted[i]); ok {
			return e, true
		}
	}
	return types.CacheEntry{}, false
}

// AllTimestamps returns every stored timestamp in ascending order, each
// once.
func (s *Store) AllTimestamps() []int64 {
	idx := s.loadIndex()
	out := make([]int64, len(idx.sorted))
	copy(out, idx.sorted)
	return out
}

// InWindow returns the stored timestamps t with start <= t <= end, in
// ascending order.
func (s *Store) InWindow(start, end int64) []int64 {
	idx := s.loadIndex()
	if start > end {
		return []int64{}
	}

	lo := sort.Search(len(idx.sorted), func(i int) bool { return idx.sorted[i] >= start })
	hi := sort.Search(len(idx.sorted), func(i int) bool { return idx.sorted[i] > end })

	out := make([]int64, hi-lo)
	copy(out, idx.sorted[lo:hi])
	return out
}

// At returns the entry stored at ts, or else the one nearest to it. Equal
// distances resolve to the earlier timestamp. Candidates whose file has
// disappeared are skipped in favour of the next nearest. It reports false
// only when nothing resolves.
func (s *Store) At(ts int64) (types.CacheEntry, bool) {
	idx := s.loadIndex()
	for _, candidate := range nearestOrder(idx.sorted, ts) {
		if e, ok := s.resolve(idx, candidate); ok {
			return e, true
		}
	}
	return types.CacheEntry{}, false
}

// nearestOrder returns sorted reordered by distance to ts, ties toward the
// lower value.
func nearestOrder(sorted []int64, ts int64) []int64 {
	out := make([]int64, 0, len(sorted))

	hi := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= ts })
	lo := hi - 1

	for lo >= 0 || hi < len(sorted) {
		switch {
		case lo < 0:
			out = append(out, sorted[hi])
			hi++
		case hi >= len(sorted):
			out = append(out, sorted[lo])
			lo--
		case distance(sorted[lo], ts) <= distance(ts, sorted[hi]):
			out = append(out, sorted[lo])
			lo--
		default:
			out = append(out, sorted[hi])
			hi++
		}
	}
	return out
}

// distance returns hi-lo for lo <= hi without overflowing.
func distance(lo, hi int64) uint64 {
	return uint64(hi) - uint64(lo)
}

// Stats returns current statistics.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Writes:          s.stats.Writes.Load(),
		WriteErrors:     s.stats.WriteErrors.Load(),
		FallbackClock:   s.stats.FallbackClock.Load(),
		Scans:           s.stats.Scans.Load(),
		CorruptEntries:  s.stats.CorruptEntries.Load(),
		MissingEntries:  s.stats.MissingEntries.Load(),
		BytesCompressed: s.stats.BytesCompressed.Load(),
	}
}

// String implements fmt.Stringer.
func (s *Store) String() string {
	return fmt.Sprintf("store(%s)", s.root)
}
