package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/krokicki/cluster-art/config"
	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/storage/layout"
	"github.com/krokicki/cluster-art/internal/storage/transform"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

const defaultGzipLevel = config.DefaultGzipLevel

// fetchedAtLayouts are tried in order. Values without a zone are UTC.
var fetchedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseFetchedAt parses an ISO-8601 capture time. A trailing "Z" means
// UTC, an explicit offset is honoured and a value with no zone is read as
// UTC. Fractional seconds are accepted and truncated by the caller.
func ParseFetchedAt(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, errors.WithKind(errors.ErrMalformedTimestamp, nil, "fetchedAt missing")
	}

	for _, l := range fetchedAtLayouts {
		if t, err := time.ParseInLocation(l, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.WithKind(errors.ErrMalformedTimestamp, nil, "fetchedAt %q", s)
}

// timestampFor returns the cache key of raw: its fetchedAt in whole seconds,
// or the current wall clock when fetchedAt is absent or unparseable.
func (s *Store) timestampFor(raw *types.RawSnapshot) int64 {
	if raw != nil {
		t, err := ParseFetchedAt(raw.FetchedAt)
		if err == nil {
			return t.Unix()
		}
		s.log.Warn("using wall clock for snapshot timestamp", "fetched_at", raw.FetchedAt, "error", err)
	} else {
		s.log.Warn("using wall clock for empty snapshot")
	}
	s.stats.FallbackClock.Add(1)
	return s.now().Unix()
}

// Write optimizes raw and persists it at its canonical hierarchical path,
// returning that path. Writing the same timestamp twice replaces the
// entry; readers see either the old or the new file, never a mix.
//
// Errors wrap ErrWriteFailure.
func (s *Store) Write(raw *types.RawSnapshot) (string, error) {
	ts := s.timestampFor(raw)

	data, err := json.Marshal(transform.Optimize(raw))
	if err != nil {
		s.stats.WriteErrors.Add(1)
		return "", errors.WithKind(errors.ErrWriteFailure, err, "encode snapshot %d", ts)
	}

	path := layout.PathFor(s.root, ts, types.ExtGzip)
	n, err := s.writeAtomic(path, data)
	if err != nil {
		s.stats.WriteErrors.Add(1)
		return "", err
	}

	s.invalidate()
	s.stats.Writes.Add(1)
	s.stats.BytesCompressed.Add(n)

	s.log.Info("snapshot cached",
		"timestamp", ts,
		"path", path,
		"json_bytes", len(data),
		"gzip_bytes", n,
	)
	return path, nil
}

// writeAtomic gzips data into a temp file next to path, syncs it and
// renames it over path. It returns the compressed size.
func (s *Store) writeAtomic(path string, data []byte) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "create temp file in %s", dir)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	zw, err := gzip.NewWriterLevel(tmp, s.gzipLevel)
	if err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "gzip level %d", s.gzipLevel)
	}
	if _, err := zw.Write(data); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "write %s", tmpPath)
	}
	if err := zw.Close(); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "flush %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "sync %s", tmpPath)
	}

	info, err := tmp.Stat()
	if err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "stat %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, errors.WithKind(errors.ErrWriteFailure, err, "rename to %s", path)
	}
	committed = true

	return info.Size(), nil
}
