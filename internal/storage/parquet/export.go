package parquet

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// Source is the part of the snapshot store an export reads from.
type Source interface {
	InWindow(start, end int64) []int64
	At(ts int64) (types.CacheEntry, bool)
	Load(entry types.CacheEntry) (*types.OptimizedSnapshot, error)
}

// ExportResult summarizes one export.
type ExportResult struct {
	Path      string
	Snapshots int
	Skipped   int
	Rows      int64
	Duration  time.Duration
}

// Export writes every stored snapshot with start <= ts <= end to path as
// host rows, in timestamp order. Unreadable entries are logged and skipped.
func Export(src Source, start, end int64, path string, opts Options) (ExportResult, error) {
	return ExportWithLogger(src, start, end, path, opts, logging.Component("export"))
}

// ExportWithLogger is Export with an explicit logger.
func ExportWithLogger(src Source, start, end int64, path string, opts Options, log *slog.Logger) (ExportResult, error) {
	began := time.Now()
	result := ExportResult{Path: path}

	w, err := NewHostWriter(path, opts)
	if err != nil {
		return result, err
	}

	for _, ts := range src.InWindow(start, end) {
		entry, ok := src.At(ts)
		if !ok || entry.Timestamp != ts {
			result.Skipped++
			continue
		}

		snap, err := src.Load(entry)
		if err != nil {
			if errors.IsReadSkippable(err) {
				log.Warn("skipping unreadable entry", "path", entry.Path, "error", err)
				result.Skipped++
				continue
			}
			w.Close()
			return result, fmt.Errorf("load %s: %w", entry.Path, err)
		}

		if err := w.Write(SnapshotToRows(ts, snap)); err != nil {
			w.Close()
			return result, err
		}
		result.Snapshots++
	}

	if err := w.Close(); err != nil {
		return result, err
	}

	result.Rows = w.RowCount()
	result.Duration = time.Since(began)

	log.Info("export complete",
		"path", path,
		"snapshots", result.Snapshots,
		"skipped", result.Skipped,
		"rows", result.Rows,
		"compression", opts.Compression.String(),
		"duration", result.Duration,
	)
	return result, nil
}
