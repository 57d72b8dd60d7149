package store

import (
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// Open opens the file behind entry as stored: a gzip stream for compressed
// entries, plain JSON otherwise.
func (s *Store) Open(entry types.CacheEntry) (*os.File, error) {
	f, err := os.Open(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.stats.MissingEntries.Add(1)
			return nil, errors.WithKind(errors.ErrNotFound, err, "entry %d", entry.Timestamp)
		}
		return nil, errors.Wrapf(err, "open entry %d", entry.Timestamp)
	}
	return f, nil
}

// decodedReader closes both the gzip reader and the file under it.
type decodedReader struct {
	*gzip.Reader
	file *os.File
}

func (r *decodedReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenDecoded opens entry and returns its JSON bytes, decompressing when
// needed. A compressed entry with a bad gzip header reports ErrCorruptEntry.
func (s *Store) OpenDecoded(entry types.CacheEntry) (io.ReadCloser, error) {
	f, err := s.Open(entry)
	if err != nil {
		return nil, err
	}
	if !entry.Compressed() {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		s.stats.CorruptEntries.Add(1)
		return nil, errors.WithKind(errors.ErrCorruptEntry, err, "entry %d", entry.Timestamp)
	}
	return &decodedReader{Reader: zr, file: f}, nil
}

// ReadRaw returns the stored bytes of entry unchanged.
func (s *Store) ReadRaw(entry types.CacheEntry) ([]byte, error) {
	f, err := s.Open(entry)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read entry %d", entry.Timestamp)
	}
	return data, nil
}

// ReadDecoded returns the JSON document of entry.
func (s *Store) ReadDecoded(entry types.CacheEntry) ([]byte, error) {
	r, err := s.OpenDecoded(entry)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		s.stats.CorruptEntries.Add(1)
		return nil, errors.WithKind(errors.ErrCorruptEntry, err, "entry %d", entry.Timestamp)
	}
	return data, nil
}

// Load decodes entry into an OptimizedSnapshot.
func (s *Store) Load(entry types.CacheEntry) (*types.OptimizedSnapshot, error) {
	data, err := s.ReadDecoded(entry)
	if err != nil {
		return nil, err
	}

	var snap types.OptimizedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.stats.CorruptEntries.Add(1)
		return nil, errors.WithKind(errors.ErrCorruptEntry, err, "entry %d", entry.Timestamp)
	}
	return &snap, nil
}

// LoadLatest returns the newest entry that decodes. Corrupt or vanished
// entries are logged and skipped. It reports ErrNotFound when nothing
// decodes.
func (s *Store) LoadLatest() (types.CacheEntry, *types.OptimizedSnapshot, error) {
	idx := s.loadIndex()
	for i := len(idx.sorted) - 1; i >= 0; i-- {
		entry, ok := s.resolve(idx, idx.sorted[i])
		if !ok {
			continue
		}
		snap, err := s.Load(entry)
		if err != nil {
			if errors.IsReadSkippable(err) {
				s.log.Warn("skipping unreadable entry", "path", entry.Path, "error", err)
				continue
			}
			return types.CacheEntry{}, nil, err
		}
		return entry, snap, nil
	}
	return types.CacheEntry{}, nil, errors.WithKind(errors.ErrNotFound, nil, "no readable snapshot in %s", s.root)
}
