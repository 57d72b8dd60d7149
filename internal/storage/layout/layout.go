// Package layout maps unix timestamps to cache file locations and back.
//
// It is the single source of truth for where a snapshot lives:
//
//	<root>/<YYYYMM>/<DD>/<timestamp>.json.gz
//
// Year, month and day always come from the timestamp in UTC. The process's
// local timezone never takes part in the computation.
package layout

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/krokicki/cluster-art/internal/storage/types"
)

const (
	yearMonthLayout = "200601"
	dayLayout       = "02"
)

// Bucket returns the year-month and day directory names for ts.
func Bucket(ts int64) (yearMonth, day string) {
	t := time.Unix(ts, 0).UTC()
	return t.Format(yearMonthLayout), t.Format(dayLayout)
}

// FileName returns the base name of the entry for ts.
func FileName(ts int64, ext types.Ext) string {
	return strconv.FormatInt(ts, 10) + string(ext)
}

// PathFor returns the hierarchical path of the entry for ts under root.
func PathFor(root string, ts int64, ext types.Ext) string {
	yearMonth, day := Bucket(ts)
	return filepath.Join(root, yearMonth, day, FileName(ts, ext))
}

// FlatPathFor returns the legacy flat path of the entry for ts under root.
// New writes never use it.
func FlatPathFor(root string, ts int64, ext types.Ext) string {
	return filepath.Join(root, FileName(ts, ext))
}

// ExtOf reports the cache extension of name, or false when name does not
// have the cache-file shape. Temp files written by the store never match.
func ExtOf(name string) (types.Ext, bool) {
	base := filepath.Base(name)
	switch {
	case strings.HasSuffix(base, string(types.ExtGzip)):
		return types.ExtGzip, true
	case strings.HasSuffix(base, string(types.ExtJSON)):
		return types.ExtJSON, true
	default:
		return "", false
	}
}

// ResolveRoot returns root with symlinks evaluated so directory walks
// descend into a linked cache. A root that does not exist yet is returned
// cleaned.
func ResolveRoot(root string) string {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return filepath.Clean(root)
	}
	return resolved
}

// TimestampFromPath parses the timestamp encoded in a cache file name.
//
// The final extension is stripped, then a trailing ".json" (so both
// "123.json" and "123.json.gz" give 123), and the rest must be a base-10
// integer. Anything else reports false; a malformed name is never read as
// the epoch.
func TimestampFromPath(path string) (int64, bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSuffix(stem, string(types.ExtJSON))
	if stem == "" {
		return 0, false
	}

	ts, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// IsCorrect reports whether path is exactly where PathFor would put the
// entry it names.
func IsCorrect(root, path string) bool {
	ts, ok := TimestampFromPath(path)
	if !ok {
		return false
	}
	ext, ok := ExtOf(path)
	if !ok {
		return false
	}
	return filepath.Clean(path) == PathFor(root, ts, ext)
}
