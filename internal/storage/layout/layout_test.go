package layout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/krokicki/cluster-art/internal/storage/types"
)

func TestPathFor(t *testing.T) {
	tests := []struct {
		name     string
		ts       int64
		ext      types.Ext
		expected string
	}{
		{
			name:     "compressed",
			ts:       1710496800, // 2024-03-15T10:00:00Z
			ext:      types.ExtGzip,
			expected: filepath.Join("cache", "202403", "15", "1710496800.json.gz"),
		},
		{
			name:     "plain",
			ts:       1700000000, // 2023-11-14T22:13:20Z
			ext:      types.ExtJSON,
			expected: filepath.Join("cache", "202311", "14", "1700000000.json"),
		},
		{
			name:     "last second of the month",
			ts:       1711929599, // 2024-03-31T23:59:59Z
			ext:      types.ExtGzip,
			expected: filepath.Join("cache", "202403", "31", "1711929599.json.gz"),
		},
		{
			name:     "first second of the next month",
			ts:       1711929600, // 2024-04-01T00:00:00Z
			ext:      types.ExtGzip,
			expected: filepath.Join("cache", "202404", "01", "1711929600.json.gz"),
		},
		{
			name:     "epoch",
			ts:       0,
			ext:      types.ExtGzip,
			expected: filepath.Join("cache", "197001", "01", "0.json.gz"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PathFor("cache", tt.ts, tt.ext)
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestPathFor_IgnoresLocalTimezone(t *testing.T) {
	saved := time.Local
	defer func() { time.Local = saved }()

	// 2023-11-14T22:13:20Z is already 2023-11-15 in UTC+14 and still
	// 2023-11-14 in UTC-12.
	const ts = 1700000000
	want := filepath.Join("root", "202311", "14", "1700000000.json.gz")

	for _, zone := range []*time.Location{
		time.UTC,
		time.FixedZone("UTC+14", 14*3600),
		time.FixedZone("UTC-12", -12*3600),
	} {
		time.Local = zone
		if got := PathFor("root", ts, types.ExtGzip); got != want {
			t.Errorf("zone %s: expected %s, got %s", zone, want, got)
		}
	}
}

func TestTimestampFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected int64
		valid    bool
	}{
		{"1710496800.json.gz", 1710496800, true},
		{"1710496800.json", 1710496800, true},
		{filepath.Join("cache", "202403", "15", "1710496800.json.gz"), 1710496800, true},
		{"0.json.gz", 0, true},
		{"latest.json.gz", 0, false},
		{"abc.json", 0, false},
		{".json.gz", 0, false},
		{"12a34.json.gz", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := TimestampFromPath(tt.path)
		if ok != tt.valid {
			t.Errorf("%q: expected valid=%v, got %v", tt.path, tt.valid, ok)
			continue
		}
		if ok && got != tt.expected {
			t.Errorf("%q: expected %d, got %d", tt.path, tt.expected, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	timestamps := []int64{0, 1, 59, 86399, 86400, 951782400, 1700000000, 1710496800, 4102444800}

	for _, ts := range timestamps {
		for _, ext := range types.AllExts() {
			path := PathFor("/var/cache/cluster", ts, ext)
			got, ok := TimestampFromPath(path)
			if !ok {
				t.Errorf("%s: not parsed", path)
				continue
			}
			if got != ts {
				t.Errorf("%s: expected %d, got %d", path, ts, got)
			}
		}
	}
}

func TestExtOf(t *testing.T) {
	tests := []struct {
		name  string
		ext   types.Ext
		valid bool
	}{
		{"1.json.gz", types.ExtGzip, true},
		{"1.json", types.ExtJSON, true},
		{".1.json.gz.tmp-123", "", false},
		{"1.gz", "", false},
		{"notes.txt", "", false},
	}

	for _, tt := range tests {
		ext, ok := ExtOf(tt.name)
		if ok != tt.valid || ext != tt.ext {
			t.Errorf("%q: expected (%q, %v), got (%q, %v)", tt.name, tt.ext, tt.valid, ext, ok)
		}
	}
}

func TestIsCorrect(t *testing.T) {
	root := "cache"

	if !IsCorrect(root, PathFor(root, 1700000000, types.ExtGzip)) {
		t.Error("path from PathFor should be correct")
	}
	if IsCorrect(root, filepath.Join(root, "202311", "15", "1700000000.json.gz")) {
		t.Error("wrong day should not be correct")
	}
	if IsCorrect(root, FlatPathFor(root, 1700000000, types.ExtGzip)) {
		t.Error("flat path should not be correct")
	}
	if IsCorrect(root, filepath.Join(root, "202311", "14", "bad.json.gz")) {
		t.Error("invalid name should not be correct")
	}
}

func TestResolveRoot(t *testing.T) {
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "cache")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	want, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	if got := ResolveRoot(link); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	missing := filepath.Join(target, "not", "yet", "..", "there")
	if got := ResolveRoot(missing); got != filepath.Clean(missing) {
		t.Errorf("missing root should be cleaned, got %s", got)
	}
}
