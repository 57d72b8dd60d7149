package testing

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/krokicki/cluster-art/internal/storage/types"
)

// =============================================================================
// Snapshot Payloads
// =============================================================================

// SnapshotJSON returns an upstream payload captured at fetchedAt with one
// host per name. Each host has user "alice" on cpu slot 0 and an idle slot 1.
// An empty fetchedAt omits the field.
func SnapshotJSON(fetchedAt string, hosts ...string) string {
	var b strings.Builder
	b.WriteString("{")
	if fetchedAt != "" {
		fmt.Fprintf(&b, "%q: %q, ", "fetchedAt", fetchedAt)
	}
	b.WriteString(`"hostDetails": [`)
	for i, h := range hosts {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `{"hostname": %q, "cpuSlots": ["alice", null]}`, h)
	}
	b.WriteString(`], "hardwareGroups": {}}`)
	return b.String()
}

// RawSnapshot parses SnapshotJSON(fetchedAt, hosts...).
func RawSnapshot(t *testing.T, fetchedAt string, hosts ...string) *types.RawSnapshot {
	t.Helper()
	raw, err := types.ParseRawSnapshot([]byte(SnapshotJSON(fetchedAt, hosts...)))
	if err != nil {
		t.Fatalf("ParseRawSnapshot: %v", err)
	}
	return raw
}

// =============================================================================
// Gzip
// =============================================================================

// Gzip compresses data.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// Gunzip decompresses data.
func Gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return out
}

// =============================================================================
// Cache Trees
// =============================================================================

// CacheTree builds cache directories for tests.
//
// Usage:
//
//	tree := testutil.NewCacheTree(t)
//	tree.PutSnapshot("1700000000.json.gz", testutil.SnapshotJSON("", "h1"))
//	tree.PutSnapshot("202311/14/1700000100.json", "{}")
//	s := store.New(tree.Root)
type CacheTree struct {
	t    *testing.T
	Root string
}

// NewCacheTree creates an empty tree under t.TempDir().
func NewCacheTree(t *testing.T) *CacheTree {
	return &CacheTree{t: t, Root: t.TempDir()}
}

// Path returns the absolute path of rel.
func (c *CacheTree) Path(rel string) string {
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

// Put writes data at rel, creating parent directories.
func (c *CacheTree) Put(rel string, data []byte) string {
	c.t.Helper()
	path := c.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// PutSnapshot writes payload at rel, gzipped when rel ends in ".gz".
func (c *CacheTree) PutSnapshot(rel, payload string) string {
	c.t.Helper()
	data := []byte(payload)
	if strings.HasSuffix(rel, ".gz") {
		data = Gzip(c.t, data)
	}
	return c.Put(rel, data)
}

// Mkdir creates rel and its parents.
func (c *CacheTree) Mkdir(rel string) {
	c.t.Helper()
	if err := os.MkdirAll(c.Path(rel), 0o755); err != nil {
		c.t.Fatalf("MkdirAll: %v", err)
	}
}

// Files returns every regular file below the root as a sorted list of
// slash-separated relative paths.
func (c *CacheTree) Files() []string {
	c.t.Helper()
	var files []string
	err := filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(c.Root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		c.t.Fatalf("walk %s: %v", c.Root, err)
	}
	sort.Strings(files)
	return files
}

// =============================================================================
// Upstream Stub
// =============================================================================

// Upstream is an httptest server standing in for the cluster-status API.
type Upstream struct {
	*httptest.Server

	calls   atomic.Int64
	payload atomic.Value
	status  atomic.Int64
}

// NewUpstream starts a server that answers every request with payload. The
// server is closed when the test ends.
func NewUpstream(t *testing.T, payload string) *Upstream {
	u := &Upstream{}
	u.payload.Store(payload)
	u.status.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		status := int(u.status.Load())
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, u.payload.Load().(string))
	}))
	t.Cleanup(u.Close)
	return u
}

// SetPayload changes the body served from now on.
func (u *Upstream) SetPayload(payload string) {
	u.payload.Store(payload)
}

// SetStatus makes every following request fail with status, or succeed
// again with http.StatusOK.
func (u *Upstream) SetStatus(status int) {
	u.status.Store(int64(status))
}

// Calls returns the number of requests served.
func (u *Upstream) Calls() int64 {
	return u.calls.Load()
}
