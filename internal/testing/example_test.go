package testing

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTest(t *testing.T) {
	gt := NewGoroutineTest(t)

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}
	gt.Wait()

	if got := done.Load(); got != 5 {
		t.Errorf("expected 5 goroutines to finish, got %d", got)
	}
}

func TestGoroutineTest_ReportsErrors(t *testing.T) {
	inner := &testing.T{}
	gt := NewGoroutineTest(inner)
	gt.Go(func() error { return fmt.Errorf("boom") })
	gt.Go(func() error { return nil })

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		gt.Wait()
	}()
	<-finished

	if !inner.Failed() {
		t.Error("expected the returned error to fail the test")
	}
}

func TestEventually(t *testing.T) {
	var ready atomic.Bool

	go func() {
		time.Sleep(100 * time.Millisecond)
		ready.Store(true)
	}()

	err := Eventually(1*time.Second, 20*time.Millisecond, func() bool {
		return ready.Load()
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCacheTree(t *testing.T) {
	tree := NewCacheTree(t)
	tree.PutSnapshot("202311/14/1700000000.json.gz", SnapshotJSON("", "h1"))
	tree.PutSnapshot("1700000100.json", "{}")
	tree.Mkdir("202401/02")

	files := tree.Files()
	expected := []string{"1700000100.json", "202311/14/1700000000.json.gz"}
	if fmt.Sprint(files) != fmt.Sprint(expected) {
		t.Errorf("expected %v, got %v", expected, files)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	payload := SnapshotJSON("2024-03-15T10:00:00Z", "h1", "h2")
	if got := string(Gunzip(t, Gzip(t, []byte(payload)))); got != payload {
		t.Errorf("round trip changed payload: %s", got)
	}

	raw := RawSnapshot(t, "2024-03-15T10:00:00Z", "h1", "h2")
	if raw.FetchedAt != "2024-03-15T10:00:00Z" || len(raw.HostDetails) != 2 {
		t.Errorf("unexpected snapshot %+v", raw)
	}
}

func TestUpstream(t *testing.T) {
	u := NewUpstream(t, `{"hostDetails": []}`)

	get := func() (int, string) {
		resp, err := http.Get(u.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if status, body := get(); status != http.StatusOK || body != `{"hostDetails": []}` {
		t.Errorf("unexpected response %d %q", status, body)
	}

	u.SetStatus(http.StatusBadGateway)
	if status, _ := get(); status != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", status)
	}

	u.SetStatus(http.StatusOK)
	u.SetPayload(`{}`)
	if _, body := get(); strings.TrimSpace(body) != "{}" {
		t.Errorf("expected new payload, got %q", body)
	}

	if u.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", u.Calls())
	}
}
