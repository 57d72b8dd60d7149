package ingestion

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/store"
	"github.com/krokicki/cluster-art/internal/storage/types"
	testutil "github.com/krokicki/cluster-art/internal/testing"
)

func snapshotAt(t *testing.T, fetchedAt string) *types.RawSnapshot {
	t.Helper()
	raw, err := types.ParseRawSnapshot([]byte(fmt.Sprintf(
		`{"fetchedAt": %q, "hostDetails": [{"hostname": "h1", "cpuSlots": ["alice", null]}]}`, fetchedAt)))
	if err != nil {
		t.Fatalf("ParseRawSnapshot: %v", err)
	}
	return raw
}

func newTestPipeline(t *testing.T, f Fetcher) (*Pipeline, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir(), store.WithLogger(logging.Discard()))
	return New(f, s, WithLogger(logging.Discard())), s
}

func TestRunOnce_Success(t *testing.T) {
	raw := snapshotAt(t, "2024-03-15T10:00:00Z")
	p, s := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		return raw, nil
	}))

	path, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	latest, ok := s.Latest()
	if !ok || latest.Path != path || latest.Timestamp != 1710496800 {
		t.Fatalf("unexpected latest %+v (ok=%v), path %s", latest, ok, path)
	}

	status := p.Status()
	if status.LastPath != path || status.LastError != nil || status.LastSuccess.IsZero() {
		t.Errorf("unexpected status %+v", status)
	}
	if status.Cycles != 1 || status.Failures != 0 {
		t.Errorf("expected 1 cycle 0 failures, got %d/%d", status.Cycles, status.Failures)
	}
}

func TestRunOnce_FetchFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	p, s := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		if fail.Load() {
			return nil, errors.WithKind(errors.ErrUpstreamUnavailable, nil, "status 502")
		}
		return snapshotAt(t, "2024-03-15T10:00:00Z"), nil
	}))

	if _, err := p.RunOnce(context.Background()); !errors.Is(err, errors.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if got := s.AllTimestamps(); len(got) != 0 {
		t.Errorf("failed cycle should write nothing, got %v", got)
	}

	status := p.Status()
	if status.LastError == nil || status.LastErrorString() == "" {
		t.Error("expected last error to be recorded")
	}
	if status.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", status.Failures)
	}

	// Next cycle succeeds and clears the error
	fail.Store(false)
	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if status := p.Status(); status.LastError != nil {
		t.Errorf("success should clear last error, got %v", status.LastError)
	}
}

func TestRunOnce_CancelledWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p, s := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		cancel()
		return snapshotAt(t, "2024-03-15T10:00:00Z"), nil
	}))

	if _, err := p.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := s.AllTimestamps(); len(got) != 0 {
		t.Errorf("cancelled cycle should write nothing, got %v", got)
	}
}

func TestRunOnce_Coalesces(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	p, _ := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return snapshotAt(t, "2024-03-15T10:00:00Z"), nil
	}))

	gt := testutil.NewGoroutineTest(t)
	paths := make([]string, 2)

	gt.Go(func() error {
		var err error
		paths[0], err = p.RunOnce(context.Background())
		return err
	})
	<-started

	gt.Go(func() error {
		var err error
		paths[1], err = p.RunOnce(context.Background())
		return err
	})

	// Give the second caller time to join the in-flight cycle
	time.Sleep(50 * time.Millisecond)
	close(release)
	gt.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
	if paths[0] == "" || paths[0] != paths[1] {
		t.Errorf("both callers should see the same path, got %v", paths)
	}
}

func TestBootstrap(t *testing.T) {
	p, s := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		return nil, errors.ErrUpstreamUnavailable
	}))

	if _, ok := p.Bootstrap(); ok {
		t.Fatal("Bootstrap on empty cache should report false")
	}

	path, err := s.Write(snapshotAt(t, "2024-03-15T10:00:00Z"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	entry, ok := p.Bootstrap()
	if !ok || entry.Path != path {
		t.Fatalf("expected %s, got %+v", path, entry)
	}

	status := p.Status()
	if !status.LastSuccess.Equal(time.Unix(1710496800, 0)) {
		t.Errorf("expected last success from entry time, got %v", status.LastSuccess)
	}
	if status.LastPath != path {
		t.Errorf("expected last path %s, got %s", path, status.LastPath)
	}
}

func TestRun_PeriodicAndStop(t *testing.T) {
	var calls atomic.Int32
	p, _ := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		n := calls.Add(1)
		return snapshotAt(t, time.Unix(1710496800+int64(n), 0).UTC().Format(time.RFC3339)), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 10*time.Millisecond) }()

	deadline := time.After(5 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("worker did not run periodically")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !p.IsRunning() {
		t.Error("pipeline should report running")
	}
	if err := p.Run(ctx, time.Second); err == nil {
		t.Error("expected error on second Run")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if p.IsRunning() {
		t.Error("pipeline should not be running after stop")
	}
}

func TestRun_InvalidInterval(t *testing.T) {
	p, _ := newTestPipeline(t, FetcherFunc(func(ctx context.Context) (*types.RawSnapshot, error) {
		return nil, nil
	}))

	if err := p.Run(context.Background(), 0); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
