// Package ingestion runs the fetch cycle: pull one snapshot from upstream,
// hand it to the store, record the outcome.
//
// A Pipeline is the only writer of its store. Concurrent RunOnce calls
// (the periodic worker and an on-demand fetch from the HTTP layer) are
// coalesced into one cycle, so two writes never race.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// Fetcher retrieves one upstream snapshot. Implementations must honour ctx
// cancellation.
type Fetcher interface {
	Fetch(ctx context.Context) (*types.RawSnapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (*types.RawSnapshot, error)

// Fetch calls f(ctx).
func (f FetcherFunc) Fetch(ctx context.Context) (*types.RawSnapshot, error) {
	return f(ctx)
}

// Store is the part of the snapshot store the pipeline needs.
type Store interface {
	Write(raw *types.RawSnapshot) (string, error)
	Latest() (types.CacheEntry, bool)
}

// Status is the observable state of the pipeline.
type Status struct {
	// LastAttempt is when the last cycle started.
	LastAttempt time.Time

	// LastSuccess is when an entry was last produced, or the capture time of
	// the newest cached entry after Bootstrap.
	LastSuccess time.Time

	// LastPath is the entry written by the last successful cycle.
	LastPath string

	// LastError is the failure of the most recent cycle, nil after a
	// success.
	LastError error

	Cycles   int64
	Failures int64
}

// LastErrorString returns the last error message, "" when none.
func (s Status) LastErrorString() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Error()
}

// Pipeline drives fetch cycles against a store.
type Pipeline struct {
	fetcher Fetcher
	store   Store
	log     *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	status Status

	group   singleflight.Group
	cycle   atomic.Uint64
	running atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock sets the clock used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline that writes what fetcher returns into store.
func New(fetcher Fetcher, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logging.Component("ingestion")
	}
	return p
}

// Bootstrap seeds the status from the newest cached entry so a restart
// does not report the cache as never fetched. It reports whether the cache
// had an entry.
func (p *Pipeline) Bootstrap() (types.CacheEntry, bool) {
	entry, ok := p.store.Latest()
	if !ok {
		p.log.Info("no cached data found")
		return types.CacheEntry{}, false
	}

	p.mu.Lock()
	if entry.Time().After(p.status.LastSuccess) {
		p.status.LastSuccess = entry.Time()
		p.status.LastPath = entry.Path
	}
	p.mu.Unlock()

	p.log.Info("using cached entry", "path", entry.Path, "timestamp", entry.Timestamp)
	return entry, true
}

// RunOnce performs one fetch-and-write cycle and returns the path written.
// Callers arriving while a cycle is in flight share its outcome. When ctx
// is cancelled before the snapshot reaches the store nothing is written.
func (p *Pipeline) RunOnce(ctx context.Context) (string, error) {
	v, err, shared := p.group.Do("cycle", func() (interface{}, error) {
		return p.runCycle(ctx)
	})
	if shared {
		p.log.Debug("joined in-flight fetch cycle")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Pipeline) runCycle(ctx context.Context) (string, error) {
	cycle := p.cycle.Add(1)
	ctx = logging.ContextWithCycle(ctx, cycle)
	log := p.log.With("cycle", cycle)

	start := p.now()
	p.mu.Lock()
	p.status.LastAttempt = start
	p.status.Cycles++
	p.mu.Unlock()

	raw, err := p.fetcher.Fetch(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		p.fail(err)
		log.Warn("fetch failed", "error", err)
		return "", err
	}

	path, err := p.store.Write(raw)
	if err != nil {
		p.fail(err)
		log.Error("cache write failed", "error", err)
		return "", err
	}

	p.mu.Lock()
	p.status.LastSuccess = p.now()
	p.status.LastPath = path
	p.status.LastError = nil
	p.mu.Unlock()

	log.Info("fetch cycle complete", "path", path, "duration", p.now().Sub(start))
	return path, nil
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	p.status.LastError = err
	p.status.Failures++
	p.mu.Unlock()
}

// Run performs a cycle immediately and then every interval until ctx is
// cancelled. Cycle failures are recorded and do not stop the loop.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.NewValidation("fetch interval", fmt.Sprintf("must be positive, got %s", interval))
	}
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	p.log.Info("fetch worker started", "interval", interval)

	p.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("fetch worker stopped")
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// IsRunning returns whether the periodic worker is active.
func (p *Pipeline) IsRunning() bool {
	return p.running.Load()
}

// Status returns a copy of the current status.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
