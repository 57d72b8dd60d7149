package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/loader"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/ingestion"
	"github.com/krokicki/cluster-art/internal/storage/migrate"
	"github.com/krokicki/cluster-art/internal/storage/store"
	"github.com/krokicki/cluster-art/internal/upstream"
)

// Service is the main storage service that orchestrates all components.
type Service struct {
	mu sync.RWMutex

	config *loader.Config
	log    *slog.Logger

	// Components
	store    *store.Store
	migrator *migrate.Migrator
	pipeline *ingestion.Pipeline
	fetcher  ingestion.Fetcher

	// State
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	migration *migrate.Result

	// Statistics
	startTime time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithFetcher replaces the HTTP upstream client.
func WithFetcher(f ingestion.Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithLogger sets the service logger. Components log through their own
// component loggers.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a new storage service.
func New(cfg *loader.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = loader.DefaultConfig()
	}

	// Validate configuration
	if err := loader.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Component("storage")
	}

	s.store = store.New(cfg.Cache.Dir,
		store.WithIndexTTL(cfg.Cache.IndexTTL.Duration()),
		store.WithGzipLevel(cfg.Cache.GzipLevel),
	)
	s.migrator = migrate.New(cfg.Cache.Dir)

	if s.fetcher == nil {
		s.fetcher = upstream.New(upstream.Config{
			URL:          cfg.Upstream.URL,
			Timeout:      cfg.Upstream.Timeout.Duration(),
			MaxBodyBytes: cfg.Upstream.MaxBodyBytes.Bytes(),
		})
	}
	s.pipeline = ingestion.New(s.fetcher, s.store)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start starts all components. With migrate_on_start the migrator runs to
// completion before the fetch worker can write anything.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("service already running")
	}

	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	if s.config.Cache.MigrateOnStart {
		if err := s.runMigration(); err != nil {
			s.running.Store(false)
			return fmt.Errorf("migrate cache: %w", err)
		}
	}

	s.pipeline.Bootstrap()

	if s.config.Upstream.DisableFetch {
		s.log.Info("fetching disabled, serving existing cache", "root", s.store.Root())
		return nil
	}

	// Start the fetch worker
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pipeline.Run(s.ctx, s.config.Upstream.Interval.Duration()); err != nil {
			s.log.Error("fetch worker exited", "error", err)
		}
	}()

	return nil
}

func (s *Service) runMigration() error {
	if err := os.MkdirAll(s.store.Root(), 0o755); err != nil {
		return err
	}

	result, err := s.migrator.Run(false)
	if err != nil {
		return err
	}
	for _, line := range result.Summary() {
		s.log.Info(line)
	}

	s.mu.Lock()
	s.migration = &result
	s.mu.Unlock()
	return nil
}

// Stop stops all components gracefully.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.cancel()

	// Wait for the fetch worker
	s.wg.Wait()
	s.running.Store(false)

	return nil
}

// FetchNow runs one fetch cycle, joining any cycle already in flight.
func (s *Service) FetchNow(ctx context.Context) (string, error) {
	if s.config.Upstream.DisableFetch {
		return "", errors.ErrFetchDisabled
	}
	return s.pipeline.RunOnce(ctx)
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if !s.startTime.IsZero() && s.running.Load() {
		uptime = time.Since(s.startTime)
	}

	return ServiceStats{
		Running:      s.running.Load(),
		Uptime:       uptime,
		FetchEnabled: !s.config.Upstream.DisableFetch,
		Store:        s.store.Stats(),
		Pipeline:     s.pipeline.Status(),
		Migrator:     s.migrator.Stats(),
	}
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running      bool
	Uptime       time.Duration
	FetchEnabled bool
	Store        store.StoreStats
	Pipeline     ingestion.Status
	Migrator     migrate.Stats
}

// Store returns the snapshot store.
func (s *Service) Store() *store.Store {
	return s.store
}

// Pipeline returns the fetch pipeline.
func (s *Service) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

// Migrator returns the cache migrator.
func (s *Service) Migrator() *migrate.Migrator {
	return s.migrator
}

// LastMigration returns the result of the start-up migration, nil if none
// ran.
func (s *Service) LastMigration() *migrate.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.migration
}

// Config returns the current configuration.
func (s *Service) Config() *loader.Config {
	return s.config
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// FetchEnabled reports whether the service fetches from upstream.
func (s *Service) FetchEnabled() bool {
	return !s.config.Upstream.DisableFetch
}
