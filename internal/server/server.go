// Package server provides the HTTP front of the snapshot cache.
//
// It serves the visualization page, the latest and historical snapshots and
// a health report. The storage service does all the work; handlers only
// translate between HTTP and the store's query surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/krokicki/cluster-art/config"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage"
)

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Service is the storage service (required).
	Service *storage.Service

	// Listen is the address to listen on (e.g., "0.0.0.0:8000").
	Listen string

	// IndexFile is the page served at "/".
	IndexFile string

	// DrainTimeout bounds graceful shutdown.
	DrainTimeout time.Duration
}

// =============================================================================
// Server
// =============================================================================

// Server is the HTTP server.
type Server struct {
	cfg    *Config
	svc    *storage.Service
	router chi.Router
	log    *slog.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// New creates a new server.
func New(cfg *Config) *Server {
	// Apply defaults
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = config.DefaultIndexFile
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = config.DefaultDrainTimeout
	}

	s := &Server{
		cfg: cfg,
		svc: cfg.Service,
		log: logging.Component("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Get("/cluster-status", s.handleClusterStatus)
		r.Get("/cluster-status/{timestamp}", s.handleClusterStatusAt)
		r.Get("/timestamps", s.handleTimestamps)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is cancelled,
// then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down", "drain_timeout", s.cfg.DrainTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh

	s.log.Info("shutdown complete")
	return nil
}

// Addr returns the listening address, nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
