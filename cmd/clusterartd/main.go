// clusterartd is the cluster-art daemon: it fetches cluster status on a
// schedule, caches every snapshot and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/krokicki/cluster-art/internal/loader"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/server"
	"github.com/krokicki/cluster-art/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	cacheDir := flag.String("cache-folder", "", "cache root (overrides config)")
	noFetch := flag.Bool("no-fetch", false, "serve the existing cache without fetching")
	migrate := flag.Bool("migrate", false, "migrate the cache layout before the first fetch")
	flag.Parse()

	// Load config
	cfg, err := loader.LoadWithEnv(*cfgPath)
	if err != nil {
		fatal("load config", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if *noFetch {
		cfg.Upstream.DisableFetch = true
	}
	if *migrate {
		cfg.Cache.MigrateOnStart = true
	}

	if err := loader.Validate(cfg); err != nil {
		fatal("invalid config", err)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("main")

	log.Info("clusterartd starting",
		"version", Version,
		"upstream", cfg.Upstream.URL,
		"interval", cfg.Upstream.Interval.Duration(),
		"cache", cfg.Cache.Dir,
		"fetch_enabled", !cfg.Upstream.DisableFetch,
	)

	// =========================================================================
	// Initialize Storage (store, migrator, fetch pipeline)
	// =========================================================================

	svc, err := storage.New(cfg)
	if err != nil {
		fatal("create storage", err)
	}
	if err := svc.Start(); err != nil {
		fatal("start storage", err)
	}

	// =========================================================================
	// Create and Run Server
	// =========================================================================

	srv := server.New(&server.Config{
		Service:      svc,
		Listen:       cfg.Server.Listen,
		IndexFile:    cfg.Server.IndexFile,
		DrainTimeout: cfg.Server.DrainTimeout.Duration(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)

	// Stop the fetch worker after the server stopped taking requests
	log.Info("stopping storage")
	if err := svc.Stop(); err != nil {
		log.Warn("storage stop", "error", err)
	}

	if runErr != nil {
		fatal("server error", runErr)
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "clusterartd: %s: %v\n", msg, err)
	os.Exit(1)
}
