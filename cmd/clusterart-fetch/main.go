// clusterart-fetch performs one fetch cycle and exits. It is meant for cron
// jobs that keep a cache current without running the daemon.
//
// Usage:
//
//	clusterart-fetch [--config FILE] [--cache-folder DIR] [--upstream-url URL]
//
// Exits 1 when no cache entry was produced.
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
	"github.com/krokicki/cluster-art/internal/storage/ingestion"
	"github.com/krokicki/cluster-art/internal/storage/store"
	"github.com/krokicki/cluster-art/internal/upstream"
)

func main() {
	cfgPath := flag.String("config", "", "config file path")
	cacheDir := flag.String("cache-folder", "", "cache root (overrides config)")
	upstreamURL := flag.String("upstream-url", "", "cluster-status URL (overrides config)")
	flag.Parse()

	cfg, err := loader.LoadWithEnv(*cfgPath)
	if err != nil {
		fail("load config", err)
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if *upstreamURL != "" {
		cfg.Upstream.URL = *upstreamURL
	}
	if cfg.Upstream.URL == "" {
		fail("invalid config", fmt.Errorf("no upstream URL"))
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)

	s := store.New(cfg.Cache.Dir, store.WithGzipLevel(cfg.Cache.GzipLevel))
	client := upstream.New(upstream.Config{
		URL:          cfg.Upstream.URL,
		Timeout:      cfg.Upstream.Timeout.Duration(),
		MaxBodyBytes: cfg.Upstream.MaxBodyBytes.Bytes(),
	})
	p := ingestion.New(client, s)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := p.RunOnce(ctx)
	if err != nil {
		fail("fetch", err)
	}

	fmt.Printf("Saved to %s\n", path)
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "clusterart-fetch: %s: %v\n", msg, err)
	os.Exit(1)
}
