// clusterart-export flattens cached snapshots into a Parquet file with one
// row per host per snapshot.
//
// Usage:
//
//	clusterart-export [--config FILE] [--cache-folder DIR] [--start TS] [--end TS]
//	                  [--compression zstd|snappy|lz4|gzip|none] --out FILE
//
// --start and --end take unix seconds or RFC 3339 times; both are inclusive
// and default to the whole cache.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/krokicki/cluster-art/internal/loader"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/parquet"
	"github.com/krokicki/cluster-art/internal/storage/store"
)

func main() {
	cfgPath := flag.String("config", "", "config file path")
	cacheDir := flag.String("cache-folder", "", "cache root (overrides config)")
	start := flag.String("start", "", "window start (unix seconds or RFC 3339)")
	end := flag.String("end", "", "window end (unix seconds or RFC 3339)")
	compression := flag.String("compression", "", "parquet codec (overrides config)")
	out := flag.String("out", "", "output file")
	flag.Parse()

	if *out == "" {
		fail("usage", fmt.Errorf("--out is required"))
	}

	cfg, err := loader.LoadWithEnv(*cfgPath)
	if err != nil {
		fail("load config", err)
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if *compression != "" {
		cfg.Export.Compression = *compression
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)

	startTS, err := parseBound(*start, 0)
	if err != nil {
		fail("parse --start", err)
	}
	endTS, err := parseBound(*end, math.MaxInt64)
	if err != nil {
		fail("parse --end", err)
	}

	s := store.New(cfg.Cache.Dir)
	result, err := parquet.Export(s, startTS, endTS, *out, loader.ExportOptions(&cfg.Export))
	if err != nil {
		fail("export", err)
	}

	fmt.Printf("Wrote %d rows from %d snapshots to %s (%d skipped, %s)\n",
		result.Rows, result.Snapshots, result.Path, result.Skipped, result.Duration.Round(time.Millisecond))
}

func parseBound(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither unix seconds nor RFC 3339", s)
	}
	return t.Unix(), nil
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "clusterart-export: %s: %v\n", msg, err)
	os.Exit(1)
}
