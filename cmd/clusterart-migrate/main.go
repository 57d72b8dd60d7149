// clusterart-migrate moves cache files into the date-bucketed layout.
//
// Usage:
//
//	clusterart-migrate [--dry-run] [root]
//
// root defaults to "cache" and flags may follow it. The tool is idempotent; files that cannot be
// placed are skipped and reported. It exits non-zero only when the root is
// unusable.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/krokicki/cluster-art/config"
	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/migrate"
)

// parseArgs parses flags wherever they appear in args and returns the
// positional arguments in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report what would change without touching files")
	verbose := fs.Bool("v", false, "log every action")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [--dry-run] [-v] [root]\n", os.Args[0])
		fs.PrintDefaults()
	}

	args, _ := parseArgs(fs, os.Args[1:])
	if len(args) > 1 {
		fs.Usage()
		os.Exit(2)
	}

	root := config.DefaultCacheDir
	if len(args) == 1 {
		root = args[0]
	}

	level, _ := logging.ParseLevel("warn")
	if *verbose {
		level, _ = logging.ParseLevel("info")
	}
	logging.Init(level, false)

	m := migrate.New(root)
	result, err := m.Run(*dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clusterart-migrate: %v\n", err)
		if errors.Is(err, errors.ErrRootUnusable) {
			os.Exit(1)
		}
		os.Exit(2)
	}

	if *dryRun {
		fmt.Printf("Dry run of %s, nothing changed\n", root)
	}
	for _, line := range result.Summary() {
		fmt.Println(line)
	}
	for _, err := range result.Errors() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}
