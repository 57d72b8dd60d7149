package main

import (
	"flag"
	"io"
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		positional []string
		dryRun     bool
		verbose    bool
	}{
		{"none", nil, nil, false, false},
		{"flags first", []string{"--dry-run", "cache"}, []string{"cache"}, true, false},
		{"flags after root", []string{"cache", "--dry-run"}, []string{"cache"}, true, false},
		{"mixed", []string{"-v", "cache", "--dry-run"}, []string{"cache"}, true, true},
		{"extra positional", []string{"a", "-v", "b"}, []string{"a", "b"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			dryRun := fs.Bool("dry-run", false, "")
			verbose := fs.Bool("v", false, "")

			got, err := parseArgs(fs, tt.args)
			if err != nil {
				t.Fatalf("parseArgs: %v", err)
			}
			if !reflect.DeepEqual(got, tt.positional) {
				t.Errorf("expected positional %v, got %v", tt.positional, got)
			}
			if *dryRun != tt.dryRun || *verbose != tt.verbose {
				t.Errorf("expected dry-run=%v v=%v, got %v %v", tt.dryRun, tt.verbose, *dryRun, *verbose)
			}
		})
	}
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Bool("dry-run", false, "")

	if _, err := parseArgs(fs, []string{"cache", "--force"}); err == nil {
		t.Error("expected an error for an unknown flag after the root")
	}
}
