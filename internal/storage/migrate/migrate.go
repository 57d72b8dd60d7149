// Package migrate brings an existing cache tree into the canonical UTC
// layout.
//
// A run has three phases, each idempotent:
//
//  1. MigrateFlat moves legacy <root>/<ts>.json[.gz] files into their
//     <YYYYMM>/<DD> bucket.
//  2. FixMisplaced moves hierarchical files bucketed with the wrong date
//     (written with local time instead of UTC) to the right bucket.
//  3. PruneEmptyDirs removes directories left empty, deepest first.
//
// Nothing is ever overwritten: a file whose destination is taken stays
// where it is and is reported as skipped. A migration must not overlap with
// a fetch cycle writing to the same root.
package migrate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/layout"
)

// Phase identifies one migration step.
type Phase int

const (
	PhaseFlat Phase = iota
	PhaseMisplaced
	PhasePrune
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseFlat:
		return "migrate-flat"
	case PhaseMisplaced:
		return "fix-misplaced"
	case PhasePrune:
		return "prune-empty-dirs"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ActionKind is what happened (or would happen) to one path.
type ActionKind int

const (
	ActionMove ActionKind = iota
	ActionRemoveDir
	ActionSkip
)

// Action is one decision taken during a phase. Paths are relative to the
// root.
type Action struct {
	Kind   ActionKind
	Source string
	Target string
	Reason string
}

// PhaseResult holds the outcome of one phase.
type PhaseResult struct {
	Phase   Phase
	Acted   int
	Skipped int
	Actions []Action
	Errors  []error
}

// Result holds the outcome of a full run.
type Result struct {
	Root      string
	DryRun    bool
	Flat      PhaseResult
	Misplaced PhaseResult
	Prune     PhaseResult
	Duration  time.Duration
}

// Changed reports whether the run moved or removed anything.
func (r Result) Changed() bool {
	return r.Flat.Acted+r.Misplaced.Acted+r.Prune.Acted > 0
}

// Errors returns the non-fatal errors of all phases.
func (r Result) Errors() []error {
	var errs []error
	errs = append(errs, r.Flat.Errors...)
	errs = append(errs, r.Misplaced.Errors...)
	errs = append(errs, r.Prune.Errors...)
	return errs
}

// Summary renders the per-phase totals.
func (r Result) Summary() []string {
	verb := "Did"
	if r.DryRun {
		verb = "Would"
	}
	return []string{
		fmt.Sprintf("%s move %d flat files (%d skipped)", verb, r.Flat.Acted, r.Flat.Skipped),
		fmt.Sprintf("%s fix %d misplaced files (%d skipped)", verb, r.Misplaced.Acted, r.Misplaced.Skipped),
		fmt.Sprintf("%s remove %d empty directories", verb, r.Prune.Acted),
	}
}

// Stats holds cumulative migration statistics.
type Stats struct {
	LastRunTime  time.Time
	Runs         int64
	FilesMoved   int64
	FilesFixed   int64
	DirsRemoved  int64
	FilesSkipped int64
	Errors       int64
}

// Migrator relocates cache files under one root.
type Migrator struct {
	mu    sync.Mutex
	root  string
	log   *slog.Logger
	stats Stats
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.log = l }
}

// New creates a migrator for root.
func New(root string, opts ...Option) *Migrator {
	m := &Migrator{root: layout.ResolveRoot(root)}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.Component("migrate")
	}
	return m
}

// Root returns the cache root.
func (m *Migrator) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

// Run executes all three phases. With dryRun nothing on disk changes but
// the result reports exactly what a real run would do. The error is
// non-nil only when the root is missing or not a directory.
func (m *Migrator) Run(dryRun bool) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	result := Result{Root: m.root, DryRun: dryRun}

	err := m.checkRoot()
	result.Root = m.root
	if err != nil {
		return result, err
	}

	m.log.Info("cache migration started", "root", m.root, "dry_run", dryRun)

	v := newView(m.root, dryRun)
	result.Flat = m.migrateFlat(v)
	result.Misplaced = m.fixMisplaced(v)
	result.Prune = m.pruneEmptyDirs(v)
	result.Duration = time.Since(start)

	if !dryRun {
		m.stats.LastRunTime = start
		m.stats.Runs++
		m.stats.FilesMoved += int64(result.Flat.Acted)
		m.stats.FilesFixed += int64(result.Misplaced.Acted)
		m.stats.DirsRemoved += int64(result.Prune.Acted)
		m.stats.FilesSkipped += int64(result.Flat.Skipped + result.Misplaced.Skipped)
		m.stats.Errors += int64(len(result.Errors()))
	}

	m.log.Info("cache migration finished",
		"root", m.root,
		"dry_run", dryRun,
		"flat_moved", result.Flat.Acted,
		"flat_skipped", result.Flat.Skipped,
		"fixed", result.Misplaced.Acted,
		"fix_skipped", result.Misplaced.Skipped,
		"dirs_removed", result.Prune.Acted,
		"errors", len(result.Errors()),
		"duration", result.Duration,
	)

	return result, nil
}

// DryRun reports what Run would do without changing anything.
func (m *Migrator) DryRun() (Result, error) {
	return m.Run(true)
}

// MigrateFlat runs only the flat-to-hierarchical phase.
func (m *Migrator) MigrateFlat(dryRun bool) (PhaseResult, error) {
	return m.runPhase(dryRun, m.migrateFlat)
}

// FixMisplaced runs only the misplaced-file phase.
func (m *Migrator) FixMisplaced(dryRun bool) (PhaseResult, error) {
	return m.runPhase(dryRun, m.fixMisplaced)
}

// PruneEmptyDirs runs only the empty-directory phase.
func (m *Migrator) PruneEmptyDirs(dryRun bool) (PhaseResult, error) {
	return m.runPhase(dryRun, m.pruneEmptyDirs)
}

func (m *Migrator) runPhase(dryRun bool, phase func(*view) PhaseResult) (PhaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRoot(); err != nil {
		return PhaseResult{}, err
	}
	return phase(newView(m.root, dryRun)), nil
}

// Stats returns cumulative statistics of real runs.
func (m *Migrator) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Migrator) checkRoot() error {
	m.root = layout.ResolveRoot(m.root)
	info, err := os.Stat(m.root)
	if err != nil {
		return errors.WithKind(errors.ErrRootUnusable, err, "cache root %s", m.root)
	}
	if !info.IsDir() {
		return errors.WithKind(errors.ErrRootUnusable, nil, "cache root %s is not a directory", m.root)
	}
	return nil
}

// =============================================================================
// Phases
// =============================================================================

func (m *Migrator) migrateFlat(v *view) PhaseResult {
	result := PhaseResult{Phase: PhaseFlat}

	files, err := v.rootFiles()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list %s: %w", m.root, err))
		return result
	}

	for _, path := range files {
		ext, ok := layout.ExtOf(path)
		if !ok {
			continue
		}
		ts, ok := layout.TimestampFromPath(path)
		if !ok {
			m.skip(&result, path, "", "invalid timestamp")
			continue
		}
		m.relocate(v, &result, path, layout.PathFor(m.root, ts, ext))
	}

	return result
}

func (m *Migrator) fixMisplaced(v *view) PhaseResult {
	result := PhaseResult{Phase: PhaseMisplaced}

	checked := 0
	files := v.nestedFiles(func(path string, err error) {
		m.log.Warn("skipping unreadable path", "path", path, "error", err)
		result.Errors = append(result.Errors, fmt.Errorf("walk %s: %w", path, err))
	})

	for _, path := range files {
		ext, ok := layout.ExtOf(path)
		if !ok {
			continue
		}
		ts, ok := layout.TimestampFromPath(path)
		if !ok {
			m.skip(&result, path, "", "invalid timestamp")
			continue
		}

		checked++
		target := layout.PathFor(m.root, ts, ext)
		if filepath.Clean(path) == target {
			continue
		}
		m.relocate(v, &result, path, target)
	}

	if checked > 0 && result.Acted == 0 && result.Skipped == 0 {
		m.log.Info("all hierarchical files are in place", "checked", checked)
	}
	return result
}

func (m *Migrator) pruneEmptyDirs(v *view) PhaseResult {
	result := PhaseResult{Phase: PhasePrune}

	dirs := v.dirs(func(path string, err error) {
		m.log.Warn("skipping unreadable path", "path", path, "error", err)
		result.Errors = append(result.Errors, fmt.Errorf("walk %s: %w", path, err))
	})

	for _, dir := range dirs {
		empty, err := v.emptyDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("read %s: %w", dir, err))
			continue
		}
		if !empty {
			continue
		}

		if err := v.removeDir(dir); err != nil {
			m.log.Warn("cannot remove empty directory", "dir", m.rel(dir), "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}

		result.Acted++
		result.Actions = append(result.Actions, Action{Kind: ActionRemoveDir, Source: m.rel(dir)})
		m.announce(v, "removed empty dir", "would remove empty dir", "dir", m.rel(dir))
	}

	return result
}

// relocate moves src to dst through v and records the outcome.
func (m *Migrator) relocate(v *view, result *PhaseResult, src, dst string) {
	if err := v.move(src, dst); err != nil {
		if errors.Is(err, errors.ErrRelocationConflict) {
			m.skip(result, src, dst, "target exists")
			return
		}
		m.log.Warn("cannot relocate file", "source", m.rel(src), "target", m.rel(dst), "error", err)
		result.Errors = append(result.Errors, err)
		return
	}

	result.Acted++
	result.Actions = append(result.Actions, Action{
		Kind:   ActionMove,
		Source: m.rel(src),
		Target: m.rel(dst),
	})

	if result.Phase == PhaseMisplaced {
		m.announce(v, "fixed", "would fix", "source", m.rel(src), "target", m.rel(dst))
		return
	}
	m.announce(v, "moved", "would move", "source", m.rel(src), "target", m.rel(dst))
}

func (m *Migrator) skip(result *PhaseResult, src, dst, reason string) {
	result.Skipped++
	action := Action{Kind: ActionSkip, Source: m.rel(src), Reason: reason}
	if dst != "" {
		action.Target = m.rel(dst)
	}
	result.Actions = append(result.Actions, action)
	m.log.Info("skipping", "source", action.Source, "target", action.Target, "reason", reason)
}

// announce logs done for a real run and planned for a dry run.
func (m *Migrator) announce(v *view, done, planned string, args ...any) {
	msg := done
	if v.dryRun {
		msg = planned
	}
	m.log.Info(msg, args...)
}

func (m *Migrator) rel(path string) string {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return path
	}
	return rel
}
