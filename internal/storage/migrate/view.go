package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/krokicki/cluster-art/internal/errors"
)

// view is the filesystem as the migrator sees it. A real view acts on disk.
// A dry view records planned moves and removals in an overlay and answers
// every later question as if they had happened, so a dry run takes exactly
// the decisions a real run would.
type view struct {
	root   string
	dryRun bool

	added       map[string]bool
	removed     map[string]bool
	removedDirs map[string]bool
}

func newView(root string, dryRun bool) *view {
	return &view{
		root:        root,
		dryRun:      dryRun,
		added:       make(map[string]bool),
		removed:     make(map[string]bool),
		removedDirs: make(map[string]bool),
	}
}

// hidden reports whether path has been removed in the overlay, directly or
// through a removed ancestor.
func (v *view) hidden(path string) bool {
	if v.removed[path] || v.removedDirs[path] {
		return true
	}
	for dir := filepath.Dir(path); dir != v.root && dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if v.removedDirs[dir] {
			return true
		}
	}
	return false
}

func (v *view) exists(path string) bool {
	if v.hidden(path) {
		return false
	}
	if v.added[path] {
		return true
	}
	_, err := os.Lstat(path)
	return err == nil
}

// rootFiles lists non-directory entries directly under the root, sorted.
func (v *view) rootFiles() ([]string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(v.root, e.Name())
		if !v.hidden(path) {
			files = append(files, path)
		}
	}
	for path := range v.added {
		if filepath.Dir(path) == v.root {
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files, nil
}

// nestedFiles lists non-directory entries below any subdirectory of the
// root, sorted. Unreadable directories are reported through onErr and
// skipped.
func (v *view) nestedFiles(onErr func(path string, err error)) []string {
	var files []string

	filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			onErr(path, err)
			return nil
		}
		if d.IsDir() {
			if path != v.root && v.hidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Dir(path) == v.root || v.hidden(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	for path := range v.added {
		if filepath.Dir(path) != v.root {
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files
}

// dirs lists every directory below the root, deepest first.
func (v *view) dirs(onErr func(path string, err error)) []string {
	var dirs []string

	filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			onErr(path, err)
			return nil
		}
		if d.IsDir() && path != v.root {
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool {
		di := strings.Count(dirs[i], string(filepath.Separator))
		dj := strings.Count(dirs[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})
	return dirs
}

// emptyDir reports whether dir would have no entries left.
func (v *view) emptyDir(dir string) (bool, error) {
	if v.hidden(dir) {
		return false, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !v.hidden(filepath.Join(dir, e.Name())) {
			return false, nil
		}
	}

	prefix := dir + string(filepath.Separator)
	for path := range v.added {
		if strings.HasPrefix(path, prefix) {
			return false, nil
		}
	}
	return true, nil
}

// move relocates src to dst without ever replacing an existing dst. An
// occupied destination reports ErrRelocationConflict and leaves src alone.
func (v *view) move(src, dst string) error {
	if v.exists(dst) {
		return errors.NewConflict(src, dst)
	}

	if v.dryRun {
		delete(v.added, src)
		v.removed[src] = true
		delete(v.removed, dst)
		v.added[dst] = true
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(dst))
	}

	// A hard link fails on an existing destination, which closes the gap
	// between the check above and the move.
	if err := os.Link(src, dst); err != nil {
		if os.IsExist(err) {
			return errors.NewConflict(src, dst)
		}
		if _, statErr := os.Lstat(dst); statErr == nil {
			return errors.NewConflict(src, dst)
		}
		if err := os.Rename(src, dst); err != nil {
			return errors.Wrapf(err, "rename %s", src)
		}
		return nil
	}

	if err := os.Remove(src); err != nil {
		return errors.Wrapf(err, "remove %s after linking", src)
	}
	return nil
}

func (v *view) removeDir(dir string) error {
	if v.dryRun {
		v.removedDirs[dir] = true
		return nil
	}
	return os.Remove(dir)
}
