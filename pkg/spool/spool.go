// Package spool manages the on-disk layout of backups:
//
//	<root>/<backupset>/<YYYYMMDD_HHMMSS>.<suffix>/
//
// Each backupset directory holds one store directory per run. Stores are
// ordered by directory mtime with the directory name as tie-breaker.
package spool

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/util"
)

// TimestampLayout is the layout of the timestamp prefix of store directories.
const TimestampLayout = "20060102_150405"

// ErrOutsideSpool is returned when a path does not resolve below the spool root.
var ErrOutsideSpool = errors.New("path is not inside the backup spool")

// Spool is the root directory holding every backupset.
type Spool struct {
	root string
	// now is swappable for tests.
	now func() time.Time
}

// New returns a Spool rooted at root. The directory is created lazily by AddStore.
func New(root string) (*Spool, error) {
	abs, err := util.ExpandedAbsPath(root)
	if err != nil {
		return nil, err
	}
	return &Spool{root: abs, now: time.Now}, nil
}

// Root returns the absolute spool root.
func (s *Spool) Root() string {
	return s.root
}

// BackupsetPath returns the directory of the named backupset.
func (s *Spool) BackupsetPath(name string) string {
	return filepath.Join(s.root, name)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
		return fmt.Errorf("invalid backupset name %q", name)
	}
	return nil
}

// AddStore allocates a new, uniquely named store directory for the
// backupset. Concurrent callers within the same second get distinct
// directories.
func (s *Spool) AddStore(name string) (*Store, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	setDir := s.BackupsetPath(name)
	if err := os.MkdirAll(setDir, util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("could not create backupset directory %s: %w", setDir, err)
	}

	prefix := s.now().Format(TimestampLayout) + ".*"
	path, err := os.MkdirTemp(setDir, prefix)
	if err != nil {
		return nil, fmt.Errorf("could not allocate store in %s: %w", setDir, err)
	}
	plog.Debug("Allocated backup store", "backupset", name, "path", path)
	return &Store{Name: name, Path: path, spool: s}, nil
}

// LoadStore returns the store at path. The path must resolve to a
// directory two levels below the spool root.
func (s *Spool) LoadStore(path string) (*Store, error) {
	abs, err := util.ExpandedAbsPath(path)
	if err != nil {
		return nil, err
	}
	if !util.IsSubPath(s.root, abs) {
		return nil, fmt.Errorf("%s: %w", abs, ErrOutsideSpool)
	}
	rel, _ := filepath.Rel(s.root, abs)
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return nil, fmt.Errorf("%s is not a backup store directory", abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &Store{Name: parts[0], Path: abs, spool: s}, nil
}

// ListBackups returns the stores of a backupset sorted oldest first.
// A missing backupset directory yields an empty list.
func (s *Spool) ListBackups(name string) ([]*Store, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	setDir := s.BackupsetPath(name)
	entries, err := os.ReadDir(setDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list backupset %s: %w", name, err)
	}

	type entry struct {
		store *Store
		mtime time.Time
	}
	var found []entry
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		found = append(found, entry{
			store: &Store{Name: name, Path: filepath.Join(setDir, e.Name()), spool: s},
			mtime: info.ModTime(),
		})
	}

	slices.SortFunc(found, func(a, b entry) int {
		if c := a.mtime.Compare(b.mtime); c != 0 {
			return c
		}
		return strings.Compare(filepath.Base(a.store.Path), filepath.Base(b.store.Path))
	})

	stores := make([]*Store, len(found))
	for i, f := range found {
		stores[i] = f.store
	}
	return stores, nil
}

// ListBackupsets returns the backupset names present in the spool, sorted.
func (s *Spool) ListBackupsets() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list spool %s: %w", s.root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// All yields every store of every backupset, backupsets in name order and
// stores oldest first. Backupsets that cannot be read are logged and skipped.
func (s *Spool) All() iter.Seq[*Store] {
	return func(yield func(*Store) bool) {
		names, err := s.ListBackupsets()
		if err != nil {
			plog.Warn("Could not list backupsets", "root", s.root, "error", err)
			return
		}
		for _, name := range names {
			stores, err := s.ListBackups(name)
			if err != nil {
				plog.Warn("Could not list backups", "backupset", name, "error", err)
				continue
			}
			for _, st := range stores {
				if !yield(st) {
					return
				}
			}
		}
	}
}

// PurgeBackupset removes all but the newest retain stores of a backupset,
// oldest first, and returns the stores it removed. It stops on the first
// error.
func (s *Spool) PurgeBackupset(name string, retain int) ([]*Store, error) {
	stores, err := s.ListBackups(name)
	if err != nil {
		return nil, err
	}
	retain = max(retain, 0)
	if len(stores) <= retain {
		return nil, nil
	}
	victims := stores[:len(stores)-retain]
	var purged []*Store
	for _, st := range victims {
		if err := st.Purge(); err != nil {
			return purged, err
		}
		purged = append(purged, st)
	}
	return purged, nil
}

// Sizes computes the on-disk size of each store with at most workers
// concurrent directory walks. The result is indexed like stores.
func Sizes(ctx context.Context, stores []*Store, workers int) ([]int64, error) {
	sizes := make([]int64, len(stores))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, st := range stores {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			size, err := st.Size()
			if err != nil {
				return fmt.Errorf("could not size %s: %w", st.Path, err)
			}
			sizes[i] = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}
