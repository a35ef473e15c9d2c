package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/holland/pkg/util"
)

// Store is the directory of one backup run.
type Store struct {
	// Name is the backupset the store belongs to.
	Name string
	// Path is the absolute store directory.
	Path string

	spool *Spool
}

// Spool returns the spool the store belongs to.
func (st *Store) Spool() *Spool {
	return st.spool
}

// Exists reports whether the store directory is still present.
func (st *Store) Exists() bool {
	info, err := os.Stat(st.Path)
	return err == nil && info.IsDir()
}

// Timestamp returns the store directory mtime, or the zero time once the
// store has been purged.
func (st *Store) Timestamp() time.Time {
	info, err := os.Stat(st.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Size returns the recursive size of the files in the store.
func (st *Store) Size() (int64, error) {
	return util.DirSize(st.Path)
}

// Purge removes the store directory. Purging an already removed store is
// a no-op. The resolved path must lie below the spool root.
func (st *Store) Purge() error {
	resolved, err := filepath.EvalSymlinks(st.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not resolve %s: %w", st.Path, err)
	}
	if resolved == string(filepath.Separator) {
		return fmt.Errorf("refusing to purge %s: resolves to the filesystem root", st.Path)
	}
	if st.spool == nil {
		return fmt.Errorf("refusing to purge %s: store is not bound to a spool", st.Path)
	}
	root := st.spool.root
	if realRoot, err := filepath.EvalSymlinks(root); err == nil {
		root = realRoot
	}
	if !util.IsSubPath(root, resolved) {
		return fmt.Errorf("refusing to purge %s: %w", st.Path, ErrOutsideSpool)
	}
	if err := os.RemoveAll(resolved); err != nil {
		return fmt.Errorf("could not purge %s: %w", st.Path, err)
	}
	return nil
}

// Previous returns the store created just before st, or nil if st is the
// oldest (or no longer listed).
func (st *Store) Previous() (*Store, error) {
	stores, err := st.spool.ListBackups(st.Name)
	if err != nil {
		return nil, err
	}
	for i, other := range stores {
		if other.Path == st.Path {
			if i == 0 {
				return nil, nil
			}
			return stores[i-1], nil
		}
	}
	return nil, nil
}

// Latest returns the newest store of st's backupset, which may be st itself.
func (st *Store) Latest() (*Store, error) {
	stores, err := st.spool.ListBackups(st.Name)
	if err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return nil, nil
	}
	return stores[len(stores)-1], nil
}

func (st *Store) String() string {
	return st.Path
}
