// Package preflight holds the checks that run before a backup touches the
// spool: is the root usable, and does the filesystem have room for the
// estimated backup.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/holland/pkg/util"
)

// InsufficientSpaceError reports that a backup would not fit on the spool
// filesystem.
type InsufficientSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space for backup in %s: %s required, %s available",
		e.Path, humanize.IBytes(uint64(max(e.Required, 0))), humanize.IBytes(uint64(max(e.Available, 0))))
}

// Run executes the checks selected by plan against root.
func Run(root string, plan *Plan) error {
	if plan.SpoolAccessible {
		if err := CheckSpoolAccessible(root); err != nil {
			return err
		}
	}
	if plan.SpoolWritable {
		if err := CheckSpoolWritable(root); err != nil {
			return err
		}
	}
	return nil
}

// CheckSpoolAccessible verifies that root is a directory, or that it can be
// created below its nearest existing ancestor.
func CheckSpoolAccessible(root string) error {
	info, err := os.Stat(root)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("backup directory exists but is not a directory: %s", root)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot access backup directory: %w", err)
	}

	ancestor, err := existingAncestor(root)
	if err != nil {
		return err
	}
	ainfo, err := os.Stat(ancestor)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", ancestor, err)
	}
	if !ainfo.IsDir() {
		return fmt.Errorf("cannot create backup directory %s: %s is not a directory", root, ancestor)
	}
	return nil
}

// CheckSpoolWritable creates root if needed and proves it is writable by
// creating and removing a probe file.
func CheckSpoolWritable(root string) error {
	if err := os.MkdirAll(root, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", root, err)
	}
	f, err := os.CreateTemp(root, ".~holland-writetest.*")
	if err != nil {
		return fmt.Errorf("backup directory %s is not writable: %w", root, err)
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return nil
}

// CheckSpace returns an *InsufficientSpaceError when required exceeds available.
func CheckSpace(path string, required, available int64) error {
	if required > available {
		return &InsufficientSpaceError{Path: path, Required: required, Available: available}
	}
	return nil
}

// existingAncestor walks up from path to the deepest directory that exists.
func existingAncestor(path string) (string, error) {
	current := filepath.Clean(path)
	for {
		if _, err := os.Stat(current); err == nil {
			return current, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("cannot access %s: %w", current, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		current = parent
	}
}
