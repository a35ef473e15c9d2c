//go:build !windows

package preflight

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MountPoint returns the mount point of the filesystem holding path, found
// by walking up until the device ID changes.
func MountPoint(path string) (string, error) {
	current, err := existingAncestor(path)
	if err != nil {
		return "", err
	}
	dev, err := deviceOf(current)
	if err != nil {
		return "", err
	}
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return current, nil
		}
		pdev, err := deviceOf(parent)
		if err != nil {
			return "", err
		}
		if pdev != dev {
			return current, nil
		}
		current = parent
	}
}

func deviceOf(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return uint64(st.Dev), nil
}
