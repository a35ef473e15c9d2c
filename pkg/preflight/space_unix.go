//go:build !windows

package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Usage describes the filesystem holding a path, in bytes.
type Usage struct {
	Total int64
	// Available is what an unprivileged process may still allocate.
	Available int64
}

// FreeRatio returns Available/Total, or 1 for a filesystem reporting no size.
func (u Usage) FreeRatio() float64 {
	if u.Total <= 0 {
		return 1
	}
	return float64(u.Available) / float64(u.Total)
}

// DiskUsage stats the filesystem holding path. A path that does not exist
// yet is measured at its nearest existing ancestor.
func DiskUsage(path string) (Usage, error) {
	target, err := existingAncestor(path)
	if err != nil {
		return Usage{}, err
	}
	var st unix.Statfs_t
	if err := unix.Statfs(target, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", target, err)
	}
	bsize := int64(st.Bsize)
	return Usage{
		Total:     int64(st.Blocks) * bsize,
		Available: int64(st.Bavail) * bsize,
	}, nil
}

// DiskFree returns the bytes available to this process on path's filesystem.
func DiskFree(path string) (int64, error) {
	u, err := DiskUsage(path)
	if err != nil {
		return 0, err
	}
	return u.Available, nil
}
