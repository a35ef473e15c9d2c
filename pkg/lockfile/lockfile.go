// Package lockfile provides the per-backupset advisory locks that keep two
// holland processes on one host from running the same backupset at once.
//
// The spool lock is a flock(2) on a small file holding the holder's PID.
// The config lock is a flock on the backupset config file itself, which is
// opened read-only and never written. The kernel drops either lock when the
// descriptor is closed, so a crashed holder never leaves a stale lock behind.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/util"
)

// LockFileName is the name of the lock file created in a backupset directory.
// The '~' prefix marks it as temporary.
const LockFileName = ".~holland.lock"

// ErrLockHeld is wrapped by LockError when another process holds the lock.
var ErrLockHeld = errors.New("lock is held by another process")

// ErrNotHeld is wrapped by LockError when releasing a lock that is not held.
var ErrNotHeld = errors.New("lock is not held")

// LockError reports a failed acquire or release.
type LockError struct {
	Path string
	// PID of the current holder, 0 when unknown.
	PID int
	Err error
}

func (e *LockError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s: %v (pid %d)", e.Path, e.Err, e.PID)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// Lock is an advisory lock on path.
type Lock struct {
	path string
	// readOnly locks an existing file without recording a PID in it.
	readOnly bool

	mu   sync.Mutex
	file *os.File
}

// New returns an unacquired lock on path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// ForBackupset returns the lock guarding a backupset directory.
func ForBackupset(backupsetDir string) *Lock {
	return New(filepath.Join(backupsetDir, LockFileName))
}

// ForConfig returns a lock on the backupset config file at path. It guards
// the backupset across global configs that point at different spools.
func ForConfig(path string) *Lock {
	return &Lock{path: path, readOnly: true}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. If another holder exists it
// returns a *LockError wrapping ErrLockHeld.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return &LockError{Path: l.path, PID: os.Getpid(), Err: errors.New("lock already acquired by this handle")}
	}
	f, err := l.open()
	if err != nil {
		return err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &LockError{Path: l.path, PID: l.Holder(), Err: ErrLockHeld}
		}
		return &LockError{Path: l.path, Err: err}
	}
	if l.readOnly {
		l.file = f
		plog.Debug("Acquired lock", "path", l.path, "pid", os.Getpid())
		return nil
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	f.Sync()

	l.file = f
	plog.Debug("Acquired lock", "path", l.path, "pid", os.Getpid())
	return nil
}

// Release truncates and unlocks the file. Releasing a lock that is not
// held returns a *LockError wrapping ErrNotHeld and changes nothing.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return &LockError{Path: l.path, Err: ErrNotHeld}
	}
	f := l.file
	l.file = nil

	if !l.readOnly {
		if err := f.Truncate(0); err != nil {
			plog.Warn("Failed to truncate lock file", "path", l.path, "error", err)
		}
	}
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return &LockError{Path: l.path, Err: unlockErr}
	}
	if closeErr != nil {
		return &LockError{Path: l.path, Err: closeErr}
	}
	plog.Debug("Released lock", "path", l.path)
	return nil
}

func (l *Lock) open() (*os.File, error) {
	if l.readOnly {
		f, err := os.Open(l.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s for locking: %w", l.path, err)
		}
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("could not create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, util.UserOnlyFilePerms)
	if err != nil {
		return nil, fmt.Errorf("failed to access lock file: %w", err)
	}
	return f, nil
}

// IsLocked reports whether this handle currently holds the lock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Holder returns the PID recorded in the lock file, or 0. Config locks
// record no PID. It is diagnostic only; the flock is the source of truth.
func (l *Lock) Holder() int {
	if l.readOnly {
		return 0
	}
	return readPID(l.path)
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
