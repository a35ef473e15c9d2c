package plugin

import (
	"errors"
	"fmt"
)

// ErrPlugin is the root of every registry error; match it with errors.Is.
var ErrPlugin = errors.New("plugin error")

// NotFoundError reports an unknown plugin name.
type NotFoundError struct {
	Group string
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no plugin %q in group %s", e.Name, e.Group)
}

func (e *NotFoundError) Unwrap() error { return ErrPlugin }

// ImportError reports a plugin whose constructor failed.
type ImportError struct {
	Group string
	Name  string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("failed to load plugin %s/%s: %v", e.Group, e.Name, e.Err)
}

func (e *ImportError) Unwrap() []error { return []error{ErrPlugin, e.Err} }

// BackupError is returned by plugins for any failure of a backup phase.
type BackupError struct {
	Msg string
	Err error
}

// NewBackupError returns a BackupError with a message and an optional cause.
func NewBackupError(msg string, err error) *BackupError {
	return &BackupError{Msg: msg, Err: err}
}

// BackupErrorf formats a BackupError. A %w verb becomes the cause.
func BackupErrorf(format string, args ...any) *BackupError {
	err := fmt.Errorf(format, args...)
	return &BackupError{Msg: err.Error(), Err: errors.Unwrap(err)}
}

func (e *BackupError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *BackupError) Unwrap() error { return e.Err }

// AsBackupError returns err as a *BackupError, wrapping foreign errors.
func AsBackupError(err error) *BackupError {
	if err == nil {
		return nil
	}
	var be *BackupError
	if errors.As(err, &be) {
		return be
	}
	return &BackupError{Msg: err.Error(), Err: err}
}
