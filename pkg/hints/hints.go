// Package hints labels errors that mean "this step had nothing to do".
//
// A retention pass over an empty backupset or a hook with no command are not
// failures; callers log them at debug level and move on. Producers mark such
// errors with New or Wrap and consumers test them with IsHint, without
// importing the producing package's sentinels.
package hints

import (
	"errors"
	"fmt"
)

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}

func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a string.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Newf creates a hint from a format string. %w verbs are honoured.
func Newf(format string, args ...any) error {
	return &hintErr{err: fmt.Errorf(format, args...)}
}

// Wrap promotes an existing error to a hint.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint reports whether any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is reports whether err is a hint and matches target.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
