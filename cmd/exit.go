package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/engine"
	"github.com/paulschiretz/holland/pkg/interrupt"
	"github.com/paulschiretz/holland/pkg/plugin"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitConfig      = 2
	ExitPlugin      = 3
	ExitUsage       = 64
	ExitInterrupted = 130
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// UsageError marks err as a command line mistake.
func UsageError(err error) error {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return &ExitError{Code: ExitUsage, Err: err}
}

func configError(err error) error {
	return &ExitError{Code: ExitConfig, Err: err}
}

// ExitCode maps the error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if interrupt.IsInterrupted(err) {
		return ExitInterrupted
	}

	var batchErr *engine.BatchError
	if errors.As(err, &batchErr) {
		return ExitFailed
	}

	var syntaxErr *config.SyntaxError
	var validateErr *configspec.ValidateError
	if errors.As(err, &syntaxErr) || errors.As(err, &validateErr) || errors.Is(err, fs.ErrNotExist) {
		return ExitConfig
	}
	if errors.Is(err, plugin.ErrPlugin) {
		return ExitPlugin
	}
	return ExitFailed
}
