// Package interrupt turns SIGINT and SIGTERM into context cancellation for
// the duration of a run, and remembers which signals arrived so cleanup
// code can tell an interrupted run from a failed one.
package interrupt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
)

// ErrInterrupted is the cause of a context canceled by a Watcher.
var ErrInterrupted = errors.New("interrupted")

// SignalError records the signal that interrupted the run.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("interrupted by %v", e.Signal)
}

func (e *SignalError) Is(target error) bool { return target == ErrInterrupted }

// Watcher owns the process signal handlers while a run is in progress.
type Watcher struct {
	ch     chan os.Signal
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu      sync.Mutex
	pending []os.Signal
	stopped bool
}

// Watch installs handlers for sigs (SIGINT and SIGTERM when none are
// given) and returns a context canceled with a *SignalError on the first
// one. Stop restores the previous handlers.
func Watch(parent context.Context, sigs ...os.Signal) (*Watcher, context.Context) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := context.WithCancelCause(parent)
	w := &Watcher{
		ch:     make(chan os.Signal, 4),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	signal.Notify(w.ch, sigs...)
	go w.loop()
	return w, ctx
}

func (w *Watcher) loop() {
	for {
		select {
		case sig := <-w.ch:
			w.record(sig)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) record(sig os.Signal) {
	w.mu.Lock()
	w.pending = append(w.pending, sig)
	w.mu.Unlock()
	w.cancel(&SignalError{Signal: sig})
}

// Pending returns the signals received so far.
func (w *Watcher) Pending() []os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.pending)
}

// Interrupted reports whether any signal arrived.
func (w *Watcher) Interrupted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) > 0
}

// Stop restores the previous signal handlers. Signals already recorded
// stay visible through Pending.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	signal.Stop(w.ch)
	close(w.done)
}

// Checkpoint returns an error wrapping ErrInterrupted if ctx was canceled
// by a signal, ctx.Err() for any other cancellation, and nil otherwise.
// State machines call it between steps.
func Checkpoint(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrInterrupted) {
		return cause
	}
	return ctx.Err()
}

// IsInterrupted reports whether err stems from a signal or a canceled context.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
