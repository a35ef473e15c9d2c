// Package engine runs batches of backupsets. For every backupset the
// runner acquires the backupset lock, builds a job bound to a fresh plugin
// instance, drives it to completion and records the outcome. One failing
// backupset does not stop the batch unless AbortImmediately is set; an
// interrupt always does.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/hook"
	"github.com/paulschiretz/holland/pkg/interrupt"
	"github.com/paulschiretz/holland/pkg/job"
	"github.com/paulschiretz/holland/pkg/lockfile"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/preflight"
	"github.com/paulschiretz/holland/pkg/retention"
	"github.com/paulschiretz/holland/pkg/signal"
	"github.com/paulschiretz/holland/pkg/spool"
	"github.com/paulschiretz/holland/pkg/stream"
)

// SignalReportLowSpace fires after a batch when the spool filesystem is
// nearly full.
const SignalReportLowSpace = "report-low-space"

// LowSpaceRatio is the free-space fraction below which the batch reports.
const LowSpaceRatio = 0.10

// Result is the outcome of one backupset in a batch.
type Result struct {
	Backupset string
	// Store is the store the run used; it may have been purged since.
	Store *spool.Store
	State job.State
	Err   error
	// PurgeErr is a retention failure of an otherwise successful run.
	PurgeErr error
	// Skipped is set for backupsets never started because the batch stopped.
	Skipped bool
	Duration time.Duration
}

// Succeeded reports whether the backupset ran and succeeded.
func (r Result) Succeeded() bool {
	return !r.Skipped && r.Err == nil
}

// BatchError summarises the failed backupsets of a batch.
type BatchError struct {
	Failed []string
	// Cause is set when the batch was interrupted.
	Cause error
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("%d backupset(s) failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *BatchError) Unwrap() error { return e.Cause }

// Runner executes backup batches against one spool.
type Runner struct {
	spool    *spool.Spool
	registry *plugin.Registry
	retainer *retention.Retainer
	hooks    *hook.HookExecutor
	opener   stream.Opener

	// diskUsage allows mocking filesystem statistics for testing.
	diskUsage func(path string) (preflight.Usage, error)

	// Signals carries the batch level signals, such as SignalReportLowSpace.
	Signals *signal.Group
}

// NewRunner creates a Runner. A nil registry uses plugin.DefaultRegistry.
func NewRunner(sp *spool.Spool, registry *plugin.Registry, retainer *retention.Retainer, hooks *hook.HookExecutor, opener stream.Opener) *Runner {
	if registry == nil {
		registry = plugin.DefaultRegistry
	}
	return &Runner{
		spool:     sp,
		registry:  registry,
		retainer:  retainer,
		hooks:     hooks,
		opener:    opener,
		diskUsage: preflight.DiskUsage,
		Signals:   signal.NewGroup(SignalReportLowSpace),
	}
}

// ExecuteBackup runs every backupset in order. It returns the per-backupset
// results and a *BatchError when any of them failed. Errors that prevent
// the batch from starting at all are returned without results.
func (r *Runner) ExecuteBackup(ctx context.Context, backupsets []Backupset, p *Plan) ([]Result, error) {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := preflight.Run(r.spool.Root(), &preflight.Plan{SpoolAccessible: true, SpoolWritable: !p.DryRun}); err != nil {
		return nil, fmt.Errorf("preflight failed: %w", err)
	}

	plog.Info("Starting backup batch", "backupsets", len(backupsets), "spool", r.spool.Root(), "dry_run", p.DryRun, "version", buildinfo.Version)

	results := make([]Result, 0, len(backupsets))
	var stopCause error
	for i, bs := range backupsets {
		res := r.runBackupset(ctx, bs, p)
		results = append(results, res)
		r.logResult(res)

		if cause := interrupt.Checkpoint(ctx); cause != nil {
			stopCause = cause
		} else if res.Err != nil && p.AbortImmediately {
			stopCause = fmt.Errorf("aborting batch after %s failed", bs.Name)
		}
		if stopCause != nil {
			for _, rest := range backupsets[i+1:] {
				plog.Warn("Skipping backupset", "backupset", rest.Name, "reason", stopCause)
				results = append(results, Result{Backupset: rest.Name, Skipped: true, Err: stopCause})
			}
			break
		}
	}

	r.reportLowSpace()

	var failed []string
	for _, res := range results {
		if !res.Succeeded() || res.PurgeErr != nil {
			failed = append(failed, res.Backupset)
		}
	}
	if len(failed) > 0 {
		return results, &BatchError{Failed: failed, Cause: stopCause}
	}
	return results, nil
}

func (r *Runner) runBackupset(ctx context.Context, bs Backupset, p *Plan) (res Result) {
	res = Result{Backupset: bs.Name}
	start := time.Now()
	defer func() { res.Duration = time.Since(start).Round(time.Millisecond) }()

	if !p.DryRun && !p.NoLock {
		release, err := r.acquireLocks(bs)
		if err != nil {
			res.Err = err
			return res
		}
		defer release()
	}

	bp, err := job.LoadPlugin(r.registry, bs.Config)
	if err != nil {
		res.Err = err
		return res
	}

	j := job.New(bs.Name, bs.Config, bp, r.spool, job.Options{
		DryRun:       p.DryRun,
		FreeSpace:    r.freeSpace,
		Opener:       r.opener,
		Registry:     r.registry,
		HookExecutor: r.hooks,
		Retainer:     r.retainer,
	})
	res.Err = j.Run(ctx)
	res.Store = j.Store
	res.State = j.State()
	res.PurgeErr = j.PurgeErr()
	return res
}

// acquireLocks takes the config lock (when the backupset has a file) and
// then the spool lock. The release function frees them in reverse order.
func (r *Runner) acquireLocks(bs Backupset) (func(), error) {
	var locks []*lockfile.Lock
	if bs.Path != "" {
		locks = append(locks, lockfile.ForConfig(bs.Path))
	}
	locks = append(locks, lockfile.ForBackupset(r.spool.BackupsetPath(bs.Name)))

	release := func() {
		for i := len(locks) - 1; i >= 0; i-- {
			if !locks[i].IsLocked() {
				continue
			}
			if err := locks[i].Release(); err != nil {
				plog.Warn("Failed to release lock", "path", locks[i].Path(), "error", err)
			}
		}
	}
	for _, lock := range locks {
		plog.Debug("Attempting to acquire lock", "path", lock.Path())
		if err := lock.Acquire(); err != nil {
			var lockErr *lockfile.LockError
			if errors.As(err, &lockErr) && errors.Is(err, lockfile.ErrLockHeld) {
				plog.Warn("Backupset is already being backed up, skipping run", "backupset", bs.Name, "details", lockErr.Error())
			}
			release()
			return nil, err
		}
	}
	plog.Debug("Locks acquired successfully", "backupset", bs.Name)
	return release, nil
}

func (r *Runner) freeSpace(path string) (int64, error) {
	u, err := r.diskUsage(path)
	if err != nil {
		return 0, err
	}
	return u.Available, nil
}

func (r *Runner) logResult(res Result) {
	switch {
	case res.Err != nil:
		plog.Error("Backupset failed", "backupset", res.Backupset, "error", res.Err, "duration", res.Duration)
	case res.PurgeErr != nil:
		plog.Warn("Backupset succeeded but retention failed", "backupset", res.Backupset, "error", res.PurgeErr, "duration", res.Duration)
	default:
		plog.Info("Backupset completed", "backupset", res.Backupset, "duration", res.Duration)
	}
}

// reportLowSpace warns and fires SignalReportLowSpace when less than
// LowSpaceRatio of the spool filesystem is free.
func (r *Runner) reportLowSpace() {
	root := r.spool.Root()
	u, err := r.diskUsage(root)
	if err != nil {
		plog.Debug("Could not check spool free space", "path", root, "error", err)
		return
	}
	if u.FreeRatio() >= LowSpaceRatio {
		return
	}

	mount, err := preflight.MountPoint(root)
	if err != nil {
		mount = root
	}
	plog.Warn("Spool filesystem is low on space",
		"mountpoint", mount,
		"available", humanize.IBytes(uint64(u.Available)),
		"total", humanize.IBytes(uint64(u.Total)),
		"free", fmt.Sprintf("%.1f%%", u.FreeRatio()*100),
	)
	for res := range r.Signals.NotifySafe(SignalReportLowSpace, r, signal.Args{
		"path":       root,
		"mountpoint": mount,
		"usage":      u,
	}) {
		if res.Err != nil {
			plog.Warn("report-low-space receiver failed", "error", res.Err)
		}
	}
}
