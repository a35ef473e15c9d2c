// Package job drives a single backup run through its lifecycle:
//
//	Init -> Configured -> Prepared -> Estimated -> Verified -> Running -> Finalized -> Succeeded | Failed
//
// Each call to step performs the work of one transition. A failure after
// the store was allocated jumps straight to Finalized, so the plugin's Post
// phase and the failure handling always run.
package job

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/hook"
	"github.com/paulschiretz/holland/pkg/interrupt"
	"github.com/paulschiretz/holland/pkg/metafile"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/preflight"
	"github.com/paulschiretz/holland/pkg/retention"
	"github.com/paulschiretz/holland/pkg/signal"
	"github.com/paulschiretz/holland/pkg/spool"
	"github.com/paulschiretz/holland/pkg/stream"
)

// Lifecycle signals of a job.
const (
	SignalPreBackup  = "pre-backup"
	SignalPostBackup = "post-backup"
	SignalFailBackup = "fail-backup"
)

// Options tune a Job. Zero values select the production collaborators.
type Options struct {
	DryRun bool
	// FreeSpace reports the bytes available on the filesystem holding path.
	FreeSpace func(path string) (int64, error)
	// Opener is handed to plugins implementing plugin.StreamUser.
	Opener stream.Opener
	// Registry resolves hook plugins.
	Registry *plugin.Registry
	// HookExecutor runs the *-backup-command options.
	HookExecutor *hook.HookExecutor
	// Retainer enforces the purge policy.
	Retainer *retention.Retainer
}

// Job is one run of one backupset.
type Job struct {
	Backupset string
	Config    *config.Config
	Plugin    plugin.BackupPlugin
	Spool     *spool.Spool
	Signals   *signal.Group

	// Store is nil until the job is Prepared.
	Store *spool.Store

	opts      Options
	state     State
	validated *config.Config
	settings  Settings
	meta      metafile.Content

	estimate    int64
	setupDone   bool
	metaWritten bool

	err      error
	postErr  error
	purgeErr error
}

// New binds a plugin instance to a backupset config. cfg is the merged but
// unvalidated backupset configuration.
func New(backupset string, cfg *config.Config, p plugin.BackupPlugin, sp *spool.Spool, opts Options) *Job {
	if opts.FreeSpace == nil {
		opts.FreeSpace = preflight.DiskFree
	}
	if opts.Opener == nil {
		opts.Opener = stream.FileOpener{}
	}
	if opts.Registry == nil {
		opts.Registry = plugin.DefaultRegistry
	}
	if opts.HookExecutor == nil {
		opts.HookExecutor = hook.NewHookExecutor(nil)
	}
	if opts.Retainer == nil {
		opts.Retainer = retention.NewRetainer()
	}
	return &Job{
		Backupset: backupset,
		Config:    cfg,
		Plugin:    p,
		Spool:     sp,
		Signals:   signal.NewGroup(SignalPreBackup, SignalPostBackup, SignalFailBackup),
		opts:      opts,
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State { return j.state }

// Err returns the reason the job failed, or nil.
func (j *Job) Err() error { return j.err }

// PostErr returns the error of the plugin's Post phase. It never fails the job.
func (j *Job) PostErr() error { return j.postErr }

// PurgeErr returns the error of an automatic retention purge. It never
// fails the job.
func (j *Job) PurgeErr() error { return j.purgeErr }

// Settings returns the validated [holland:backup] options. They are only
// populated once the job is Configured.
func (j *Job) Settings() Settings { return j.settings }

// Metadata returns the runtime metadata recorded so far.
func (j *Job) Metadata() metafile.Content { return j.meta }

// Run drives the job to a terminal state and returns the failure reason.
func (j *Job) Run(ctx context.Context) error {
	for !j.state.Terminal() {
		j.step(ctx)
	}
	return j.err
}

func (j *Job) step(ctx context.Context) {
	if j.state < Finalized {
		if err := interrupt.Checkpoint(ctx); err != nil {
			j.abort(ctx, plugin.NewBackupError("Interrupted", err))
			return
		}
	}

	from := j.state
	var err error
	switch j.state {
	case Init:
		err = j.configure()
	case Configured:
		err = j.prepare(ctx)
	case Prepared:
		err = j.estimateSize(ctx)
	case Estimated:
		err = j.verify()
	case Verified:
		err = j.start(ctx)
	case Running:
		j.fail(j.backup(ctx))
		j.finalize(ctx)
		j.state = Finalized
	case Finalized:
		j.conclude(ctx)
	}

	if err != nil {
		j.abort(ctx, err)
	} else if j.state == from {
		j.state++
	}
	plog.Debug("Job state changed", "backupset", j.Backupset, "from", from, "to", j.state)
}

// abort records err and skips ahead. Before a store exists there is
// nothing to clean up and the job fails at once.
func (j *Job) abort(ctx context.Context, err error) {
	j.fail(err)
	if j.Store == nil {
		plog.Error("Backup failed", "backupset", j.Backupset, "error", j.err)
		j.state = Failed
		return
	}
	j.finalize(ctx)
	j.state = Finalized
}

// fail records the first error of the run.
func (j *Job) fail(err error) {
	if err != nil && j.err == nil {
		j.err = err
	}
}

// call runs a plugin phase, turning panics and foreign errors into
// BackupErrors.
func (j *Job) call(phase string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			plog.Debug("Plugin panicked", "phase", phase, "panic", rec, "stack", string(debug.Stack()))
			err = plugin.NewBackupError(fmt.Sprintf("%s: plugin panicked: %v", phase, rec), fmt.Errorf("panic: %v", rec))
		}
	}()
	err = fn()
	if err == nil {
		return nil
	}
	var be *plugin.BackupError
	var ve *configspec.ValidateError
	if errors.As(err, &be) || errors.As(err, &ve) {
		return err
	}
	return plugin.NewBackupError(fmt.Sprintf("%s failed: %v", phase, err), err)
}

func (j *Job) configure() error {
	spec := Spec.Merge(j.Plugin.Configspec())
	validated, err := spec.Validate(j.Config, configspec.Options{IgnoreUnknownSections: true})
	if err != nil {
		return err
	}
	settings, err := SettingsFromConfig(validated)
	if err != nil {
		return err
	}
	j.validated = validated
	j.settings = settings
	if j.opts.DryRun {
		j.settings.Retention.DryRun = true
	}

	if err := j.call("configure", func() error { return j.Plugin.Configure(validated) }); err != nil {
		return err
	}
	j.connectCommandHooks()
	if err := j.connectHookPlugins(); err != nil {
		return err
	}
	j.connectRetention()
	return nil
}

func (j *Job) prepare(ctx context.Context) error {
	store, err := j.Spool.AddStore(j.Backupset)
	if err != nil {
		return err
	}
	j.Store = store

	if su, ok := j.Plugin.(plugin.StreamUser); ok {
		su.SetStreamOpener(j.opts.Opener)
	}
	if err := j.call("setup", func() error { return j.Plugin.Setup(store) }); err != nil {
		return err
	}
	j.setupDone = true

	if pre, ok := j.Plugin.(plugin.PreBackup); ok {
		if err := j.call("pre", func() error { return pre.Pre(ctx) }); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) estimateSize(ctx context.Context) error {
	var size int64
	err := j.call("estimate", func() error {
		var err error
		size, err = j.Plugin.Estimate(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if size < 0 {
		return plugin.BackupErrorf("estimate: plugin returned a negative size (%d)", size)
	}
	j.estimate = size
	plog.Info("Estimated backup size", "backupset", j.Backupset, "size", humanize.IBytes(uint64(size)))
	return nil
}

// scaleEstimate applies the estimated-size-factor, saturating at
// math.MaxInt64 instead of wrapping around.
func scaleEstimate(estimate int64, factor float64) int64 {
	if estimate == 0 || factor == 0 {
		return 0
	}
	scaled := float64(estimate) * factor
	if scaled >= math.MaxInt64 || math.IsNaN(scaled) {
		return math.MaxInt64
	}
	return int64(scaled)
}

func (j *Job) verify() error {
	adjusted := scaleEstimate(j.estimate, j.settings.EstimateFactor)
	available, err := j.opts.FreeSpace(j.Spool.Root())
	if err != nil {
		return fmt.Errorf("could not determine free space of %s: %w", j.Spool.Root(), err)
	}
	if err := preflight.CheckSpace(j.Spool.Root(), adjusted, available); err != nil {
		if !j.opts.DryRun {
			return err
		}
		plog.Warn("[DRY RUN] Backup would not fit", "backupset", j.Backupset, "error", err)
	}
	return nil
}

// start writes the initial metadata, fires pre-backup and hands control
// to the plugin in the next step.
func (j *Job) start(ctx context.Context) error {
	j.meta = metafile.Content{
		Plugin:         j.settings.Plugin,
		UUID:           uuid.NewString(),
		HollandVersion: buildinfo.Version,
		StartTime:      time.Now(),
		EstimatedSize:  j.estimate,
		// Stays failed until finalize proves otherwise; a crash leaves it so.
		Failed: true,
	}
	if !j.opts.DryRun {
		if err := metafile.Write(j.Store.Path, j.validated, &j.meta); err != nil {
			return err
		}
		j.metaWritten = true
	}

	if _, err := j.Signals.Notify(SignalPreBackup, j, j.args()); err != nil {
		var pe *signal.PanicError
		if errors.As(err, &pe) {
			plog.Debug("Receiver panicked", "signal", SignalPreBackup, "receiver", pe.Receiver, "stack", string(pe.Stack))
		}
		return plugin.NewBackupError(fmt.Sprintf("%s: %v", SignalPreBackup, err), err)
	}
	plog.Info("Starting backup", "backupset", j.Backupset, "plugin", j.settings.Plugin, "store", j.Store.Path, "dry_run", j.opts.DryRun)
	return nil
}

func (j *Job) backup(ctx context.Context) error {
	var err error
	if j.opts.DryRun {
		if dr, ok := j.Plugin.(plugin.DryRunner); ok {
			err = j.call("dry-run", func() error { return dr.DryRun(ctx) })
		} else {
			plog.Info("[DRY RUN] Plugin has no dry-run mode, skipping backup", "plugin", j.settings.Plugin)
		}
	} else {
		err = j.call("backup", func() error { return j.Plugin.Backup(ctx) })
	}
	if cause := interrupt.Checkpoint(ctx); cause != nil {
		return plugin.NewBackupError("Interrupted", cause)
	}
	return err
}

// finalize runs Post and records the outcome in backup.conf. It runs on a
// context that ignores cancellation so cleanup survives an interrupt.
func (j *Job) finalize(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	if pp, ok := j.Plugin.(plugin.PostBackup); ok && j.setupDone {
		if err := j.call("post", func() error { return pp.Post(ctx) }); err != nil {
			plog.Warn("Plugin post phase failed", "backupset", j.Backupset, "error", err)
			j.postErr = err
		}
	}

	j.meta.StopTime = time.Now()
	if j.err == nil {
		size, err := j.Store.Size()
		if err != nil {
			j.fail(fmt.Errorf("could not size store %s: %w", j.Store.Path, err))
		}
		j.meta.OnDiskSize = size
	}
	j.meta.Failed = j.err != nil

	if j.metaWritten {
		cfg := j.validated
		if j.postErr != nil {
			cfg = cfg.Clone()
			cfg.EnsureSection(metafile.Section).Set("post-error", j.postErr.Error())
		}
		if err := metafile.Write(j.Store.Path, cfg, &j.meta); err != nil {
			plog.Error("Could not record backup metadata", "backupset", j.Backupset, "error", err)
			if j.err == nil {
				j.fail(err)
				j.meta.Failed = true
			}
		}
	}

	if j.err == nil {
		j.logSummary()
	}
}

func (j *Job) logSummary() {
	ratio := "N/A"
	if j.estimate > 0 {
		ratio = fmt.Sprintf("%.2f", float64(j.meta.OnDiskSize)/float64(j.estimate))
	}
	plog.Info("Backup completed",
		"backupset", j.Backupset,
		"duration", j.meta.StopTime.Sub(j.meta.StartTime).Round(time.Millisecond),
		"on_disk_size", humanize.IBytes(uint64(j.meta.OnDiskSize)),
		"estimated_size", humanize.IBytes(uint64(j.estimate)),
		"ratio", ratio,
	)
}

// conclude fires the closing signals and removes stores that must not
// survive: dry-run stores, failed stores under auto-purge-failures, and
// stores that failed before any metadata was written.
func (j *Job) conclude(ctx context.Context) {
	args := j.args()
	for res := range j.Signals.NotifySafe(SignalPostBackup, j, args) {
		if res.Err != nil {
			plog.Warn("post-backup receiver failed", "backupset", j.Backupset, "error", res.Err)
		}
	}
	if j.err != nil {
		plog.Error("Backup failed", "backupset", j.Backupset, "error", j.err)
		for res := range j.Signals.NotifySafe(SignalFailBackup, j, args) {
			if res.Err != nil {
				plog.Warn("fail-backup receiver failed", "backupset", j.Backupset, "error", res.Err)
			}
		}
	}

	switch {
	case j.opts.DryRun:
		j.purgeStore("[DRY RUN] Removing throwaway store")
	case j.err != nil && (j.settings.AutoPurgeFailures || !j.metaWritten):
		j.purgeStore("Purging failed backup")
	}

	if j.err != nil {
		j.state = Failed
	} else {
		j.state = Succeeded
	}
}

func (j *Job) purgeStore(msg string) {
	plog.Info(msg, "backupset", j.Backupset, "path", j.Store.Path)
	if err := j.Store.Purge(); err != nil {
		plog.Warn("Could not remove store", "path", j.Store.Path, "error", err)
	}
}

func (j *Job) args() signal.Args {
	return signal.Args{
		hook.ArgBackupset: j.Backupset,
		hook.ArgStore:     j.Store,
		hook.ArgDryRun:    j.opts.DryRun,
		hook.ArgFailed:    j.err != nil,
		hook.ArgError:     j.err,
	}
}
