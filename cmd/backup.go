package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/engine"
	"github.com/paulschiretz/holland/pkg/hook"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/retention"
	"github.com/paulschiretz/holland/pkg/spool"
	"github.com/paulschiretz/holland/pkg/stream"
)

// RunBackup handles the logic for the main backup execution.
func RunBackup(ctx context.Context, flagMap map[string]any) error {
	g, err := loadGlobal(flagMap, true)
	if err != nil {
		return err
	}
	if err := startRun(g); err != nil {
		return err
	}

	names := positional(flagMap)
	if len(names) == 0 {
		names = g.Backupsets
	}
	if len(names) == 0 {
		return configError(fmt.Errorf("no backupsets given and [holland] backupsets is empty in %s", g.Path))
	}

	// Every backupset file is read up front so a typo fails before any
	// backup starts.
	backupsets := make([]engine.Backupset, 0, len(names))
	var loadErrs []error
	for _, nameOrPath := range names {
		name, cfg, err := g.LoadBackupset(nameOrPath)
		if err != nil {
			loadErrs = append(loadErrs, err)
			continue
		}
		backupsets = append(backupsets, engine.Backupset{Name: name, Config: cfg, Path: g.BackupsetPath(nameOrPath)})
	}
	if len(loadErrs) > 0 {
		return configError(errors.Join(loadErrs...))
	}

	sp, err := spool.New(g.BackupDirectory)
	if err != nil {
		return configError(fmt.Errorf("invalid backup-directory: %w", err))
	}

	plan := &engine.Plan{
		AbortImmediately: boolFlag(flagMap, "abort-immediately"),
		NoLock:           boolFlag(flagMap, "no-lock"),
		DryRun:           boolFlag(flagMap, "dry-run"),
	}

	runner := engine.NewRunner(
		sp,
		plugin.DefaultRegistry,
		retention.NewRetainer(),
		hook.NewHookExecutor(nil),
		stream.FileOpener{},
	)

	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "config", g.Path, "backupsets", names, "dry_run", plan.DryRun)
	startTime := time.Now()
	results, err := runner.ExecuteBackup(ctx, backupsets, plan)
	duration := time.Since(startTime).Round(time.Millisecond)
	printSummary(results)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

// printSummary logs one line per backupset.
func printSummary(results []engine.Result) {
	for _, r := range results {
		switch {
		case r.Skipped:
			plog.Warn("SKIPPED", "backupset", r.Backupset, "reason", r.Err)
		case r.Err != nil:
			plog.Error("FAILED", "backupset", r.Backupset, "reason", oneLine(r.Err), "duration", r.Duration)
		case r.PurgeErr != nil:
			plog.Warn("OK (purge failed)", "backupset", r.Backupset, "reason", oneLine(r.PurgeErr), "duration", r.Duration)
		default:
			path := ""
			if r.Store != nil && r.Store.Exists() {
				path = r.Store.Path
			}
			plog.Info("OK", "backupset", r.Backupset, "store", path, "duration", r.Duration)
		}
	}
}

func oneLine(err error) string {
	var be *plugin.BackupError
	if errors.As(err, &be) && be.Msg != "" {
		return be.Msg
	}
	return err.Error()
}
