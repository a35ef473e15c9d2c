package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/job"
	"github.com/paulschiretz/holland/pkg/lockfile"
	"github.com/paulschiretz/holland/pkg/metafile"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/retention"
	"github.com/paulschiretz/holland/pkg/settings"
	"github.com/paulschiretz/holland/pkg/spool"
)

// purgeTarget is one argument of the purge command resolved against the spool.
type purgeTarget struct {
	backupset string
	// store is set when the argument named a single backup.
	store *spool.Store
	// keep is the retention count applied to a backupset; -1 removes all.
	keep          int
	purgeFailures bool
}

// RunPurge handles the logic for the purge command.
func RunPurge(ctx context.Context, flagMap map[string]any) error {
	g, err := loadGlobal(flagMap, false)
	if err != nil {
		return err
	}
	dryRun := boolFlag(flagMap, "dry-run")
	if !dryRun {
		if err := startRun(g); err != nil {
			return err
		}
	}

	sp, err := spool.New(g.BackupDirectory)
	if err != nil {
		return configError(fmt.Errorf("invalid backup-directory: %w", err))
	}

	targets := make([]purgeTarget, 0, len(positional(flagMap)))
	for _, arg := range positional(flagMap) {
		t, err := resolvePurgeTarget(g, sp, arg, boolFlag(flagMap, "all"))
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	// Work out the victims first so the user confirms the full list.
	var victims []*spool.Store
	for _, t := range targets {
		found, err := t.victims(sp)
		if err != nil {
			return err
		}
		victims = append(victims, found...)
	}
	if len(victims) == 0 {
		plog.Info("Nothing to purge.")
		return nil
	}

	var total int64
	for _, st := range victims {
		size, _ := st.Size()
		total += size
		if dryRun {
			plog.Info("[DRY RUN] Would purge", "backupset", st.Name, "path", st.Path, "size", humanize.IBytes(uint64(size)))
		}
	}
	if dryRun {
		plog.Info("[DRY RUN] Purge would free space", "backups", len(victims), "size", humanize.IBytes(uint64(total)))
		return nil
	}

	if !boolFlag(flagMap, "force") {
		fmt.Printf("This operation will permanently delete %d backup(s) (%s):\n", len(victims), humanize.IBytes(uint64(total)))
		for _, st := range victims {
			fmt.Printf("  %s\n", st.Path)
		}
		if !PromptForConfirmation("Are you sure you want to continue?", false) {
			plog.Info(buildinfo.Name + " purge operation canceled.")
			return nil
		}
	}

	startTime := time.Now()
	var errs []error
	for _, name := range uniqueBackupsets(victims) {
		if err := purgeLocked(ctx, sp, name, victims); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" purge finished successfully.", "backups", len(victims), "freed", humanize.IBytes(uint64(total)), "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// resolvePurgeTarget interprets arg as a store path when it names a
// directory inside the spool and as a backupset name otherwise.
func resolvePurgeTarget(g *settings.Global, sp *spool.Spool, arg string, all bool) (purgeTarget, error) {
	if strings.ContainsRune(arg, filepath.Separator) {
		st, err := sp.LoadStore(arg)
		if err != nil {
			return purgeTarget{}, UsageError(fmt.Errorf("cannot purge %s: %w", arg, err))
		}
		return purgeTarget{backupset: st.Name, store: st}, nil
	}

	if all {
		return purgeTarget{backupset: arg, keep: -1}, nil
	}

	_, cfg, err := g.LoadBackupset(arg)
	if err != nil {
		return purgeTarget{}, configError(fmt.Errorf("cannot purge %s without --all: %w", arg, err))
	}
	validated, err := job.Spec.Validate(cfg, configspec.Options{IgnoreUnknownSections: true})
	if err != nil {
		return purgeTarget{}, configError(fmt.Errorf("backupset %s: %w", arg, err))
	}
	s, err := job.SettingsFromConfig(validated)
	if err != nil {
		return purgeTarget{}, configError(err)
	}
	return purgeTarget{
		backupset:     arg,
		keep:          max(s.Retention.BackupsToKeep, 0),
		purgeFailures: s.Retention.PurgeFailures,
	}, nil
}

func (t purgeTarget) victims(sp *spool.Spool) ([]*spool.Store, error) {
	if t.store != nil {
		return []*spool.Store{t.store}, nil
	}
	stores, err := sp.ListBackups(t.backupset)
	if err != nil || t.keep < 0 {
		return stores, err
	}
	_, purge := retention.Select(stores, t.keep, nil, t.purgeFailures, func(st *spool.Store) bool {
		return metafile.IsFailed(st.Path)
	})
	return purge, nil
}

// purgeLocked removes the victims of one backupset while holding its lock,
// so a running backup is never purged from under the job.
func purgeLocked(ctx context.Context, sp *spool.Spool, backupset string, victims []*spool.Store) error {
	lock := lockfile.ForBackupset(sp.BackupsetPath(backupset))
	if err := lock.Acquire(); err != nil {
		return fmt.Errorf("cannot purge %s: %w", backupset, err)
	}
	defer lock.Release()

	for _, st := range victims {
		if st.Name != backupset {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.Purge(); err != nil {
			return fmt.Errorf("could not purge %s: %w", st.Path, err)
		}
		plog.Notice("PURGE", "backupset", backupset, "path", st.Path)
	}
	return nil
}

func uniqueBackupsets(stores []*spool.Store) []string {
	var names []string
	seen := make(map[string]bool)
	for _, st := range stores {
		if !seen[st.Name] {
			seen[st.Name] = true
			names = append(names, st.Name)
		}
	}
	return names
}
