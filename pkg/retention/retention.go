// Package retention decides which stores of a backupset survive and purges
// the rest.
//
// Stores are ranked newest first. The newest BackupsToKeep are retained,
// as is the store of the current run. Everything else is purged, oldest
// first, together with failed stores when PurgeFailures is set.
package retention

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/paulschiretz/holland/pkg/hints"
	"github.com/paulschiretz/holland/pkg/metafile"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/retentionmetrics"
	"github.com/paulschiretz/holland/pkg/spool"
)

var ErrNothingToPurge = hints.New("nothing to purge")

// Retainer applies retention plans to a spool.
type Retainer struct {
	// isFailed is swappable for tests.
	isFailed func(store *spool.Store) bool
}

// NewRetainer returns a Retainer that reads failure flags from backup.conf.
func NewRetainer() *Retainer {
	return &Retainer{
		isFailed: func(st *spool.Store) bool { return metafile.IsFailed(st.Path) },
	}
}

// EffectiveKeep returns the retention count actually applied for a plan.
// Under AfterBackup at least the store that just succeeded is kept.
func EffectiveKeep(p *Plan) int {
	keep := max(p.BackupsToKeep, 0)
	if p.Policy == AfterBackup && keep < 1 {
		plog.Warn("backups-to-keep=0 is not allowed with purge-policy=after-backup; keeping 1",
			"configured", p.BackupsToKeep)
		keep = 1
	}
	return keep
}

// Select splits stores into retained and purged sets. stores must be in
// spool order (oldest first); the purge list is returned oldest first.
// current is never purged.
func Select(stores []*spool.Store, keep int, current *spool.Store, purgeFailures bool, isFailed func(*spool.Store) bool) (kept, purge []*spool.Store) {
	newestFirst := slices.Clone(stores)
	slices.Reverse(newestFirst)

	isCurrent := func(st *spool.Store) bool {
		return current != nil && st.Path == current.Path
	}

	retained := make(map[string]bool)
	for i, st := range newestFirst {
		if i < keep || isCurrent(st) {
			retained[st.Path] = true
		}
	}

	for _, st := range stores {
		switch {
		case isCurrent(st):
			kept = append(kept, st)
		case retained[st.Path] && !(purgeFailures && isFailed(st)):
			kept = append(kept, st)
		default:
			purge = append(purge, st)
		}
	}
	return kept, purge
}

// Prune enforces plan on the named backupset and returns the stores it
// removed (or would remove in a dry run). It stops on the first purge
// error. Stores that vanished meanwhile are skipped.
func (r *Retainer) Prune(ctx context.Context, sp *spool.Spool, backupset string, p *Plan, current *spool.Store) ([]*spool.Store, error) {
	stores, err := sp.ListBackups(backupset)
	if err != nil {
		return nil, fmt.Errorf("could not list backups of %s: %w", backupset, err)
	}
	if len(stores) == 0 {
		return nil, ErrNothingToPurge
	}

	keep := EffectiveKeep(p)
	kept, purge := Select(stores, keep, current, p.PurgeFailures, r.isFailed)
	plog.Debug("Retention plan", "backupset", backupset, "keep", keep, "retained", len(kept), "purge", len(purge))
	if len(purge) == 0 {
		return nil, ErrNothingToPurge
	}

	var m retentionmetrics.Metrics
	if p.Metrics {
		m = &retentionmetrics.RetentionMetrics{}
	} else {
		m = &retentionmetrics.NoopMetrics{}
	}
	m.StartProgress("Purge progress", 10*time.Second)
	defer func() {
		m.StopProgress()
		m.LogSummary("Purge finished")
	}()

	var purged []*spool.Store
	for _, st := range purge {
		select {
		case <-ctx.Done():
			return purged, ctx.Err()
		default:
		}

		if !st.Exists() {
			plog.Debug("Store already gone, skipping", "path", st.Path)
			continue
		}
		if p.DryRun {
			plog.Notice("[DRY RUN] PURGE", "backupset", backupset, "path", st.Path)
			purged = append(purged, st)
			continue
		}

		size, _ := st.Size()
		plog.Notice("PURGE", "backupset", backupset, "path", st.Path)
		if err := st.Purge(); err != nil {
			m.AddStoresFailed(1)
			return purged, fmt.Errorf("failed to purge %s: %w", st.Path, err)
		}
		m.AddStoresPurged(1)
		m.AddBytesFreed(size)
		purged = append(purged, st)
	}
	return purged, nil
}
