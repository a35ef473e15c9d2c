package engine

import "github.com/paulschiretz/holland/pkg/config"

// Backupset is one named backup configuration queued for a run.
type Backupset struct {
	Name string
	// Config is the merged, unvalidated backupset configuration.
	Config *config.Config
	// Path is the backupset config file. When set it is locked for the
	// run alongside the lock in the spool.
	Path string
}

// Plan holds the flags of one backup batch.
type Plan struct {
	// AbortImmediately stops the batch at the first failed backupset.
	AbortImmediately bool
	// NoLock skips the per-backupset lock.
	NoLock bool

	// Global Flags
	DryRun bool
}
