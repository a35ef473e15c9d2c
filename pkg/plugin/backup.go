package plugin

import (
	"context"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/signal"
	"github.com/paulschiretz/holland/pkg/spool"
	"github.com/paulschiretz/holland/pkg/stream"
)

// BackupPlugin is the contract every backup plugin fulfils. A job calls the
// methods in order: Configspec, Configure, Setup, Estimate, Backup.
type BackupPlugin interface {
	Plugin
	// Configspec describes the plugin's own sections; it is merged with the
	// [holland:backup] spec before the backupset config is validated.
	Configspec() *configspec.Spec
	// Configure receives the validated backupset config.
	Configure(cfg *config.Config) error
	// Setup hands the plugin the store directory it owns for this run.
	Setup(store *spool.Store) error
	// Estimate returns the expected backup size in bytes.
	Estimate(ctx context.Context) (int64, error)
	Backup(ctx context.Context) error
}

// PreBackup is implemented by plugins that prepare before the size estimate.
type PreBackup interface {
	Pre(ctx context.Context) error
}

// PostBackup is implemented by plugins that clean up after a run. Post runs
// even when the backup failed; its errors are logged, never fatal.
type PostBackup interface {
	Post(ctx context.Context) error
}

// DryRunner is implemented by plugins that can simulate a backup. Plugins
// without it are only configured and estimated during a dry run.
type DryRunner interface {
	DryRun(ctx context.Context) error
}

// StreamUser is implemented by plugins that write compressed output. The
// job injects the opener before Setup.
type StreamUser interface {
	SetStreamOpener(opener stream.Opener)
}

// HookPlugin is a plugin that attaches receivers to a job's signals.
type HookPlugin interface {
	Plugin
	Configspec() *configspec.Spec
	// Configure receives the hook's own validated section and its name in
	// the backupset config.
	Configure(name string, section *config.Config) error
	// Register connects the hook's receivers.
	Register(signals *signal.Group) error
}
