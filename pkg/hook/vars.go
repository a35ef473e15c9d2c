package hook

import (
	"os"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/paulschiretz/holland/pkg/signal"
	"github.com/paulschiretz/holland/pkg/spool"
)

// Keys of the arguments a backup job sends with its signals.
const (
	ArgBackupset = "backupset"
	ArgStore     = "store"
	ArgDryRun    = "dry_run"
	ArgFailed    = "failed"
	ArgError     = "error"
)

// Vars are substituted into hook commands and exported to their environment.
type Vars struct {
	Backupset     string
	BackupDataDir string
	Event         string
}

// Expand replaces {backupset}, {backup_data_dir} and {event} in command.
// Substituted values are shell-quoted.
func Expand(command string, v Vars) string {
	r := strings.NewReplacer(
		"{backupset}", quote(v.Backupset),
		"{backup_data_dir}", quote(v.BackupDataDir),
		"{event}", quote(v.Event),
	)
	return r.Replace(command)
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	return shellquote.Join(s)
}

// Environ returns the current environment plus the HOLLAND_* variables.
func (v Vars) Environ() []string {
	return append(os.Environ(),
		"HOLLAND_BACKUPSET="+v.Backupset,
		"HOLLAND_BACKUP_DIR="+v.BackupDataDir,
		"HOLLAND_EVENT="+v.Event,
	)
}

// VarsFromArgs builds the variables for a command triggered by event.
func VarsFromArgs(event string, args signal.Args) Vars {
	v := Vars{Event: event}
	v.Backupset, _ = args[ArgBackupset].(string)
	if st, ok := args[ArgStore].(*spool.Store); ok && st != nil {
		v.BackupDataDir = st.Path
	}
	return v
}
