package flagparse

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/plog"
)

// ArgsKey holds the positional arguments of a command in the flag map.
const ArgsKey = "args"

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	Config   *string
	LogLevel *string
	Quiet    *bool
	Verbose  *bool

	// Shared: Backup / Purge
	DryRun *bool

	// Backup specific
	AbortImmediately *bool
	NoLock           *bool

	// Shared: ListBackups / ListPlugins
	Format *string

	// ListBackups specific
	BackupDirectory *string

	// Purge specific
	All   *bool
	Force *bool

	// MkConfig specific
	Name    *string
	File    *string
	Minimal *bool
	Edit    *bool
}

// shortNames maps a flag to its one-letter form.
var shortNames = map[string]string{
	"config":    "c",
	"log-level": "l",
	"quiet":     "q",
	"verbose":   "v",
	"dry-run":   "n",
	"no-lock":   "f",
}

func stringFlag(fs *flag.FlagSet, name, value, usage string) *string {
	p := fs.String(name, value, usage)
	if short, ok := shortNames[name]; ok {
		fs.StringVar(p, short, value, "Shorthand for -"+name+".")
	}
	return p
}

func boolFlag(fs *flag.FlagSet, name string, value bool, usage string) *bool {
	p := fs.Bool(name, value, usage)
	if short, ok := shortNames[name]; ok {
		fs.BoolVar(p, short, value, "Shorthand for -"+name+".")
	}
	return p
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = stringFlag(fs, "config", "", "Path to holland.conf. Defaults to $HOLLAND_CONFIG, then /etc/holland/holland.conf.")
	f.LogLevel = stringFlag(fs, "log-level", "info", "Set the logging level: 'debug', 'info', 'warning', 'error', 'critical'.")
	f.Quiet = boolFlag(fs, "quiet", false, "Only log errors to the console.")
	f.Verbose = boolFlag(fs, "verbose", false, "Log debug output to the console.")
}

func registerBackupFlags(fs *flag.FlagSet, f *cliFlags) {
	f.DryRun = boolFlag(fs, "dry-run", false, "Configure and estimate every backupset without backing anything up.")
	f.AbortImmediately = boolFlag(fs, "abort-immediately", false, "Stop the batch at the first failed backupset.")
	f.NoLock = boolFlag(fs, "no-lock", false, "Run even when another process holds the backupset lock.")
}

func registerListBackupsFlags(fs *flag.FlagSet, f *cliFlags) {
	f.BackupDirectory = stringFlag(fs, "backup-directory", "", "Spool directory to list instead of [holland] backup-directory.")
	f.Format = stringFlag(fs, "format", "text", "Output format: 'text', 'json' or 'yaml'.")
}

func registerListPluginsFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Format = stringFlag(fs, "format", "text", "Output format: 'text' or 'yaml'.")
}

func registerPurgeFlags(fs *flag.FlagSet, f *cliFlags) {
	f.All = boolFlag(fs, "all", false, "Remove every backup of the named backupsets instead of applying retention.")
	f.DryRun = boolFlag(fs, "dry-run", false, "Only list what would be removed.")
	f.Force = boolFlag(fs, "force", false, "Bypass the confirmation prompt.")
}

func registerMkConfigFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Name = stringFlag(fs, "name", "", "Backupset name. The config is written to backupsets/<name>.conf unless -file is given.")
	f.File = stringFlag(fs, "file", "", "Write the config to this file instead of standard output.")
	f.Minimal = boolFlag(fs, "minimal", false, "Leave out options that have a default value.")
	f.Edit = boolFlag(fs, "edit", false, "Open the generated config in $EDITOR and validate it afterwards.")
}

type commandDef struct {
	desc     string
	argsHelp string
	register func(fs *flag.FlagSet, f *cliFlags)
	formats  []string
}

var commandDefs = map[Command]commandDef{
	Backup:       {"Run the backup operation.", "[backupset ...]", registerBackupFlags, nil},
	ListBackups:  {"List the backups in the spool.", "", registerListBackupsFlags, []string{"text", "json", "yaml"}},
	ListPlugins:  {"List the available plugins.", "", registerListPluginsFlags, []string{"text", "yaml"}},
	ListCommands: {"List the available commands.", "", nil, nil},
	Purge:        {"Remove backups, or trim backupsets to backups-to-keep.", "backup-or-backupset ...", registerPurgeFlags, nil},
	MkConfig:     {"Generate a backupset config from a plugin's defaults.", "plugin", registerMkConfigFlags, nil},
	Help:         {"Show help for a command.", "[command]", nil, nil},
	Version:      {"Print the application version.", "", nil, nil},
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the
// command and a map of the flags the user set. Global flags may appear
// before or after the command. Without a command, Backup runs.
func Parse(args []string) (Command, map[string]any, error) {
	return parse(args, os.Stderr)
}

func parse(args []string, out io.Writer) (Command, map[string]any, error) {
	// Global flags before the command.
	gfs := flag.NewFlagSet("main", flag.ContinueOnError)
	gfs.SetOutput(out)
	mf := &cliFlags{}
	registerGlobalFlags(gfs, mf)
	gfs.Usage = func() { printTopLevelUsage(gfs) }
	if err := gfs.Parse(args); err != nil {
		return None, nil, err
	}
	flagMap, err := flagsToMap(gfs, mf)
	if err != nil {
		return None, nil, err
	}

	rest := gfs.Args()
	command := Backup
	if len(rest) > 0 {
		command, err = ParseCommand(rest[0])
		if err != nil {
			return None, nil, err
		}
		rest = rest[1:]
	}

	def := commandDefs[command]
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	fs.SetOutput(out)
	f := &cliFlags{}
	registerGlobalFlags(fs, f)
	if def.register != nil {
		def.register(fs, f)
	}
	fs.Usage = func() { PrintCommandUsage(fs.Output(), command) }

	if err := fs.Parse(rest); err != nil {
		return command, nil, err
	}
	cmdMap, err := flagsToMap(fs, f)
	if err != nil {
		return command, nil, err
	}
	// Flags after the command win over those before it.
	for k, v := range cmdMap {
		flagMap[k] = v
	}
	if format, ok := flagMap["format"].(string); ok && !slices.Contains(def.formats, format) {
		return command, nil, fmt.Errorf("invalid format %q for %s. Must be one of %s", format, command, strings.Join(def.formats, ", "))
	}

	positional := fs.Args()
	if err := checkArgs(command, positional); err != nil {
		return command, nil, err
	}
	if len(positional) > 0 {
		flagMap[ArgsKey] = slices.Clone(positional)
	}
	return command, flagMap, nil
}

func checkArgs(command Command, args []string) error {
	switch command {
	case Purge:
		if len(args) == 0 {
			return fmt.Errorf("purge needs at least one backup or backupset")
		}
	case MkConfig:
		if len(args) != 1 {
			return fmt.Errorf("mk-config needs exactly one plugin name, got %d", len(args))
		}
	case Help:
		if len(args) > 1 {
			return fmt.Errorf("help takes at most one command")
		}
	case ListBackups, ListPlugins, ListCommands, Version:
		if len(args) > 0 {
			return fmt.Errorf("%s takes no arguments, got %q", command, strings.Join(args, " "))
		}
	}
	return nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]any, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// Short forms are recorded under their long name.
	usedFlags := make(map[string]bool)
	long := make(map[string]string, len(shortNames))
	for name, short := range shortNames {
		long[short] = name
	}
	fs.Visit(func(fl *flag.Flag) {
		if name, ok := long[fl.Name]; ok {
			usedFlags[name] = true
			return
		}
		usedFlags[fl.Name] = true
	})

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "config", f.Config)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)
	addIfUsed(flagMap, usedFlags, "verbose", f.Verbose)

	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "abort-immediately", f.AbortImmediately)
	addIfUsed(flagMap, usedFlags, "no-lock", f.NoLock)

	addIfUsed(flagMap, usedFlags, "format", f.Format)
	addIfUsed(flagMap, usedFlags, "backup-directory", f.BackupDirectory)

	addIfUsed(flagMap, usedFlags, "all", f.All)
	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addIfUsed(flagMap, usedFlags, "name", f.Name)
	addIfUsed(flagMap, usedFlags, "file", f.File)
	addIfUsed(flagMap, usedFlags, "minimal", f.Minimal)
	addIfUsed(flagMap, usedFlags, "edit", f.Edit)

	// Handle flags that require parsing/validation.
	if f.LogLevel != nil && usedFlags["log-level"] {
		if _, err := plog.ParseLevel(*f.LogLevel); err != nil {
			return nil, err
		}
		flagMap["log-level"] = *f.LogLevel
	}
	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	PrintUsage(fs.Output())
}

// PrintUsage writes the top-level help message to w.
func PrintUsage(w io.Writer) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "A pluggable backup framework for databases and filesystems.\n\n")
	fmt.Fprintf(w, "Usage: %s [global flags] <command> [flags] [args]\n\n", execName)
	fmt.Fprintf(w, "Commands:\n")
	for _, c := range Commands() {
		name := c.String()
		if aliases := c.Aliases(); len(aliases) > 0 {
			name += " (" + strings.Join(aliases, ", ") + ")"
		}
		fmt.Fprintf(w, "  %-20s %s\n", name, c.Summary())
	}
	fmt.Fprintf(w, "\nGlobal flags:\n")
	fs := flag.NewFlagSet("global", flag.ContinueOnError)
	fs.SetOutput(w)
	registerGlobalFlags(fs, &cliFlags{})
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nRun '%s help <command>' for more information on a command.\n", execName)
}

// PrintCommandUsage writes the help message for a specific subcommand to w.
func PrintCommandUsage(w io.Writer, command Command) {
	def := commandDefs[command]
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	fs.SetOutput(w)
	registerGlobalFlags(fs, &cliFlags{})
	if def.register != nil {
		def.register(fs, &cliFlags{})
	}

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "A pluggable backup framework for databases and filesystems.\n\n")
	fmt.Fprintf(w, "Usage of the %s command: %s %s [flags] %s\n\n", command, execName, command, def.argsHelp)
	fmt.Fprintf(w, "%s\n\n", def.desc)
	fmt.Fprintf(w, "Flags:\n")
	fs.PrintDefaults()
}
