package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/paulschiretz/holland/cmd"
	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/flagparse"
	"github.com/paulschiretz/holland/pkg/interrupt"
	"github.com/paulschiretz/holland/pkg/plog"

	// Built-in plugins register themselves on import.
	_ "github.com/paulschiretz/holland/pkg/plugins/commandhook"
	_ "github.com/paulschiretz/holland/pkg/plugins/example"
	_ "github.com/paulschiretz/holland/pkg/plugins/script"
)

// runFunc is the signature shared by every command.
type runFunc func(ctx context.Context, flagMap map[string]any) error

var commands = map[flagparse.Command]runFunc{
	flagparse.Backup:       cmd.RunBackup,
	flagparse.ListBackups:  cmd.RunListBackups,
	flagparse.ListPlugins:  cmd.RunListPlugins,
	flagparse.ListCommands: cmd.RunListCommands,
	flagparse.Purge:        cmd.RunPurge,
	flagparse.MkConfig:     cmd.RunMkConfig,
	flagparse.Help:         cmd.RunHelp,
	flagparse.Version:      cmd.RunVersion,
}

// run encapsulates the main application logic and returns an error if something
// goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		return cmd.UsageError(err)
	}

	fn, ok := commands[command]
	if !ok {
		return fmt.Errorf("internal error: no handler for command %s", command)
	}
	return fn(ctx, flagMap)
}

func main() {
	// The context is canceled with the signal as its cause on SIGINT or SIGTERM.
	watcher, ctx := interrupt.Watch(context.Background())

	err := run(ctx, os.Args[1:])
	code := cmd.ExitCode(err)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		if code == cmd.ExitUsage {
			fmt.Fprintf(os.Stderr, "%s: %v\n", buildinfo.Name, err)
		} else {
			plog.Error(buildinfo.Name+" exited with error", "error", err, "exit_code", code)
		}
	}
	plog.Close()
	watcher.Stop()
	os.Exit(code)
}
