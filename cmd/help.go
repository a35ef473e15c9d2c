package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/flagparse"
)

// RunHelp prints the top-level usage, or the usage of one command.
func RunHelp(ctx context.Context, flagMap map[string]any) error {
	args := positional(flagMap)
	if len(args) == 0 {
		flagparse.PrintUsage(os.Stdout)
		return nil
	}
	command, err := flagparse.ParseCommand(args[0])
	if err != nil {
		return UsageError(err)
	}
	flagparse.PrintCommandUsage(os.Stdout, command)
	return nil
}

// RunVersion prints the application version.
func RunVersion(ctx context.Context, flagMap map[string]any) error {
	fmt.Printf("%s %s (plugin api %d, %s %s/%s)\n", buildinfo.Name, buildinfo.Version, buildinfo.APIVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
