//go:build !windows

package hook

import (
	"context"
	"os/exec"

	"golang.org/x/sys/unix"
)

// createCommand creates an exec.Cmd for a hook on Unix-like systems.
func (e *HookExecutor) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := e.commandContext(ctx, "/bin/sh", "-c", command)
	// Run the hook in its own process group so an interrupt aimed at holland
	// does not also hit the hook's children mid-command.
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	return cmd
}
