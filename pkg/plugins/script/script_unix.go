//go:build !windows

package script

import (
	"context"
	"os/exec"

	"golang.org/x/sys/unix"
)

// createCommand runs command through /bin/sh in its own process group, so
// cancellation reaches everything the command spawned.
func (p *Plugin) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := p.commandContext(ctx, "/bin/sh", "-c", command)
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
	return cmd
}
