// Package hook runs user supplied shell commands around a backup, such as
// the before-backup-command and after-backup-command options.
package hook

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/paulschiretz/holland/pkg/hints"
	"github.com/paulschiretz/holland/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a HookExecutor. A nil commandContext uses exec.CommandContext.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &HookExecutor{
		commandContext: commandContext,
	}
}

// Run executes the plan's commands in order through /bin/sh. Output is
// forwarded to the log line by line.
func (e *HookExecutor) Run(ctx context.Context, hookName string, p *Plan) error {
	if !p.Enabled {
		return ErrDisabled
	}

	if len(p.Commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", hookName), "event", p.Vars.Event)

	var errs []error
	for _, raw := range p.Commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		command := Expand(raw, p.Vars)
		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "hook", hookName, "command", command)
			continue
		}
		plog.Info("Executing command", "hook", hookName, "command", command)

		cmd := e.createCommand(ctx, command)
		cmd.Env = p.Vars.Environ()
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		logOutput(hookName, &out)
		if err != nil {
			// A canceled context makes Wait fail; report the cancellation instead.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = fmt.Errorf("command '%s' failed: %w", command, err)
			if p.FailFast {
				return err
			}
			plog.Warn("Hook command failed", "hook", hookName, "command", command, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func logOutput(hookName string, out *bytes.Buffer) {
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			plog.Info(line, "hook", hookName)
		}
	}
}
