// Package commandhook is a hook plugin that runs a shell command on job
// signals. A backupset enables it by naming a section in
// [holland:backup] hooks:
//
//	[holland:backup]
//	hooks = notify
//
//	[notify]
//	plugin  = command
//	command = mail -s "backup {backupset} done" ops@example.com
//	events  = post-backup, fail-backup
package commandhook

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/hook"
	"github.com/paulschiretz/holland/pkg/job"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/signal"
)

const Name = "command"

var spec = configspec.MustParse(`
plugin  = string(default=None)
command = string(min=1)
events  = force_list(default=list('post-backup'))
`)

// Events are the signals a command hook may subscribe to.
var Events = []string{job.SignalPreBackup, job.SignalPostBackup, job.SignalFailBackup}

type Hook struct {
	name    string
	command string
	events  []string

	executor *hook.HookExecutor
}

func init() {
	plugin.Register(plugin.GroupHooks, Name, New)
}

func New() (plugin.Plugin, error) {
	return &Hook{executor: hook.NewHookExecutor(nil)}, nil
}

func (h *Hook) PluginInfo() plugin.Info {
	return plugin.Info{
		Name:        Name,
		Summary:     "Runs a shell command on backup events",
		Description: "Runs command through /bin/sh on each of events. {backupset}, {backup_data_dir} and {event} are substituted.",
		Author:      "Holland",
		Version:     buildinfo.Version,
		APIVersion:  buildinfo.APIVersion,
	}
}

func (h *Hook) Configspec() *configspec.Spec { return spec }

func (h *Hook) Configure(name string, section *config.Config) error {
	h.name = name
	h.command = section.String("command")
	if _, err := shellquote.Split(h.command); err != nil {
		return plugin.BackupErrorf("hook %s: command cannot be parsed: %w", name, err)
	}
	h.events = section.Strings("events")
	if len(h.events) == 0 {
		return plugin.BackupErrorf("hook %s: no events configured", name)
	}
	for _, ev := range h.events {
		if !slices.Contains(Events, ev) {
			return plugin.BackupErrorf("hook %s: unknown event %q, expected one of %s", name, ev, strings.Join(Events, ", "))
		}
	}
	return nil
}

// Register connects one receiver per event. A failing command fails a
// pre-backup signal and is only logged for the others.
func (h *Hook) Register(signals *signal.Group) error {
	for _, ev := range h.events {
		signals.Connect(ev, func(_ any, args signal.Args) (any, error) {
			dryRun, _ := args[hook.ArgDryRun].(bool)
			err := h.executor.Run(context.Background(), h.name, &hook.Plan{
				Enabled:  true,
				Commands: []string{h.command},
				Vars:     hook.VarsFromArgs(ev, args),
				DryRun:   dryRun,
				FailFast: true,
			})
			if err != nil {
				return nil, fmt.Errorf("hook %s: %w", h.name, err)
			}
			return nil, nil
		}, signal.Named(h.name))
	}
	return nil
}
