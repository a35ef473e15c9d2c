package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/hints"
	"github.com/paulschiretz/holland/pkg/hook"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/retention"
	"github.com/paulschiretz/holland/pkg/signal"
	"github.com/paulschiretz/holland/pkg/spool"
)

// connectCommandHooks wires the *-backup-command options. They run before
// any hook plugin of the same signal.
func (j *Job) connectCommandHooks() {
	for event, command := range map[string]string{
		SignalPreBackup:  j.settings.BeforeBackupCommand,
		SignalPostBackup: j.settings.AfterBackupCommand,
		SignalFailBackup: j.settings.FailedBackupCommand,
	} {
		if command == "" {
			continue
		}
		j.Signals.Connect(event, func(_ any, args signal.Args) (any, error) {
			dryRun, _ := args[hook.ArgDryRun].(bool)
			plan := &hook.Plan{
				Enabled:  true,
				Commands: []string{command},
				Vars:     hook.VarsFromArgs(event, args),
				DryRun:   dryRun,
				FailFast: true,
			}
			// Commands must finish even when the run is being interrupted.
			return nil, j.opts.HookExecutor.Run(context.Background(), event+"-command", plan)
		}, signal.Named(event+"-command"))
	}
}

// connectHookPlugins instantiates the hooks named in [holland:backup]
// hooks. Each hook is configured from the section of the same name; its
// plugin key defaults to that name.
func (j *Job) connectHookPlugins() error {
	for _, name := range j.settings.Hooks {
		section := j.validated.Section(name)
		if section == nil {
			section = config.New()
		}
		pluginName := section.String("plugin")
		if pluginName == "" {
			pluginName = name
		}

		p, err := j.opts.Registry.New(plugin.GroupHooks, pluginName)
		if err != nil {
			return fmt.Errorf("hook %s: %w", name, err)
		}
		hp, ok := p.(plugin.HookPlugin)
		if !ok {
			return &plugin.ImportError{Group: plugin.GroupHooks, Name: pluginName, Err: fmt.Errorf("%T is not a hook plugin", p)}
		}

		validated, err := hp.Configspec().Validate(section, configspec.Options{})
		if err != nil {
			var ve *configspec.ValidateError
			if errors.As(err, &ve) {
				for i := range ve.Errors {
					ve.Errors[i].Path = name + "." + ve.Errors[i].Path
				}
			}
			return err
		}
		if err := j.call("hook "+name, func() error { return hp.Configure(name, validated) }); err != nil {
			return err
		}
		if err := hp.Register(j.Signals); err != nil {
			return fmt.Errorf("hook %s: %w", name, err)
		}
		plog.Debug("Registered hook", "backupset", j.Backupset, "hook", name, "plugin", pluginName)
	}
	return nil
}

// connectRetention attaches the purge policy. Dry runs never purge.
func (j *Job) connectRetention() {
	if j.opts.DryRun {
		return
	}
	switch j.settings.Retention.Policy {
	case retention.BeforeBackup:
		signal.ConnectWeak(j.Signals.Signal(SignalPreBackup), j, (*Job).purgeBeforeBackup, signal.Named("retention"))
	case retention.AfterBackup:
		signal.ConnectWeak(j.Signals.Signal(SignalPostBackup), j, (*Job).purgeAfterBackup, signal.Named("retention"))
	}
}

func (j *Job) purgeBeforeBackup(_ any, _ signal.Args) (any, error) {
	return j.purge(), nil
}

func (j *Job) purgeAfterBackup(_ any, args signal.Args) (any, error) {
	if failed, _ := args[hook.ArgFailed].(bool); failed {
		return nil, nil
	}
	return j.purge(), nil
}

// purge applies retention to the backupset. Its errors are recorded but
// never fail the run.
func (j *Job) purge() []*spool.Store {
	purged, err := j.opts.Retainer.Prune(context.Background(), j.Spool, j.Backupset, &j.settings.Retention, j.Store)
	if err != nil {
		if hints.IsHint(err) {
			plog.Debug("Retention", "backupset", j.Backupset, "reason", err)
			return nil
		}
		plog.Warn("Retention purge failed", "backupset", j.Backupset, "error", err)
		j.purgeErr = err
	}
	return purged
}
