package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kballard/go-shellquote"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/job"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/util"
)

// defaultEditor is used when neither $VISUAL nor $EDITOR is set.
const defaultEditor = "vi"

// RunMkConfig generates a backupset config for a backup plugin.
func RunMkConfig(ctx context.Context, flagMap map[string]any) error {
	g, err := loadGlobal(flagMap, false)
	if err != nil {
		return err
	}
	args := positional(flagMap)
	if len(args) != 1 {
		return UsageError(fmt.Errorf("mk-config needs exactly one plugin name"))
	}
	name := args[0]

	p, err := plugin.New(plugin.GroupBackup, name)
	if err != nil {
		return err
	}
	bp, ok := p.(plugin.BackupPlugin)
	if !ok {
		return fmt.Errorf("%w: %s does not implement the backup plugin interface", plugin.ErrPlugin, name)
	}
	spec := job.Spec.Merge(bp.Configspec())
	cfg, err := exampleConfig(spec, bp.PluginInfo().Name, boolFlag(flagMap, "minimal"))
	if err != nil {
		return err
	}

	path := stringFlag(flagMap, "file")
	if path == "" && stringFlag(flagMap, "name") != "" {
		path = g.BackupsetPath(stringFlag(flagMap, "name"))
	}

	if boolFlag(flagMap, "edit") {
		cfg, err = editConfig(ctx, cfg, spec)
		if err != nil {
			return err
		}
	}

	if path == "" {
		return cfg.Write(os.Stdout)
	}
	if _, err := os.Stat(path); err == nil {
		if !PromptForConfirmation(fmt.Sprintf("%s already exists. Overwrite it?", path), false) {
			plog.Info("Config not written", "path", path)
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := cfg.WriteFile(path, util.UserWritableFilePerms); err != nil {
		return err
	}
	plog.Info("Wrote backupset config", "plugin", name, "path", path)
	return nil
}

// exampleConfig renders a config from the defaults in spec. Options without
// a default are emitted empty so the user sees what must be filled in; with
// minimal set, options that have a default are left out.
func exampleConfig(spec *configspec.Spec, pluginName string, minimal bool) (*config.Config, error) {
	cfg := config.New()
	if err := fillDefaults(spec.Tree(), cfg, "", minimal); err != nil {
		return nil, err
	}
	cfg.EnsureSection(job.Section).Set("plugin", pluginName)
	return cfg, nil
}

func fillDefaults(spec, cfg *config.Config, path string, minimal bool) error {
	for _, key := range spec.Keys() {
		if sub := spec.Section(key); sub != nil {
			if err := fillDefaults(sub, cfg.EnsureSection(key), joinKey(path, key), minimal); err != nil {
				return err
			}
			continue
		}
		check, err := configspec.ParseCheck(spec.String(key))
		if err != nil {
			return fmt.Errorf("%s: %w", joinKey(path, key), err)
		}
		switch {
		case check.AliasOf != "":
			// Only the canonical name is written.
		case !check.HasDefault:
			cfg.Set(key, "")
		case minimal:
		case check.Default == nil:
			// None stays unset.
		default:
			cfg.Set(key, check.Default)
		}
	}
	return nil
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// editConfig opens cfg in the user's editor and validates the result
// against spec.
func editConfig(ctx context.Context, cfg *config.Config, spec *configspec.Spec) (*config.Config, error) {
	tmp, err := os.CreateTemp("", "holland-mkconfig-*.conf")
	if err != nil {
		return nil, fmt.Errorf("could not create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := cfg.WriteFile(tmpPath, util.UserOnlyFilePerms); err != nil {
		return nil, err
	}
	if err := runEditor(ctx, tmpPath); err != nil {
		return nil, err
	}

	edited, err := config.ReadFile(tmpPath)
	if err != nil {
		return nil, configError(err)
	}
	if _, err := spec.Validate(edited, configspec.Options{IgnoreUnknownSections: true}); err != nil {
		return nil, configError(fmt.Errorf("edited config is not valid: %w", err))
	}
	return edited, nil
}

func runEditor(ctx context.Context, path string) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = defaultEditor
	}
	argv, err := shellquote.Split(editor)
	if err != nil {
		return configError(fmt.Errorf("invalid editor %q: %w", editor, err))
	}
	if len(argv) == 0 {
		return configError(errors.New("editor command is empty"))
	}

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s failed: %w", argv[0], err)
	}
	return nil
}
