// Package script is a backup plugin that runs a shell command and stores
// its standard output, compressed through the stream opener. It also backs
// the manifest plugins found in [holland] plugin-dirs.
package script

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/spool"
	"github.com/paulschiretz/holland/pkg/stream"
)

// Name is the plugin name in the holland.backup group.
const Name = "script"

// Defaults are the values a plugin instance starts from. Manifest plugins
// override them.
type Defaults struct {
	Command       string
	EstimatedSize string
	Output        string
}

// Plugin runs a command and captures its stdout.
type Plugin struct {
	info     plugin.Info
	section  string
	defaults Defaults

	command  string
	estimate int64
	output   string
	timeout  time.Duration
	comp     stream.Config

	opener stream.Opener
	store  *spool.Store

	// commandContext allows mocking os/exec for testing.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

func init() {
	plugin.Register(plugin.GroupBackup, Name, New)
}

// New returns the generic script plugin configured from [script].
func New() (plugin.Plugin, error) {
	return newPlugin(plugin.Info{
		Name:        Name,
		Summary:     "Runs a command and saves its output",
		Description: "Runs [script] command through /bin/sh in the store directory and writes its stdout to [script] output.",
		Author:      "Holland",
		Version:     buildinfo.Version,
		APIVersion:  buildinfo.APIVersion,
	}, Name, Defaults{}), nil
}

func newPlugin(info plugin.Info, section string, d Defaults) *Plugin {
	if d.EstimatedSize == "" {
		d.EstimatedSize = "0"
	}
	if d.Output == "" {
		d.Output = "backup.out"
	}
	return &Plugin{
		info:           info,
		section:        section,
		defaults:       d,
		opener:         stream.FileOpener{},
		commandContext: exec.CommandContext,
	}
}

func (p *Plugin) PluginInfo() plugin.Info { return p.info }

// Configspec describes the plugin section. Options left unset fall back to
// the instance defaults, so a manifest plugin needs no configuration at all.
func (p *Plugin) Configspec() *configspec.Spec {
	command := "string"
	if p.defaults.Command != "" {
		command = "string(default=None)"
	}
	return configspec.MustParse(fmt.Sprintf(`
[%s]
command        = %s
estimated-size = string(default=None)
output         = string(default=None)
timeout        = integer(min=0, default=0)
`, p.section, command)).Merge(stream.Configspec)
}

func (p *Plugin) Configure(cfg *config.Config) error {
	sec := cfg.Section(p.section)
	if sec == nil {
		sec = config.New()
	}
	p.command = cmp.Or(sec.String("command"), p.defaults.Command)
	if strings.TrimSpace(p.command) == "" {
		return plugin.BackupErrorf("[%s] command is empty", p.section)
	}
	if _, err := shellquote.Split(p.command); err != nil {
		return plugin.BackupErrorf("[%s] command cannot be parsed: %w", p.section, err)
	}

	est, err := humanize.ParseBytes(cmp.Or(sec.String("estimated-size"), p.defaults.EstimatedSize))
	if err != nil {
		return plugin.BackupErrorf("[%s] estimated-size: %w", p.section, err)
	}
	p.estimate = int64(est)

	p.output = cmp.Or(sec.String("output"), p.defaults.Output)
	if filepath.Base(p.output) != p.output || p.output == "." || p.output == ".." {
		return plugin.BackupErrorf("[%s] output must be a plain file name, got %q", p.section, p.output)
	}
	p.timeout = time.Duration(sec.Int("timeout")) * time.Second

	comp, err := stream.ConfigFromSection(cfg.Section("compression"))
	if err != nil {
		return plugin.NewBackupError("invalid [compression] section", err)
	}
	p.comp = comp
	return nil
}

func (p *Plugin) SetStreamOpener(opener stream.Opener) { p.opener = opener }

func (p *Plugin) Setup(store *spool.Store) error {
	p.store = store
	return nil
}

func (p *Plugin) Estimate(ctx context.Context) (int64, error) {
	return p.estimate, nil
}

func (p *Plugin) Backup(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	w, err := p.opener.Create(filepath.Join(p.store.Path, p.output), p.comp)
	if err != nil {
		return plugin.NewBackupError("could not open output", err)
	}
	defer w.Close()

	cmd := p.createCommand(ctx, p.command)
	cmd.Dir = p.store.Path
	cmd.Env = append(os.Environ(), "HOLLAND_BACKUP_DIR="+p.store.Path, "HOLLAND_BACKUPSET="+p.store.Name)
	cmd.Stdout = w
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	plog.Info("Running backup command", "plugin", p.info.Name, "command", p.command)
	runErr := cmd.Run()
	logStderr(p.info.Name, &stderr)
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return plugin.BackupErrorf("command timed out after %s", p.timeout)
		}
		return plugin.NewBackupError(fmt.Sprintf("command '%s' failed: %v", p.command, runErr), runErr)
	}
	if err := w.Close(); err != nil {
		return plugin.NewBackupError(fmt.Sprintf("could not finish %s", w.Name()), err)
	}
	plog.Info("Captured command output", "plugin", p.info.Name, "file", w.Name(), "size", humanize.IBytes(uint64(w.Written())))
	return nil
}

func (p *Plugin) DryRun(ctx context.Context) error {
	plog.Info("[DRY RUN] Would run backup command",
		"plugin", p.info.Name,
		"command", p.command,
		"output", filepath.Join(p.store.Path, p.output+p.comp.Method.Ext()))
	return nil
}

func logStderr(name string, out *bytes.Buffer) {
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			plog.Warn(line, "plugin", name, "stream", "stderr")
		}
	}
}
