// Package example is a minimal backup plugin. It writes a short text file
// into the store, which makes it useful for trying out a configuration and
// for exercising the core without a database.
package example

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/spool"
	"github.com/paulschiretz/holland/pkg/stream"
)

// Name is the plugin name in the holland.backup group.
const Name = "example"

// OutputName is the file written into the store, before the compression
// extension.
const OutputName = "example.txt"

var spec = configspec.MustParse(`
[example]
message = string(default="holland example backup")
repeat  = integer(min=1, max=1000000, default=1)
`).Merge(stream.Configspec)

func init() {
	plugin.Register(plugin.GroupBackup, Name, New, "noop")
}

// Plugin is the example backup plugin.
type Plugin struct {
	message string
	repeat  int
	comp    stream.Config

	opener stream.Opener
	store  *spool.Store
}

// New returns an unconfigured example plugin.
func New() (plugin.Plugin, error) {
	return &Plugin{opener: stream.FileOpener{}}, nil
}

func (p *Plugin) PluginInfo() plugin.Info {
	return plugin.Info{
		Name:        Name,
		Summary:     "Writes a small text file",
		Description: "Reference plugin. Writes [example] message, repeat times, through the configured compression.",
		Author:      "Holland",
		Version:     buildinfo.Version,
		APIVersion:  buildinfo.APIVersion,
		Aliases:     []string{"noop"},
	}
}

func (p *Plugin) Configspec() *configspec.Spec { return spec }

func (p *Plugin) Configure(cfg *config.Config) error {
	sec := cfg.Section("example")
	p.message = sec.String("message")
	p.repeat = int(sec.Int("repeat"))
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

// Estimate returns the uncompressed size of the output.
func (p *Plugin) Estimate(ctx context.Context) (int64, error) {
	return int64((len(p.message) + 1) * p.repeat), nil
}

func (p *Plugin) Backup(ctx context.Context) error {
	w, err := p.opener.Create(filepath.Join(p.store.Path, OutputName), p.comp)
	if err != nil {
		return plugin.NewBackupError("could not open output", err)
	}
	if err := p.write(ctx, w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return plugin.NewBackupError(fmt.Sprintf("could not finish %s", w.Name()), err)
	}
	plog.Info("Wrote example output", "file", w.Name(), "method", p.comp.Method)
	return nil
}

func (p *Plugin) write(ctx context.Context, w io.Writer) error {
	line := p.message + "\n"
	for range p.repeat {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(w, line); err != nil {
			return plugin.NewBackupError("write failed", err)
		}
	}
	return nil
}

func (p *Plugin) DryRun(ctx context.Context) error {
	est, _ := p.Estimate(ctx)
	plog.Info("[DRY RUN] Would write example output",
		"file", filepath.Join(p.store.Path, OutputName+p.comp.Method.Ext()),
		"size", humanize.IBytes(uint64(est)),
		"preview", strings.TrimSpace(p.message))
	return nil
}
