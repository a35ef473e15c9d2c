package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/holland/pkg/flagparse"
	"github.com/paulschiretz/holland/pkg/metafile"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/spool"
)

type backupEntry struct {
	Backupset string    `json:"backupset" yaml:"backupset"`
	Path      string    `json:"path" yaml:"path"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Size      int64     `json:"size" yaml:"size"`
	Status    string    `json:"status" yaml:"status"`
	Plugin    string    `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	UUID      string    `json:"uuid,omitempty" yaml:"uuid,omitempty"`
}

// RunListBackups prints every store in the spool, grouped by backupset.
func RunListBackups(ctx context.Context, flagMap map[string]any) error {
	g, err := loadGlobal(flagMap, false)
	if err != nil {
		return err
	}
	root := stringFlag(flagMap, "backup-directory")
	if root == "" {
		root = g.BackupDirectory
	}
	sp, err := spool.New(root)
	if err != nil {
		return UsageError(fmt.Errorf("invalid backup directory: %w", err))
	}

	entries, err := listBackups(ctx, sp)
	if err != nil {
		return err
	}

	format := stringFlag(flagMap, "format")
	return writeBackups(os.Stdout, format, entries)
}

func listBackups(ctx context.Context, sp *spool.Spool) ([]backupEntry, error) {
	var stores []*spool.Store
	for st := range sp.All() {
		stores = append(stores, st)
	}
	sizes, err := spool.Sizes(ctx, stores, runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	entries := make([]backupEntry, 0, len(stores))
	for i, st := range stores {
		e := backupEntry{
			Backupset: st.Name,
			Path:      st.Path,
			Timestamp: st.Timestamp(),
			Size:      sizes[i],
			Status:    "failed",
		}
		if _, content, err := metafile.Read(st.Path); err == nil {
			if !content.Failed {
				e.Status = "ok"
			}
			e.Plugin = content.Plugin
			e.UUID = content.UUID
			if !content.StartTime.IsZero() {
				e.Timestamp = content.StartTime
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func writeBackups(w io.Writer, format string, entries []backupEntry) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No backups found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	current := ""
	for _, e := range entries {
		if e.Backupset != current {
			if current != "" {
				fmt.Fprintln(tw)
			}
			current = e.Backupset
			fmt.Fprintf(tw, "Backupset[%s]:\n", current)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			e.Path,
			e.Timestamp.Local().Format(time.DateTime),
			humanize.IBytes(uint64(e.Size)),
			e.Status,
			e.Plugin,
		)
	}
	return tw.Flush()
}

// RunListPlugins prints every plugin that loads, per group.
func RunListPlugins(ctx context.Context, flagMap map[string]any) error {
	if _, err := loadGlobal(flagMap, false); err != nil {
		return err
	}

	groups := []string{plugin.GroupBackup, plugin.GroupHooks}
	infos := make(map[string][]plugin.Info, len(groups))
	for _, group := range groups {
		for _, p := range plugin.Iterate(group) {
			infos[group] = append(infos[group], p.PluginInfo())
		}
	}

	w := os.Stdout
	if stringFlag(flagMap, "format") == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, group := range groups {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s:\n", group)
		for _, info := range infos[group] {
			aliases := ""
			if len(info.Aliases) > 0 {
				aliases = "(" + strings.Join(info.Aliases, ", ") + ")"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", info.Name, aliases, info.Summary)
		}
	}
	return tw.Flush()
}

// RunListCommands prints the available commands.
func RunListCommands(ctx context.Context, flagMap map[string]any) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Available commands:")
	for _, c := range flagparse.Commands() {
		aliases := ""
		if a := c.Aliases(); len(a) > 0 {
			aliases = "(" + strings.Join(a, ", ") + ")"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", c, aliases, c.Summary())
	}
	return tw.Flush()
}
