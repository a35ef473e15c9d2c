package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/stream"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "dumper.plugin", `
[plugin]
name = dumper
summary = Dumps things
author = ops
version = 1.2
command = printf manifest
estimated-size = 2K
output = things.dump
aliases = thing-dumper
`)
	writeManifest(t, dir, "broken.plugin", `
[plugin]
summary = no name and no command
`)
	writeManifest(t, dir, "README", "not a manifest")

	reg := plugin.NewRegistry()
	if err := LoadManifests(reg, []string{dir, filepath.Join(dir, "missing")}); err != nil {
		t.Fatalf("LoadManifests failed: %v", err)
	}

	names := reg.Names(plugin.GroupBackup)
	slices.Sort(names)
	if !slices.Equal(names, []string{"broken", "dumper"}) {
		t.Fatalf("unexpected plugins: %v", names)
	}

	t.Run("Manifest plugin runs with defaults", func(t *testing.T) {
		p, err := reg.New(plugin.GroupBackup, "thing-dumper")
		if err != nil {
			t.Fatal(err)
		}
		sp := p.(*Plugin)
		info := sp.PluginInfo()
		if info.Name != "dumper" || info.Version != "1.2" || info.Author != "ops" {
			t.Errorf("unexpected info: %+v", info)
		}
		if err := configure(t, sp, "[compression]\nmethod = none\n"); err != nil {
			t.Fatalf("Configure failed: %v", err)
		}
		if est, _ := sp.Estimate(context.Background()); est != 2000 {
			t.Errorf("expected estimate 2000, got %d", est)
		}
		st := newStore(t)
		sp.Setup(st)
		if err := sp.Backup(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := readOutput(t, filepath.Join(st.Path, "things.dump"), stream.None); got != "manifest" {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("Section overrides manifest", func(t *testing.T) {
		p, _ := reg.New(plugin.GroupBackup, "dumper")
		sp := p.(*Plugin)
		if err := configure(t, sp, "[dumper]\ncommand = printf override\n[compression]\nmethod = none\n"); err != nil {
			t.Fatal(err)
		}
		st := newStore(t)
		sp.Setup(st)
		if err := sp.Backup(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := readOutput(t, filepath.Join(st.Path, "things.dump"), stream.None); got != "override" {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("Broken manifest is an import error", func(t *testing.T) {
		_, err := reg.New(plugin.GroupBackup, "broken")
		var ie *plugin.ImportError
		if !errors.As(err, &ie) {
			t.Fatalf("expected ImportError, got %v", err)
		}
	})
}

func TestManifestAPIVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "future.plugin", "[plugin]\nname = future\ncommand = true\napi-version = 99\n")
	m, err := ReadManifest(filepath.Join(dir, "future.plugin"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Factory()(); err == nil {
		t.Error("expected a newer api version to be rejected")
	}
}

func TestReadManifestUnknownKey(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "typo.plugin", "[plugin]\nname = typo\ncommand = true\ncommnd = false\n")
	if _, err := ReadManifest(filepath.Join(dir, "typo.plugin")); err == nil {
		t.Error("expected unknown manifest keys to be rejected")
	}
}
