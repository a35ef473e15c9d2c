package cmd_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/holland/cmd"
	"github.com/paulschiretz/holland/pkg/config"
)

func TestRunMkConfig(t *testing.T) {
	t.Run("Full config on stdout", func(t *testing.T) {
		env := newTestEnv(t)
		out, _, err := captureOutput(t, func() error {
			return cmd.RunMkConfig(t.Context(), env.flags(map[string]any{"args": []string{"example"}}))
		})
		if err != nil {
			t.Fatalf("RunMkConfig() error = %v", err)
		}
		for _, want := range []string{
			"[holland:backup]",
			"plugin = example",
			"backups-to-keep = 1",
			"[example]",
			"message = holland example backup",
			"[compression]",
			"method = gzip",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "retention-count") {
			t.Errorf("aliases should not be written:\n%s", out)
		}
	})

	t.Run("Alias resolves to the canonical plugin", func(t *testing.T) {
		env := newTestEnv(t)
		out, _, err := captureOutput(t, func() error {
			return cmd.RunMkConfig(t.Context(), env.flags(map[string]any{"args": []string{"noop"}}))
		})
		if err != nil {
			t.Fatalf("RunMkConfig() error = %v", err)
		}
		if !strings.Contains(out, "plugin = example") {
			t.Errorf("expected the canonical plugin name:\n%s", out)
		}
	})

	t.Run("Minimal", func(t *testing.T) {
		env := newTestEnv(t)
		out, _, err := captureOutput(t, func() error {
			return cmd.RunMkConfig(t.Context(), env.flags(map[string]any{
				"args":    []string{"example"},
				"minimal": true,
			}))
		})
		if err != nil {
			t.Fatalf("RunMkConfig() error = %v", err)
		}
		if !strings.Contains(out, "plugin = example") {
			t.Errorf("minimal config lost the plugin:\n%s", out)
		}
		if strings.Contains(out, "backups-to-keep") || strings.Contains(out, "message") {
			t.Errorf("minimal config contains defaulted options:\n%s", out)
		}
	})

	t.Run("Unknown plugin", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := captureOutput(t, func() error {
			return cmd.RunMkConfig(t.Context(), env.flags(map[string]any{"args": []string{"nope"}}))
		})
		if got := cmd.ExitCode(err); got != cmd.ExitPlugin {
			t.Errorf("ExitCode() = %d, want %d (err: %v)", got, cmd.ExitPlugin, err)
		}
	})

	t.Run("Named backupset can be backed up", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := captureOutput(t, func() error {
			return cmd.RunMkConfig(t.Context(), env.flags(map[string]any{
				"args": []string{"example"},
				"name": "generated",
			}))
		})
		if err != nil {
			t.Fatalf("RunMkConfig() error = %v", err)
		}
		path := filepath.Join(env.dir, "backupsets", "generated.conf")
		cfg, err := config.ReadFile(path)
		if err != nil {
			t.Fatalf("generated config does not parse: %v", err)
		}
		if got := cfg.Section("holland:backup").String("plugin"); got != "example" {
			t.Errorf("plugin = %q, want example", got)
		}

		_, logs, err := captureOutput(t, func() error {
			return cmd.RunBackup(t.Context(), env.flags(map[string]any{"args": []string{"generated"}}))
		})
		if err != nil {
			t.Fatalf("backup of the generated config failed: %v\nlogs:\n%s", err, logs)
		}
		if got := storeDirs(t, filepath.Join(env.spool, "generated")); len(got) != 1 {
			t.Errorf("expected one store, got %v", got)
		}
	})

	t.Run("File", func(t *testing.T) {
		env := newTestEnv(t)
		path := filepath.Join(t.TempDir(), "sub", "out.conf")
		_, _, err := captureOutput(t, func() error {
			return cmd.RunMkConfig(t.Context(), env.flags(map[string]any{
				"args": []string{"example"},
				"file": path,
			}))
		})
		if err != nil {
			t.Fatalf("RunMkConfig() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	})
}
