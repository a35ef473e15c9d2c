package commandhook_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/job"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/plugins/commandhook"
	"github.com/paulschiretz/holland/pkg/plugins/example"
	"github.com/paulschiretz/holland/pkg/spool"
)

func plenty(string) (int64, error) { return 1 << 40, nil }

func runJob(t *testing.T, hookSection string) *job.Job {
	t.Helper()
	text := "[holland:backup]\nplugin = example\nhooks = notify\n\n[compression]\nmethod = none\n\n[notify]\n" + hookSection
	cfg, err := config.ParseString(text)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := spool.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p, err := example.New()
	if err != nil {
		t.Fatal(err)
	}
	j := job.New("default", cfg, p.(plugin.BackupPlugin), sp, job.Options{FreeSpace: plenty})
	j.Run(context.Background())
	return j
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name        string
		section     string
		errContains string
	}{
		{"Defaults", "command = true\n", ""},
		{"Several events", "command = true\nevents = pre-backup, fail-backup\n", ""},
		{"Missing command", "", "missing required value"},
		{"Unknown event", "command = true\nevents = after-lunch\n", "unknown event"},
		{"Bad quoting", "command = echo \"open\n", "cannot be parsed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := commandhook.New()
			if err != nil {
				t.Fatal(err)
			}
			h := p.(*commandhook.Hook)
			raw, err := config.ParseString(tc.section)
			if err != nil {
				t.Fatal(err)
			}
			sec, err := h.Configspec().Validate(raw, configspec.Options{})
			if err == nil {
				err = h.Configure("notify", sec)
			}
			if tc.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.errContains) {
				t.Fatalf("expected error containing %q, got %v", tc.errContains, err)
			}
		})
	}
}

func TestHookRuns(t *testing.T) {
	out := filepath.Join(t.TempDir(), "events")

	t.Run("Post backup", func(t *testing.T) {
		j := runJob(t, fmt.Sprintf("plugin = command\ncommand = echo $HOLLAND_EVENT {backupset} >> %s\nevents = pre-backup, post-backup, fail-backup\n", out))
		if j.State() != job.Succeeded {
			t.Fatalf("expected success, got %s: %v", j.State(), j.Err())
		}
		b, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if got := string(b); got != "pre-backup default\npost-backup default\n" {
			t.Errorf("unexpected hook output %q", got)
		}
	})

	t.Run("Failing pre-backup aborts the run", func(t *testing.T) {
		j := runJob(t, "plugin = command\ncommand = exit 4\nevents = pre-backup\n")
		if j.State() != job.Failed {
			t.Fatalf("expected the run to fail, got %s", j.State())
		}
		if !strings.Contains(j.Err().Error(), "exit status 4") {
			t.Errorf("unexpected error: %v", j.Err())
		}
	})

	t.Run("Failing post-backup is not fatal", func(t *testing.T) {
		j := runJob(t, "plugin = command\ncommand = exit 4\n")
		if j.State() != job.Succeeded {
			t.Fatalf("expected success, got %s: %v", j.State(), j.Err())
		}
	})
}

func TestEvents(t *testing.T) {
	for _, ev := range commandhook.Events {
		if !strings.HasSuffix(ev, "-backup") {
			t.Errorf("unexpected event %q", ev)
		}
	}
	if _, err := plugin.New(plugin.GroupHooks, commandhook.Name); err != nil {
		t.Errorf("command hook not registered: %v", err)
	}
}
