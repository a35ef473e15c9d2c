package flagparse

import (
	"bytes"
	"errors"
	"flag"
	"slices"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		input    string
		expected Command
		wantErr  bool
	}{
		{"backup", Backup, false},
		{"BACKUP", Backup, false},
		{"bk", Backup, false},
		{"list-backups", ListBackups, false},
		{"lb", ListBackups, false},
		{"mk-config", MkConfig, false},
		{"mc", MkConfig, false},
		{"none", None, true},
		{"restore", None, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			c, err := ParseCommand(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if c != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, c)
			}
		})
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		command     Command
		expected    map[string]any
		errContains string
	}{
		{
			name:     "No Arguments Runs Backup",
			args:     nil,
			command:  Backup,
			expected: map[string]any{},
		},
		{
			name:     "Global Flags Only",
			args:     []string{"-c", "/tmp/holland.conf", "--log-level=debug"},
			command:  Backup,
			expected: map[string]any{"config": "/tmp/holland.conf", "log-level": "debug"},
		},
		{
			name:    "Backup With Backupsets",
			args:    []string{"backup", "-n", "--abort-immediately", "mysql", "pg"},
			command: Backup,
			expected: map[string]any{
				"dry-run":           true,
				"abort-immediately": true,
				ArgsKey:             []string{"mysql", "pg"},
			},
		},
		{
			name:     "Short No Lock",
			args:     []string{"bk", "-f"},
			command:  Backup,
			expected: map[string]any{"no-lock": true},
		},
		{
			name:     "Global Flags After Command Win",
			args:     []string{"-q", "-c", "a.conf", "list-plugins", "-c", "b.conf"},
			command:  ListPlugins,
			expected: map[string]any{"quiet": true, "config": "b.conf"},
		},
		{
			name:     "List Backups Format",
			args:     []string{"list-backups", "--backup-directory", "/spool", "--format", "json"},
			command:  ListBackups,
			expected: map[string]any{"backup-directory": "/spool", "format": "json"},
		},
		{
			name:     "Purge",
			args:     []string{"purge", "--all", "--force", "mysql"},
			command:  Purge,
			expected: map[string]any{"all": true, "force": true, ArgsKey: []string{"mysql"}},
		},
		{
			name:    "Mk Config",
			args:    []string{"mk-config", "--name", "nightly", "--minimal", "script"},
			command: MkConfig,
			expected: map[string]any{
				"name":    "nightly",
				"minimal": true,
				ArgsKey:   []string{"script"},
			},
		},
		{
			name:     "Help For Command",
			args:     []string{"help", "purge"},
			command:  Help,
			expected: map[string]any{ArgsKey: []string{"purge"}},
		},
		{
			name:        "Unknown Command",
			args:        []string{"restore"},
			errContains: "invalid command",
		},
		{
			name:        "Invalid Log Level",
			args:        []string{"-l", "chatty"},
			errContains: "unknown log level",
		},
		{
			name:        "Format Not Supported",
			args:        []string{"list-plugins", "--format", "json"},
			errContains: "invalid format",
		},
		{
			name:        "Purge Without Arguments",
			args:        []string{"purge"},
			errContains: "at least one",
		},
		{
			name:        "Mk Config Without Plugin",
			args:        []string{"mk-config"},
			errContains: "exactly one plugin",
		},
		{
			name:        "Unknown Flag",
			args:        []string{"backup", "--mode=snapshot"},
			errContains: "flag provided but not defined",
		},
		{
			name:        "Purge Flag Not Valid For Backup",
			args:        []string{"backup", "--all"},
			errContains: "flag provided but not defined",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			command, flagMap, err := parse(tc.args, &out)
			if tc.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("expected error containing %q, got %v", tc.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if command != tc.command {
				t.Errorf("expected command %v, got %v", tc.command, command)
			}
			if len(flagMap) != len(tc.expected) {
				t.Errorf("expected %d flags, got %d: %v", len(tc.expected), len(flagMap), flagMap)
			}
			for k, want := range tc.expected {
				got, ok := flagMap[k]
				if !ok {
					t.Errorf("expected flag %q to be set", k)
					continue
				}
				if ws, isSlice := want.([]string); isSlice {
					if !slices.Equal(got.([]string), ws) {
						t.Errorf("flag %q: expected %v, got %v", k, ws, got)
					}
					continue
				}
				if got != want {
					t.Errorf("flag %q: expected %v (%T), got %v (%T)", k, want, want, got, got)
				}
			}
		})
	}
}

func TestParseHelpFlag(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"purge", "--help"}} {
		var out bytes.Buffer
		_, _, err := parse(args, &out)
		if !errors.Is(err, flag.ErrHelp) {
			t.Errorf("%v: expected flag.ErrHelp, got %v", args, err)
		}
		if !strings.Contains(out.String(), "Usage") {
			t.Errorf("%v: expected usage output, got %q", args, out.String())
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	PrintUsage(&out)
	for _, c := range Commands() {
		if !strings.Contains(out.String(), c.String()) {
			t.Errorf("usage does not mention %s", c)
		}
	}
	out.Reset()
	PrintCommandUsage(&out, MkConfig)
	if !strings.Contains(out.String(), "-minimal") {
		t.Errorf("mk-config usage does not list its flags:\n%s", out.String())
	}
}
