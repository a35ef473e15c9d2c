package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/holland/cmd"
	"github.com/paulschiretz/holland/pkg/flagparse"
)

// silenceOutput discards stdout and stderr for the rest of the test.
func silenceOutput(t *testing.T) {
	t.Helper()
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = devNull, devNull
	t.Cleanup(func() {
		os.Stdout, os.Stderr = origOut, origErr
		devNull.Close()
	})
}

func TestEveryCommandHasAHandler(t *testing.T) {
	for _, c := range flagparse.Commands() {
		if _, ok := commands[c]; !ok {
			t.Errorf("command %s has no handler", c)
		}
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"Version", []string{"version"}, cmd.ExitOK},
		{"Help", []string{"help"}, cmd.ExitOK},
		{"Help for a command", []string{"help", "purge"}, cmd.ExitOK},
		{"Help for an unknown command", []string{"help", "nope"}, cmd.ExitUsage},
		{"Help flag", []string{"-h"}, cmd.ExitOK},
		{"Unknown flag", []string{"--bogus"}, cmd.ExitUsage},
		{"Unknown command", []string{"bogus"}, cmd.ExitUsage},
		{"List commands", []string{"lc"}, cmd.ExitOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			silenceOutput(t)
			err := run(t.Context(), tc.args)
			if got := cmd.ExitCode(err); got != tc.wantCode {
				t.Errorf("exit code = %d, want %d (err: %v)", got, tc.wantCode, err)
			}
		})
	}
}

func TestRunMissingConfig(t *testing.T) {
	silenceOutput(t)
	t.Setenv("HOLLAND_CONFIG", "")
	err := run(t.Context(), []string{"--config", filepath.Join(t.TempDir(), "missing.conf"), "backup"})
	if got := cmd.ExitCode(err); got != cmd.ExitConfig {
		t.Errorf("exit code = %d, want %d (err: %v)", got, cmd.ExitConfig, err)
	}
}
