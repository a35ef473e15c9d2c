package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/paulschiretz/holland/pkg/flagparse"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/plugins/script"
	"github.com/paulschiretz/holland/pkg/settings"
)

// loadGlobal resolves and loads holland.conf, applies the console log
// settings and registers the manifest plugins. Commands that can run
// without a config pass required=false and get the built-in defaults when
// the file is missing.
func loadGlobal(flagMap map[string]any, required bool) (*settings.Global, error) {
	flagPath, _ := flagMap["config"].(string)
	path := settings.ResolvePath(flagPath)

	g, err := settings.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !required && flagPath == "":
		plog.Debug("No global config found, using defaults", "path", path)
		g = settings.Default()
	default:
		return nil, configError(fmt.Errorf("could not load global config %s: %w", path, err))
	}

	setupConsole(flagMap, g)
	if err := script.LoadManifests(plugin.DefaultRegistry, g.PluginDirs); err != nil {
		plog.Warn("Some plugin manifests could not be registered", "error", err)
	}
	return g, nil
}

// setupConsole applies -log-level, -verbose and -quiet over [logging] level.
func setupConsole(flagMap map[string]any, g *settings.Global) {
	level := g.Logging.Level
	if s, ok := flagMap["log-level"].(string); ok {
		level = plog.LevelFromString(s)
	}
	if verbose, _ := flagMap["verbose"].(bool); verbose {
		level = plog.LevelDebug
	}
	plog.SetLevel(level)
	if quiet, _ := flagMap["quiet"].(bool); quiet {
		plog.SetQuiet(true)
	}
}

// startRun prepares the process for a command that changes the spool: the
// [holland] environment and the log file.
func startRun(g *settings.Global) error {
	if _, err := g.ApplyEnvironment(); err != nil {
		return fmt.Errorf("could not apply [holland] environment: %w", err)
	}
	if err := g.SetupLogging(); err != nil {
		return configError(fmt.Errorf("could not open log file: %w", err))
	}
	return nil
}

func boolFlag(flagMap map[string]any, name string) bool {
	v, _ := flagMap[name].(bool)
	return v
}

func stringFlag(flagMap map[string]any, name string) string {
	v, _ := flagMap[name].(string)
	return v
}

func positional(flagMap map[string]any) []string {
	v, _ := flagMap[flagparse.ArgsKey].([]string)
	return v
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
