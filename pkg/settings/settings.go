// Package settings loads the global holland.conf and the backupset files
// that live next to it:
//
//	/etc/holland/holland.conf
//	/etc/holland/backupsets/<name>.conf
//	/etc/holland/providers/<plugin>.conf
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/plog"
)

const (
	// DefaultConfigPath is used when neither --config nor HOLLAND_CONFIG is set.
	DefaultConfigPath = "/etc/holland/holland.conf"
	// EnvConfig names the environment variable overriding DefaultConfigPath.
	EnvConfig = "HOLLAND_CONFIG"

	backupsetDir = "backupsets"
	providerDir  = "providers"
	configExt    = ".conf"
)

// Spec validates holland.conf.
var Spec = configspec.MustParse(`
[holland]
backup-directory = string(default="/var/spool/holland")
backupsets       = force_list(default=list())
umask            = integer(min=0, max=511, base=8, default="0007")
path             = string(default=None)
tmpdir           = string(default=None)
plugin-dirs      = force_list(default=list())

[logging]
filename         = string(default=None)
level            = log_level(default="info")
format           = option("text", "json", default="text")
max-size-mb      = integer(min=1, default=10)
max-backups      = integer(min=0, default=5)
`)

// Logging is the validated [logging] section.
type Logging struct {
	Filename   string
	Level      slog.Level
	Format     string
	MaxSizeMB  int
	MaxBackups int
}

// Global is the validated global configuration.
type Global struct {
	// Path is the file the configuration was read from, empty for defaults.
	Path string

	BackupDirectory string
	Backupsets      []string
	Umask           int
	SearchPath      string
	TmpDir          string
	PluginDirs      []string
	Logging         Logging

	// Raw is the validated config tree.
	Raw *config.Config
}

// ResolvePath picks the global config path: the flag, then HOLLAND_CONFIG,
// then DefaultConfigPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads and validates the global config at path.
func Load(path string) (*Global, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	raw, err := config.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	g, err := fromConfig(raw)
	if err != nil {
		return nil, err
	}
	g.Path = abs
	return g, nil
}

// Default returns the global config built from the configspec defaults alone.
func Default() *Global {
	g, err := fromConfig(config.New())
	if err != nil {
		panic(fmt.Sprintf("settings: invalid built-in defaults: %v", err))
	}
	return g
}

func fromConfig(raw *config.Config) (*Global, error) {
	validated, err := Spec.Validate(raw, configspec.Options{IgnoreUnknownSections: true})
	if err != nil {
		return nil, err
	}
	h := validated.Section("holland")
	l := validated.Section("logging")

	level := slog.LevelInfo
	if v, ok := l.Get("level"); ok {
		if lv, ok := v.(slog.Level); ok {
			level = lv
		}
	}

	backupDir := h.String("backup-directory")
	if !filepath.IsAbs(backupDir) {
		return nil, &configspec.ValidateError{Errors: []configspec.FieldError{
			{Path: "holland.backup-directory", Reason: fmt.Sprintf("%q is not an absolute path", backupDir)},
		}}
	}

	return &Global{
		BackupDirectory: filepath.Clean(backupDir),
		Backupsets:      h.Strings("backupsets"),
		Umask:           int(h.Int("umask")),
		SearchPath:      h.String("path"),
		TmpDir:          h.String("tmpdir"),
		PluginDirs:      h.Strings("plugin-dirs"),
		Logging: Logging{
			Filename:   l.String("filename"),
			Level:      level,
			Format:     l.String("format"),
			MaxSizeMB:  int(l.Int("max-size-mb")),
			MaxBackups: int(l.Int("max-backups")),
		},
		Raw: validated,
	}, nil
}

// SetupLogging attaches the [logging] file sink, if one is configured.
func (g *Global) SetupLogging() error {
	if g.Logging.Filename == "" {
		return nil
	}
	return plog.SetFile(plog.FileOptions{
		Filename:   g.Logging.Filename,
		Format:     g.Logging.Format,
		Level:      g.Logging.Level,
		MaxSizeMB:  g.Logging.MaxSizeMB,
		MaxBackups: g.Logging.MaxBackups,
	})
}

// configDir is where backupsets/ and providers/ live.
func (g *Global) configDir() string {
	if g.Path == "" {
		return filepath.Dir(DefaultConfigPath)
	}
	return filepath.Dir(g.Path)
}

// BackupsetDir returns the directory holding backupset files.
func (g *Global) BackupsetDir() string {
	return filepath.Join(g.configDir(), backupsetDir)
}

// BackupsetPath returns the file of the named backupset. A name ending in
// .conf is taken as a path.
func (g *Global) BackupsetPath(name string) string {
	if strings.HasSuffix(name, configExt) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(g.BackupsetDir(), name+configExt)
}

// ProviderPath returns the provider defaults file for a plugin.
func (g *Global) ProviderPath(plugin string) string {
	return filepath.Join(g.configDir(), providerDir, plugin+configExt)
}

// BackupsetName derives a backupset name from a name or file path.
func BackupsetName(nameOrPath string) string {
	return strings.TrimSuffix(filepath.Base(nameOrPath), configExt)
}

// LoadBackupset reads a backupset file and melds in its plugin's provider
// file, if present. The result is not validated; the job validates it
// against the plugin's spec.
func (g *Global) LoadBackupset(nameOrPath string) (string, *config.Config, error) {
	name := BackupsetName(nameOrPath)
	path := g.BackupsetPath(nameOrPath)
	cfg, err := config.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return name, nil, fmt.Errorf("backupset %s: no config at %s: %w", name, path, err)
		}
		return name, nil, err
	}

	if sec := cfg.Section("holland:backup"); sec != nil {
		if plugin := sec.String("plugin"); plugin != "" {
			provider := g.ProviderPath(plugin)
			pcfg, err := config.ReadFile(provider)
			switch {
			case err == nil:
				plog.Debug("Melding provider config", "backupset", name, "provider", provider)
				cfg.Meld(pcfg)
			case errors.Is(err, os.ErrNotExist):
			default:
				return name, nil, fmt.Errorf("backupset %s: provider %s: %w", name, provider, err)
			}
		}
	}
	return name, cfg, nil
}

// ListBackupsets returns the names of every backupset file, sorted.
func (g *Global) ListBackupsets() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(g.BackupsetDir(), "*"+configExt))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, BackupsetName(m))
	}
	slices.Sort(names)
	return names, nil
}
