package job

import (
	"fmt"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/plugin"
	"github.com/paulschiretz/holland/pkg/retention"
)

// Section is the backupset section read by the core.
const Section = "holland:backup"

// Spec validates the [holland:backup] section of every backupset. It is
// merged with the plugin's own spec before validation.
var Spec = configspec.MustParse(`
[holland:backup]
plugin                = string
backups-to-keep       = integer(min=0, default=1)
retention-count       = integer(min=0, aliasof="backups-to-keep")
auto-purge-failures   = boolean(default=yes)
purge-policy          = option("manual", "before-backup", "after-backup", default="after-backup")
estimated-size-factor = float(min=0, default=1.0)
hooks                 = force_list(default=list())
before-backup-command = string(default=None)
after-backup-command  = string(default=None)
failed-backup-command = string(default=None)
`)

// Settings is the validated [holland:backup] section.
type Settings struct {
	Plugin            string
	Retention         retention.Plan
	AutoPurgeFailures bool
	EstimateFactor    float64
	Hooks             []string

	BeforeBackupCommand string
	AfterBackupCommand  string
	FailedBackupCommand string
}

// SettingsFromConfig reads Settings from a validated backupset config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	sec := cfg.Section(Section)
	if sec == nil {
		return Settings{}, fmt.Errorf("missing [%s] section", Section)
	}
	policy, err := retention.ParsePolicy(sec.String("purge-policy"))
	if err != nil {
		return Settings{}, err
	}
	autoPurge := sec.Bool("auto-purge-failures")
	return Settings{
		Plugin: sec.String("plugin"),
		Retention: retention.Plan{
			Policy:        policy,
			BackupsToKeep: int(sec.Int("backups-to-keep")),
			PurgeFailures: autoPurge,
			Metrics:       true,
		},
		AutoPurgeFailures:   autoPurge,
		EstimateFactor:      sec.Float("estimated-size-factor"),
		Hooks:               sec.Strings("hooks"),
		BeforeBackupCommand: sec.String("before-backup-command"),
		AfterBackupCommand:  sec.String("after-backup-command"),
		FailedBackupCommand: sec.String("failed-backup-command"),
	}, nil
}

// PluginName returns the plugin named by an unvalidated backupset config.
func PluginName(cfg *config.Config) (string, error) {
	name := ""
	if sec := cfg.Section(Section); sec != nil {
		name = sec.String("plugin")
	}
	if name == "" {
		return "", &configspec.ValidateError{Errors: []configspec.FieldError{
			{Path: Section + ".plugin", Reason: "missing required value"},
		}}
	}
	return name, nil
}

// LoadPlugin instantiates the backup plugin a backupset config asks for.
func LoadPlugin(reg *plugin.Registry, cfg *config.Config) (plugin.BackupPlugin, error) {
	name, err := PluginName(cfg)
	if err != nil {
		return nil, err
	}
	p, err := reg.New(plugin.GroupBackup, name)
	if err != nil {
		return nil, err
	}
	bp, ok := p.(plugin.BackupPlugin)
	if !ok {
		return nil, &plugin.ImportError{Group: plugin.GroupBackup, Name: name, Err: fmt.Errorf("%T is not a backup plugin", p)}
	}
	return bp, nil
}
