package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/paulschiretz/holland/pkg/buildinfo"
	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/configspec"
	"github.com/paulschiretz/holland/pkg/plog"
	"github.com/paulschiretz/holland/pkg/plugin"
)

// ManifestExt is the file extension of plugin manifests.
const ManifestExt = ".plugin"

var manifestSpec = configspec.MustParse(`
[plugin]
name           = string(min=1)
summary        = string(default='')
description    = string(default='')
author         = string(default='')
version        = string(default='0')
api-version    = integer(min=1, default=1)
command        = string(min=1)
estimated-size = string(default='0')
output         = string(default='backup.out')
aliases        = force_list(default=list())
`)

// Manifest describes a backup plugin implemented by an external command.
type Manifest struct {
	Path     string
	Info     plugin.Info
	Defaults Defaults
}

// ReadManifest parses and validates one manifest file.
func ReadManifest(path string) (*Manifest, error) {
	cfg, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}
	valid, err := manifestSpec.Validate(cfg, configspec.Options{StrictKeys: true})
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	sec := valid.Section("plugin")
	name := sec.String("name")
	if strings.ContainsAny(name, "/\\ \t") {
		return nil, fmt.Errorf("invalid manifest %s: bad plugin name %q", path, name)
	}
	return &Manifest{
		Path: path,
		Info: plugin.Info{
			Name:        name,
			Summary:     sec.String("summary"),
			Description: sec.String("description"),
			Author:      sec.String("author"),
			Version:     sec.String("version"),
			APIVersion:  int(sec.Int("api-version")),
			Aliases:     sec.Strings("aliases"),
		},
		Defaults: Defaults{
			Command:       sec.String("command"),
			EstimatedSize: sec.String("estimated-size"),
			Output:        sec.String("output"),
		},
	}, nil
}

// Factory returns a plugin factory for the manifest. The plugin reads its
// options from the section named after the plugin.
func (m *Manifest) Factory() plugin.Factory {
	return func() (plugin.Plugin, error) {
		if m.Info.APIVersion > buildinfo.APIVersion {
			return nil, fmt.Errorf("plugin %s needs api version %d, holland provides %d",
				m.Info.Name, m.Info.APIVersion, buildinfo.APIVersion)
		}
		return newPlugin(m.Info, m.Info.Name, m.Defaults), nil
	}
}

// LoadManifests registers every manifest found in dirs with reg. Missing
// directories are skipped. A manifest that cannot be parsed is still
// registered under its file name, with a factory that fails, so selecting
// it reports an import error instead of an unknown plugin.
func LoadManifests(reg *plugin.Registry, dirs []string) error {
	var errs []error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			plog.Debug("Plugin directory does not exist", "path", dir)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ManifestExt {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := registerManifest(reg, path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func registerManifest(reg *plugin.Registry, path string) error {
	m, err := ReadManifest(path)
	if err != nil {
		plog.Warn("Could not load plugin manifest", "path", path, "error", err)
		name := strings.TrimSuffix(filepath.Base(path), ManifestExt)
		return reg.Register(plugin.GroupBackup, name, func() (plugin.Plugin, error) {
			return nil, err
		})
	}
	aliases := slices.DeleteFunc(slices.Clone(m.Info.Aliases), func(a string) bool { return a == m.Info.Name })
	plog.Debug("Registering manifest plugin", "name", m.Info.Name, "path", path)
	return reg.Register(plugin.GroupBackup, m.Info.Name, m.Factory(), aliases...)
}
