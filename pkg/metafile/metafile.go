// Package metafile reads and writes backup.conf, the per-store file holding
// the merged backupset configuration plus the runtime metadata of the run.
package metafile

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/util"
)

// MetaFileName is the name of the metadata file inside a store.
const MetaFileName = "backup.conf"

// Section is the config section the runtime metadata is recorded under.
const Section = "holland:backup"

// Content holds the runtime metadata of one run.
type Content struct {
	Plugin         string
	UUID           string
	HollandVersion string
	StartTime      time.Time
	StopTime       time.Time
	EstimatedSize  int64
	OnDiskSize     int64
	Failed         bool
}

// Write records cfg and content into dirPath/backup.conf. cfg is not
// modified; the metadata keys replace any same-named keys of its
// [holland:backup] section. The file is replaced atomically so a crash
// leaves either the previous or the new version.
func Write(dirPath string, cfg *config.Config, content *Content) error {
	out := config.New()
	if cfg != nil {
		out = cfg.Clone()
	}
	sec := out.EnsureSection(Section)
	sec.Set("plugin", content.Plugin)
	if content.UUID != "" {
		sec.Set("uuid", content.UUID)
	}
	if content.HollandVersion != "" {
		sec.Set("holland-version", content.HollandVersion)
	}
	sec.Set("start-time", epoch(content.StartTime))
	if content.StopTime.IsZero() {
		sec.Delete("stop-time")
	} else {
		sec.Set("stop-time", epoch(content.StopTime))
	}
	sec.Set("estimated-size", content.EstimatedSize)
	sec.Set("on-disk-size", content.OnDiskSize)
	sec.Set("failed", content.Failed)

	metaFilePath := filepath.Join(dirPath, MetaFileName)
	// Group-writable: backup.conf is part of the backup data.
	if err := out.WriteFile(metaFilePath, util.UserGroupWritableFilePerms); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	return nil
}

// Read parses dirPath/backup.conf. It returns the full config and the
// decoded metadata. A missing file is reported with an error satisfying
// os.IsNotExist.
func Read(dirPath string) (*config.Config, Content, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	cfg, err := config.ReadFile(metaFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Content{}, err
		}
		return nil, Content{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}

	sec := cfg.Section(Section)
	if sec == nil {
		return nil, Content{}, fmt.Errorf("metafile %s has no [%s] section", metaFilePath, Section)
	}
	if !sec.Has("failed") {
		return nil, Content{}, fmt.Errorf("metafile %s has no failed flag", metaFilePath)
	}
	failed, err := config.ParseBool(sec.String("failed"))
	if err != nil {
		return nil, Content{}, fmt.Errorf("metafile %s: %w", metaFilePath, err)
	}

	content := Content{
		Plugin:         sec.String("plugin"),
		UUID:           sec.String("uuid"),
		HollandVersion: sec.String("holland-version"),
		StartTime:      fromEpoch(sec.Float("start-time")),
		StopTime:       fromEpoch(sec.Float("stop-time")),
		EstimatedSize:  sec.Int("estimated-size"),
		OnDiskSize:     sec.Int("on-disk-size"),
		Failed:         failed,
	}
	return cfg, content, nil
}

// IsFailed reports whether a store must be treated as failed: its
// metadata says so, or the metadata is missing or unreadable.
func IsFailed(dirPath string) bool {
	_, content, err := Read(dirPath)
	if err != nil {
		return true
	}
	return content.Failed
}

func epoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	// Microsecond precision keeps the written value short.
	return float64(t.UnixMicro()) / 1e6
}

func fromEpoch(f float64) time.Time {
	if f == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
}
