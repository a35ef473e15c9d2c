//go:build !windows

package settings

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/paulschiretz/holland/pkg/plog"
)

// ApplyEnvironment sets the umask, PATH and TMPDIR from [holland]. It is
// called once at startup and returns the previous umask.
func (g *Global) ApplyEnvironment() (int, error) {
	old := unix.Umask(g.Umask)
	plog.Debug("Set umask", "umask", g.Umask, "previous", old)
	if g.SearchPath != "" {
		if err := os.Setenv("PATH", g.SearchPath); err != nil {
			return old, err
		}
		plog.Debug("Set PATH", "path", g.SearchPath)
	}
	if g.TmpDir != "" {
		if err := os.Setenv("TMPDIR", g.TmpDir); err != nil {
			return old, err
		}
		plog.Debug("Set TMPDIR", "tmpdir", g.TmpDir)
	}
	return old, nil
}
