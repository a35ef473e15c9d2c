package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Write renders c in the format Parse reads. Keys outside of any section
// come first, followed by one [section] block per nested section. Values
// that are nil are omitted.
func (c *Config) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	for _, k := range c.keys {
		if _, ok := c.values[k].(*Config); ok {
			continue
		}
		writeKey(bw, k, c.values[k])
	}

	first := true
	for _, name := range c.Sections() {
		section := c.Section(name)
		if !first || len(c.keys) > len(c.Sections()) {
			bw.WriteString("\n")
		}
		first = false
		fmt.Fprintf(bw, "[%s]\n", name)
		for _, k := range section.keys {
			v := section.values[k]
			if _, ok := v.(*Config); ok {
				return fmt.Errorf("section [%s] contains nested section %q which cannot be written", name, k)
			}
			writeKey(bw, k, v)
		}
	}
	return bw.Flush()
}

func writeKey(w *bufio.Writer, key string, v any) {
	s, ok := FormatValue(v)
	if !ok {
		return
	}
	switch v.(type) {
	case []string, []any:
		// Already quoted item by item.
	default:
		if needsQuoting(s) {
			s = quote(s)
		}
	}
	if s == "" {
		fmt.Fprintf(w, "%s =\n", key)
		return
	}
	fmt.Fprintf(w, "%s = %s\n", key, s)
}

func needsQuoting(s string) bool {
	if s == "" {
		return false
	}
	if strings.TrimSpace(s) != s || strings.ContainsAny(s, "\n\t") {
		return true
	}
	if s[0] == '"' || s[0] == '\'' {
		return true
	}
	return strings.Contains(s, " #") || strings.Contains(s, " ;")
}

// WriteFile writes c to path atomically: the content goes to a temp file in
// the same directory which is synced and renamed over path.
func (c *Config) WriteFile(path string, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpF, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	// Removing fails with ENOENT after a successful rename; that is expected.
	defer os.Remove(tmpF.Name())

	if err := c.Write(tmpF); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpF.Name(), perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpF.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
