// Package config implements holland's ordered, INI-like configuration model.
//
// A Config is an ordered mapping from keys to values. A value is either a
// scalar (a raw string straight from the parser, or a typed value after
// validation) or a nested *Config section. Sections and keys are unique;
// setting an existing key keeps its original position.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// Config is an ordered section of key/value pairs.
type Config struct {
	// Path is the file the config was read from, for diagnostics. Empty for
	// configs built in memory or parsed from a string.
	Path string

	keys   []string
	values map[string]any
}

// New returns an empty Config.
func New() *Config {
	return &Config{values: make(map[string]any)}
}

// NormalizeKey lower-cases a key and rewrites underscores to dashes so
// "Backups_To_Keep" and "backups-to-keep" address the same option.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
}

// NormalizeSection lower-cases a section name. Underscores are kept because
// section names are often user chosen hook or backupset names.
func NormalizeSection(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Keys returns the keys in insertion order.
func (c *Config) Keys() []string {
	return slices.Clone(c.keys)
}

// Len returns the number of keys, sections included.
func (c *Config) Len() int {
	return len(c.keys)
}

// Has reports whether key is present.
func (c *Config) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Get returns the raw value stored under key.
func (c *Config) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores v under key. Existing keys keep their position.
func (c *Config) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Delete removes key. Missing keys are ignored.
func (c *Config) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == key })
}

// Section returns the nested section stored under name, or nil when the key
// is missing or holds a scalar.
func (c *Config) Section(name string) *Config {
	if s, ok := c.values[name].(*Config); ok {
		return s
	}
	return nil
}

// EnsureSection returns the section under name, creating it when missing.
// A scalar stored under name is replaced.
func (c *Config) EnsureSection(name string) *Config {
	if s := c.Section(name); s != nil {
		return s
	}
	s := New()
	s.Path = c.Path
	c.Set(name, s)
	return s
}

// Sections returns the names of all nested sections in order.
func (c *Config) Sections() []string {
	var names []string
	for _, k := range c.keys {
		if _, ok := c.values[k].(*Config); ok {
			names = append(names, k)
		}
	}
	return names
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := New()
	out.Path = c.Path
	for _, k := range c.keys {
		out.Set(k, cloneValue(c.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Config:
		return t.Clone()
	case []string:
		return slices.Clone(t)
	case []any:
		return slices.Clone(t)
	}
	return v
}

// Merge copies every key of other into c. On collision other wins, except
// when both sides hold a section, in which case the sections are merged
// recursively.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		ov := other.values[k]
		if otherSec, ok := ov.(*Config); ok {
			if cs := c.Section(k); cs != nil {
				cs.Merge(otherSec)
				continue
			}
		}
		c.Set(k, cloneValue(ov))
	}
}

// Meld copies keys of other that c does not have yet. Existing keys are
// never overwritten; sections present on both sides are melded recursively.
func (c *Config) Meld(other *Config) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		ov := other.values[k]
		cv, exists := c.values[k]
		if !exists {
			c.Set(k, cloneValue(ov))
			continue
		}
		cs, cIsSection := cv.(*Config)
		otherSec, oIsSection := ov.(*Config)
		if cIsSection && oIsSection {
			cs.Meld(otherSec)
		}
	}
}

// String returns the value under key formatted as a string.
// Missing keys and nil values yield "".
func (c *Config) String(key string) string {
	v, ok := c.values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	s, _ := FormatValue(v)
	return s
}

// Bool returns a validated boolean. Raw strings are interpreted leniently.
func (c *Config) Bool(key string) bool {
	switch v := c.values[key].(type) {
	case bool:
		return v
	case string:
		b, _ := ParseBool(v)
		return b
	}
	return false
}

// Int returns a validated integer. Raw strings are parsed in base 10.
func (c *Config) Int(key string) int64 {
	switch v := c.values[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}

// Float returns a validated float.
func (c *Config) Float(key string) float64 {
	switch v := c.values[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

// Strings returns a validated list. A raw string is split as a
// comma-separated list.
func (c *Config) Strings(key string) []string {
	switch v := c.values[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := FormatValue(item)
			out = append(out, s)
		}
		return out
	case string:
		return SplitList(v)
	}
	return nil
}

// ParseBool interprets the boolean spellings accepted in config files.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "on", "1":
		return true, nil
	case "no", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}

// FormatValue renders a scalar the way it is written to a config file.
// The second result is false for nil, which callers treat as "omit".
func FormatValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		if t {
			return "yes", true
		}
		return "no", true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case slog.Level:
		return levelName(t), true
	case []string:
		return JoinList(t), true
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, _ := FormatValue(item)
			items = append(items, s)
		}
		return JoinList(items), true
	case fmt.Stringer:
		return t.String(), true
	}
	return fmt.Sprint(v), true
}

func levelName(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "debug"
	case l < slog.LevelInfo:
		return "notice"
	case l == slog.LevelInfo:
		return "info"
	case l <= slog.LevelWarn:
		return "warning"
	case l <= slog.LevelError:
		return "error"
	}
	return "critical"
}
