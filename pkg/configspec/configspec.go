// Package configspec validates a config.Config against a typed schema.
//
// A spec has the same shape as a config, but every value is a check
// expression:
//
//	[holland:backup]
//	plugin          = string
//	backups-to-keep = integer(min=0, default=1)
//	retention-count = integer(min=0, aliasof="backups-to-keep")
//
// Validate walks spec and config in parallel, coerces each value through
// its check, fills defaults and collects every problem into a single
// ValidateError.
package configspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulschiretz/holland/pkg/config"
	"github.com/paulschiretz/holland/pkg/plog"
)

// Spec is a parsed configspec.
type Spec struct {
	tree *config.Config
}

// New wraps an already parsed spec tree.
func New(tree *config.Config) *Spec {
	return &Spec{tree: tree}
}

// Parse parses a configspec from text.
func Parse(text string) (*Spec, error) {
	tree, err := config.ParseString(text)
	if err != nil {
		return nil, err
	}
	return &Spec{tree: tree}, nil
}

// MustParse is Parse for specs compiled into the binary.
func MustParse(text string) *Spec {
	s, err := Parse(text)
	if err != nil {
		panic(fmt.Sprintf("configspec: %v", err))
	}
	return s
}

// Tree exposes the raw spec, e.g. for generating example configs.
func (s *Spec) Tree() *config.Config {
	return s.tree
}

// Merge returns a spec containing s's entries overlaid with other's.
func (s *Spec) Merge(other *Spec) *Spec {
	tree := s.tree.Clone()
	if other != nil {
		tree.Merge(other.tree)
	}
	return &Spec{tree: tree}
}

// FieldError is a single validation failure.
type FieldError struct {
	Path   string
	Reason string
}

// ValidateError collects every failure found in one validation pass.
type ValidateError struct {
	Errors []FieldError
}

func (e *ValidateError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Errors[0].Path, e.Errors[0].Reason)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration (%d errors):", len(e.Errors))
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, "\n  %s: %s", fe.Path, fe.Reason)
	}
	return b.String()
}

func (e *ValidateError) add(path, reason string) {
	e.Errors = append(e.Errors, FieldError{Path: path, Reason: reason})
}

// Options tune Validate.
type Options struct {
	// IgnoreUnknownSections keeps sections that the configspec does not describe
	// without reporting them.
	IgnoreUnknownSections bool
	// StrictKeys reports unknown keys inside known sections as errors
	// instead of logging a warning.
	StrictKeys bool
}

// Validate checks cfg against s and returns a coerced copy. cfg itself is
// not modified. Unknown keys and sections are preserved in the result.
func (s *Spec) Validate(cfg *config.Config, opts Options) (*config.Config, error) {
	if cfg == nil {
		cfg = config.New()
	}
	out := cfg.Clone()
	verr := &ValidateError{}
	s.validateSection(s.tree, out, "", opts, verr, true)
	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return out, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (s *Spec) validateSection(spec, cfg *config.Config, path string, opts Options, verr *ValidateError, root bool) {
	parsed := make(map[string]*Check, spec.Len())
	for _, key := range spec.Keys() {
		if spec.Section(key) != nil {
			continue
		}
		expr := spec.String(key)
		check, err := ParseCheck(expr)
		if err != nil {
			verr.add(joinPath(path, key), err.Error())
			continue
		}
		parsed[key] = check
	}

	// Aliases: an old name supplies the value for its canonical key.
	for key, check := range parsed {
		if check.AliasOf == "" {
			continue
		}
		aliasVal, hasAlias := cfg.Get(key)
		if !hasAlias {
			continue
		}
		if cfg.Has(check.AliasOf) {
			plog.Warn("Both an option and its alias are set; using the canonical option",
				"option", joinPath(path, check.AliasOf), "alias", joinPath(path, key))
			continue
		}
		cfg.Set(check.AliasOf, aliasVal)
	}

	for _, key := range spec.Keys() {
		keyPath := joinPath(path, key)

		if sub := spec.Section(key); sub != nil {
			v, exists := cfg.Get(key)
			if exists {
				if _, isSection := v.(*config.Config); !isSection {
					verr.add(keyPath, "expected a section, found a value")
					continue
				}
			}
			s.validateSection(sub, cfg.EnsureSection(key), keyPath, opts, verr, false)
			continue
		}

		check, ok := parsed[key]
		if !ok || check.AliasOf != "" {
			continue
		}
		s.validateValue(cfg, key, keyPath, check, verr)
	}

	// Mirror canonical values back to their aliases.
	for key, check := range parsed {
		if check.AliasOf == "" {
			continue
		}
		if v, ok := cfg.Get(check.AliasOf); ok {
			cfg.Set(key, v)
		}
	}

	for _, key := range cfg.Keys() {
		if spec.Has(key) {
			continue
		}
		v, _ := cfg.Get(key)
		if _, isSection := v.(*config.Config); isSection {
			if root && !opts.IgnoreUnknownSections {
				verr.add(joinPath(path, key), "unknown section")
			}
			continue
		}
		if opts.StrictKeys {
			verr.add(joinPath(path, key), "unknown option")
			continue
		}
		plog.Warn("Unknown option in configuration", "option", joinPath(path, key), "file", cfg.Path)
	}
}

// defaultValue returns the raw default of check. Unquoted integer defaults
// are handed over as text when the check takes a base, so default=0077 with
// base=8 reads like the same value in a config file would.
func defaultValue(check *Check) any {
	n, ok := check.Default.(int64)
	if !ok || check.Name != "integer" {
		return check.Default
	}
	if _, hasBase := param(check.Args, check.Kwargs, "base", 2); !hasBase {
		return n
	}
	return strconv.FormatInt(n, 10)
}

func (s *Spec) validateValue(cfg *config.Config, key, keyPath string, check *Check, verr *ValidateError) {
	fn, ok := lookupCheck(check.Name)
	if !ok {
		verr.add(keyPath, fmt.Sprintf("unknown check %q", check.Name))
		return
	}

	raw, exists := cfg.Get(key)
	if exists && raw == nil {
		// None from an earlier pass; treat it like an absent value.
		exists = false
	}
	if exists {
		if _, isSection := raw.(*config.Config); isSection {
			verr.add(keyPath, "expected a value, found a section")
			return
		}
	}
	if !exists {
		if !check.HasDefault {
			verr.add(keyPath, "missing required value")
			return
		}
		if check.Default == nil {
			cfg.Set(key, nil)
			return
		}
		raw = defaultValue(check)
	}

	coerced, err := fn(raw, check.Args, check.Kwargs)
	if err != nil {
		verr.add(keyPath, err.Error())
		return
	}
	cfg.Set(key, coerced)
}
