// Package plugin holds the contract between the backup core and the
// plugins that do the actual work, plus the registry that maps
// (group, name) pairs to plugin constructors.
//
// Plugins register themselves from an init function:
//
//	func init() {
//		plugin.Register(plugin.GroupBackup, "example", New)
//	}
//
// and the binary pulls them in with a blank import.
package plugin

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/paulschiretz/holland/pkg/plog"
)

// Plugin groups.
const (
	GroupBackup = "holland.backup"
	GroupHooks  = "holland.hooks"
)

// Info describes a plugin.
type Info struct {
	Name        string   `json:"name" yaml:"name"`
	Summary     string   `json:"summary" yaml:"summary"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty"`
	Version     string   `json:"version" yaml:"version"`
	APIVersion  int      `json:"api_version" yaml:"api_version"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Plugin is implemented by every plugin.
type Plugin interface {
	PluginInfo() Info
}

// Factory constructs a fresh plugin instance.
type Factory func() (Plugin, error)

type entry struct {
	name    string
	factory Factory
	// alias entries resolve to another registration and are hidden from Names.
	alias bool
}

// Registry maps (group, name) to plugin factories.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]*entry
	order  map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[string]*entry),
		order:  make(map[string][]string),
	}
}

// Register adds a factory under name and any aliases. Registering a name
// twice in one group is an error.
func (r *Registry) Register(group, name string, factory Factory, aliases ...string) error {
	if group == "" || name == "" {
		return errors.New("plugin group and name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("plugin %s/%s: nil factory", group, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.groups[group]
	if entries == nil {
		entries = make(map[string]*entry)
		r.groups[group] = entries
	}
	for _, n := range append([]string{name}, aliases...) {
		if _, exists := entries[n]; exists {
			return fmt.Errorf("plugin %s/%s is already registered", group, n)
		}
	}
	entries[name] = &entry{name: name, factory: factory}
	r.order[group] = append(r.order[group], name)
	for _, a := range aliases {
		entries[a] = &entry{name: name, factory: factory, alias: true}
	}
	return nil
}

// Load returns the factory registered under (group, name).
func (r *Registry) Load(group, name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.groups[group][name]
	if !ok {
		return nil, &NotFoundError{Group: group, Name: name}
	}
	return e.factory, nil
}

// New loads and instantiates a plugin. Constructor failures are reported
// as *ImportError so callers can tell them apart from runtime errors.
func (r *Registry) New(group, name string) (p Plugin, err error) {
	factory, err := r.Load(group, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, &ImportError{Group: group, Name: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	p, err = factory()
	if err != nil {
		var ie *ImportError
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, &ImportError{Group: group, Name: name, Err: err}
	}
	if p == nil {
		return nil, &ImportError{Group: group, Name: name, Err: errors.New("factory returned no plugin")}
	}
	return p, nil
}

// Names returns the primary names registered in group, in registration order.
func (r *Registry) Names(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order[group])
}

// Iterate instantiates every plugin of a group in name order. Plugins that
// fail to load are logged and skipped.
func (r *Registry) Iterate(group string) iter.Seq2[string, Plugin] {
	return func(yield func(string, Plugin) bool) {
		names := r.Names(group)
		slices.Sort(names)
		for _, name := range names {
			p, err := r.New(group, name)
			if err != nil {
				plog.Warn("Skipping plugin that failed to load", "group", group, "plugin", name, "error", err)
				continue
			}
			if !yield(name, p) {
				return
			}
		}
	}
}

// DefaultRegistry is the process-wide registry populated by plugin init functions.
var DefaultRegistry = NewRegistry()

// Register adds a factory to DefaultRegistry and panics on conflict, as
// registrations happen at init time.
func Register(group, name string, factory Factory, aliases ...string) {
	if err := DefaultRegistry.Register(group, name, factory, aliases...); err != nil {
		panic(err)
	}
}

// Load looks up a factory in DefaultRegistry.
func Load(group, name string) (Factory, error) {
	return DefaultRegistry.Load(group, name)
}

// New instantiates a plugin from DefaultRegistry.
func New(group, name string) (Plugin, error) {
	return DefaultRegistry.New(group, name)
}

// Iterate walks a group of DefaultRegistry.
func Iterate(group string) iter.Seq2[string, Plugin] {
	return DefaultRegistry.Iterate(group)
}
