package module

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Factory creates a fresh module instance. Every scan gets its own
// instances so no state is shared between scans.
type Factory func() Module

// Config holds configuration for one registered module
type Config struct {
	// Enabled determines if the module takes part in scans by default
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Options are the module's default options
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Info provides read-only information about a registered module
type Info struct {
	Descriptor
	Enabled bool    `json:"enabled"`
	Options Options `json:"options,omitempty"`
}

type entry struct {
	factory  Factory
	desc     Descriptor
	cfg      Config
	defaults Options
}

// Registry is the module table, built once at startup
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *log.Logger
}

// NewRegistry creates an empty module table
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds a module to the table
func (r *Registry) Register(f Factory, cfg Config) error {
	m := f()
	name := m.Name()
	if name == "" {
		return fmt.Errorf("module has no name")
	}
	d := m.Descriptor()
	if d.Name != name {
		return fmt.Errorf("module %s declares descriptor name %q", name, d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("module %s already registered", name)
	}

	r.entries[name] = &entry{factory: f, desc: d, cfg: cfg, defaults: cfg.Options}
	r.logger.Debug("registered module", "module", name, "enabled", cfg.Enabled)
	return nil
}

// SetConfig replaces the configuration of a registered module. Options are
// merged over the defaults given to Register, so earlier overrides do not
// carry over.
func (r *Registry) SetConfig(name string, enabled bool, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("module %s not found", name)
	}
	e.cfg = Config{Enabled: enabled, Options: e.defaults.Merge(opts)}
	return nil
}

// Get returns a registered module's descriptor and configuration
func (r *Registry) Get(name string) (Descriptor, Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, Config{}, false
	}
	return e.desc, e.cfg, true
}

// Names returns every registered module name, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptors returns the descriptors of every registered module
func (r *Registry) Descriptors() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		d, _, _ := r.Get(name)
		out = append(out, d)
	}
	return out
}

// List returns information about every registered module
func (r *Registry) List() []Info {
	names := r.Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		d, cfg, _ := r.Get(name)
		out = append(out, Info{Descriptor: d, Enabled: cfg.Enabled, Options: cfg.Options})
	}
	return out
}

// Select returns fresh instances of the named modules, or of every enabled
// module when names is empty. Unknown names are an error.
func (r *Registry) Select(names []string) ([]Module, error) {
	if len(names) == 0 {
		for _, name := range r.Names() {
			if _, cfg, _ := r.Get(name); cfg.Enabled {
				names = append(names, name)
			}
		}
	}

	out := make([]Module, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		r.mu.RLock()
		e, ok := r.entries[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("module %s not found", name)
		}
		out = append(out, e.factory())
	}
	return out, nil
}
