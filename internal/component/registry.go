package component

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// entry pairs a component's descriptor with its constructor and an
// optional source bundle used by `getsource`.
type entry struct {
	descriptor  Descriptor
	constructor Constructor
	source      string
}

// Registry enumerates available component kinds and resolves a kind name
// to a constructor (spec.md §4.C). Grounded on the connector-plugin
// registry pattern: components are registered once at startup (see
// components.RegisterBuiltins), the registry keeps them sorted by name, and
// lookups are served under a read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	logger  *slog.Logger
}

// NewRegistry creates an empty component registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds a component kind. Re-registering the same name overwrites
// the previous entry (used by tests and by hot-reloading a dev build of a
// single component); production callers should treat collisions as a
// programmer error.
func (r *Registry) Register(desc Descriptor, ctor Constructor, source string) error {
	if desc.Name == "" {
		return fmt.Errorf("component: descriptor name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; !exists {
		r.order = append(r.order, desc.Name)
		sort.Strings(r.order)
	}
	r.entries[desc.Name] = &entry{descriptor: desc, constructor: ctor, source: source}
	r.logger.Info("component registered", "name", desc.Name, "in_ports", len(desc.InPorts), "out_ports", len(desc.OutPorts))
	return nil
}

// List returns every registered descriptor in stable, sorted-by-name
// order, matching the `list` protocol command's iteration requirement.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].descriptor)
	}
	return out
}

// Get returns a single descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, false
	}
	return e.descriptor, true
}

// GetSource returns the source-code bundle registered for a component
// kind. Built-in components that have no bundle return a stub string
// rather than an error — mirrors how the pack's plugin registry treats
// unset optional fields as absent-but-not-fatal.
func (r *Registry) GetSource(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return "", false
	}
	if e.source == "" {
		return fmt.Sprintf("// %s is a built-in component; no source bundle is recorded.\n", name), true
	}
	return e.source, true
}

// Resolve returns the constructor for a kind name, usable by the network
// builder to instantiate processes.
func (r *Registry) Resolve(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.constructor, true
}

// Count returns the number of registered component kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
