package plugin

import (
	"fmt"
	"sync"
)

type registryKey struct {
	name string
	kind Kind
}

// Registry resolves (name, kind) to an implementation. Lookups return a
// boolean instead of an error; only the caller knows whether a missing
// plugin is fatal.
type Registry struct {
	mu      sync.RWMutex
	entries map[registryKey]Plugin
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[registryKey]Plugin)}
}

// Register adds a plugin, validating its identity first.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("register: nil plugin")
	}
	if p.Name() == "" {
		return fmt.Errorf("register: plugin has no name")
	}
	switch p.Kind() {
	case KindDeduplicator, KindValidator, KindReporter:
	default:
		return fmt.Errorf("register %q: unknown plugin kind %q", p.Name(), p.Kind())
	}

	key := registryKey{name: p.Name(), kind: p.Kind()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("register %q: %s already registered", p.Name(), p.Kind())
	}
	r.entries[key] = p
	return nil
}

// MustRegister panics on registration failure; for wiring built-ins at startup.
func (r *Registry) MustRegister(p Plugin) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Lookup resolves a plugin by name and kind.
func (r *Registry) Lookup(name string, kind Kind) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[registryKey{name: name, kind: kind}]
	return p, ok
}

// Deduplicator resolves a deduplicator by name.
func (r *Registry) Deduplicator(name string) (Deduplicator, bool) {
	p, ok := r.Lookup(name, KindDeduplicator)
	if !ok {
		return nil, false
	}
	d, ok := p.(Deduplicator)
	return d, ok
}

// Validator resolves a validator by name.
func (r *Registry) Validator(name string) (Validator, bool) {
	p, ok := r.Lookup(name, KindValidator)
	if !ok {
		return nil, false
	}
	v, ok := p.(Validator)
	return v, ok
}

// Reporter resolves a reporter by name.
func (r *Registry) Reporter(name string) (Reporter, bool) {
	p, ok := r.Lookup(name, KindReporter)
	if !ok {
		return nil, false
	}
	rep, ok := p.(Reporter)
	return rep, ok
}
