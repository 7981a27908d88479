// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named properties.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu         sync.RWMutex
	properties map[string]*Property
	hooks      []RegistrationHook
}

// RegistrationHook is called when a property is registered (true) or
// unregistered (false).
type RegistrationHook func(name string, property *Property, registered bool)

// NewRegistry creates a new empty registry.
//
// Example:
//
//	registry := eval.NewRegistry()
//	examples.Register(registry)
func NewRegistry() *Registry {
	return &Registry{
		properties: make(map[string]*Property),
	}
}

// Register adds a property under its Name.
//
// Outputs:
//   - error: ErrNilProperty, ErrInvalidProperty or ErrAlreadyRegistered.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Register(p *Property) error {
	if p == nil {
		return ErrNilProperty
	}
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.properties[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, p.Name)
	}
	r.properties[p.Name] = p

	for _, hook := range r.hooks {
		hook(p.Name, p, true)
	}
	return nil
}

// MustRegister registers a property and panics on error. Use it during
// initialization only.
func (r *Registry) MustRegister(p *Property) {
	if err := r.Register(p); err != nil {
		panic(fmt.Sprintf("eval: failed to register property: %v", err))
	}
}

// Unregister removes the named property.
//
// Outputs:
//   - error: ErrNotFound if not registered.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.properties[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.properties, name)

	for _, hook := range r.hooks {
		hook(name, p, false)
	}
	return nil
}

// Get retrieves a property by name.
func (r *Registry) Get(name string) (*Property, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.properties[name]
	return p, ok
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.properties))
	for name := range r.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the properties carrying any of tags, sorted by name. An
// empty tags list selects everything.
func (r *Registry) Select(tags []string) []*Property {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Property
	for _, p := range r.properties {
		if p.HasAnyTag(tags) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered properties.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.properties)
}

// AddHook adds a registration hook.
func (r *Registry) AddHook(hook RegistrationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}
