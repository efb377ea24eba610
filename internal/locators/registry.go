// File: internal/locators/registry.go
package locators

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

// ErrLocatorNotFound is returned when a name has no definition.
var ErrLocatorNotFound = errors.New("locator not found")

// Registry serves definitions by name. Overrides recorded after a heal shadow
// the loaded definition for the rest of the run without touching its file.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]schemas.LocatorDefinition
	overrides map[string]schemas.LocatorDefinition
}

func NewRegistry(defs []schemas.LocatorDefinition) (*Registry, error) {
	r := &Registry{
		defs:      make(map[string]schemas.LocatorDefinition, len(defs)),
		overrides: make(map[string]schemas.LocatorDefinition),
	}
	for _, d := range defs {
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLocator, d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Lookup returns the effective definition: the override if one exists,
// otherwise the loaded one.
func (r *Registry) Lookup(name string) (schemas.LocatorDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.overrides[name]; ok {
		return d, nil
	}
	if d, ok := r.defs[name]; ok {
		return d, nil
	}
	return schemas.LocatorDefinition{}, fmt.Errorf("%w: %q", ErrLocatorNotFound, name)
}

// Original returns the file-backed definition, ignoring run overrides.
func (r *Registry) Original(name string) (schemas.LocatorDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.defs[name]; ok {
		return d, nil
	}
	return schemas.LocatorDefinition{}, fmt.Errorf("%w: %q", ErrLocatorNotFound, name)
}

// Override points name at a healed (strategy, value) for the current run.
func (r *Registry) Override(name string, strategy schemas.Strategy, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrLocatorNotFound, name)
	}
	d.Strategy, d.Value = strategy, value
	r.overrides[name] = d
	return nil
}

// Commit records that name's file now holds (strategy, value). Both the
// loaded definition and the run override follow it.
func (r *Registry) Commit(name string, strategy schemas.Strategy, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrLocatorNotFound, name)
	}
	d.Strategy, d.Value = strategy, value
	r.defs[name] = d
	r.overrides[name] = d
	return nil
}

// Overrides lists the healed definitions, sorted by name.
func (r *Registry) Overrides() []schemas.LocatorDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.LocatorDefinition, 0, len(r.overrides))
	for _, d := range r.overrides {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names lists every loaded definition name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
