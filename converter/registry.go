// Converter registry.
//
// Information Hiding:
// - Storage and lookup of converter records hidden
// - Format-pair matching abstracted

package converter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/transmute/model"
)

// Registry holds converters by id.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]Spec),
	}
}

// Register adds a converter. Returns an error for invalid records or duplicate ids.
func (r *Registry) Register(spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := spec.Descriptor.ID()
	if _, exists := r.specs[id]; exists {
		return fmt.Errorf("converter '%s' already registered", id)
	}
	r.specs[id] = spec
	return nil
}

// Get returns a converter by id.
func (r *Registry) Get(id string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, exists := r.specs[id]
	return spec, exists
}

// Find returns the converters that accept from and produce to, sorted by id.
func (r *Registry) Find(from, to string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Spec
	for _, spec := range r.specs {
		if spec.Descriptor.Accepts(from) && spec.Descriptor.Produces(to) {
			matches = append(matches, spec)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Descriptor.ID() < matches[j].Descriptor.ID()
	})
	return matches
}

// Names returns all registered ids in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns descriptors sorted by id.
func (r *Registry) List() []model.Descriptor {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.specs[name].Descriptor)
	}
	return out
}
