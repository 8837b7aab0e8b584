package capability

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateName is returned when a capability name is registered twice.
// Registration happens once at startup, so this is a fatal misconfiguration.
var ErrDuplicateName = errors.New("capability name already registered")

// Descriptor is the listing view of a registered capability.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry is the name-to-capability lookup used by the orchestrator.
// Write-once at startup, read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	caps  map[string]Capability
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. Registering a name twice fails with
// ErrDuplicateName.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if name == "" {
		return errors.New("capability name is empty")
	}
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Descriptor{Name: name, Description: r.caps[name].Description()})
	}
	return out
}
