package agent

import (
	"fmt"
	"sync"
)

// Registry is a flat id-indexed table of agent definitions. Handoffs resolve
// through it by id, so mutually-referencing agents never form a cycle in
// memory. After loading completes the registry is read-only and may be shared
// freely across sessions.
type Registry struct {
	agents map[string]Definition
	mu     sync.RWMutex
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Definition),
	}
}

// Register adds a definition. Duplicate ids are rejected.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid agent definition: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[def.ID]; exists {
		return fmt.Errorf("agent already registered: %s", def.ID)
	}

	r.agents[def.ID] = def
	return nil
}

// Get retrieves a definition by id.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.agents[id]
	if !exists {
		return Definition{}, fmt.Errorf("agent not found: %s", id)
	}
	return def, nil
}

// Exists checks whether an agent id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[id]
	return exists
}

// List returns all registered definitions.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.agents))
	for _, def := range r.agents {
		defs = append(defs, def)
	}
	return defs
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// ValidateHandoffs checks that every handoff target of every agent resolves
// to a registered id. Self-handoffs and cyclic chains are legal; dangling
// targets are not.
func (r *Registry) ValidateHandoffs() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, def := range r.agents {
		for _, target := range def.Handoffs {
			if _, ok := r.agents[target]; !ok {
				return fmt.Errorf("agent %s hands off to unknown agent %s", id, target)
			}
		}
	}
	return nil
}
