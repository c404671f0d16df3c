// Package action provides the whitelisted action execution layer.
// Jobs name an action; the dispatcher resolves it from a closed registry and
// executes it with JSON parameters, converting every fault into a recorded
// failure.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Action is one named, whitelisted unit of work a job can trigger.
// Implementations decode their own parameters from JSON, apply their own
// execution timeout, and return a textual result or an error.
type Action interface {
	// Name returns the action identifier jobs refer to (e.g. "server_status")
	Name() string

	// Execute runs the action. The returned string is the human-readable
	// result; it is truncated by the dispatcher before storage.
	Execute(ctx context.Context, params json.RawMessage) (string, error)
}

// Registry manages the closed set of actions by name.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	actions map[string]Action
	mu      sync.RWMutex
}

// NewRegistry creates an empty action registry
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register adds an action using its name.
// Panics if an action is already registered with that name.
func (r *Registry) Register(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.actions[name]; exists {
		panic(fmt.Sprintf("action already registered: %s", name))
	}
	r.actions[name] = a
}

// Get retrieves the action for a name. Returns nil if not registered.
func (r *Registry) Get(name string) Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// Has checks if an action is registered for a name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.actions[name]
	return exists
}

// Names returns all registered action names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
