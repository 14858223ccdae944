package registry

import (
	"context"
	"sync"

	"github.com/aretw0/servicemocker/pkg/domain"
)

// HandlerFunc handles one decoded request and returns the reply result.
type HandlerFunc func(ctx context.Context, req domain.Envelope) (any, error)

// Registry maps actions to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Action]HandlerFunc
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.Action]HandlerFunc),
	}
}

// Register adds a handler to the registry.
// If a handler for the same action exists, it is overwritten.
func (r *Registry) Register(action domain.Action, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = fn
}

// Lookup returns the handler for action.
func (r *Registry) Lookup(action domain.Action) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[action]
	return fn, ok
}

// Actions lists the registered actions.
func (r *Registry) Actions() []domain.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]domain.Action, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, a)
	}
	return actions
}
