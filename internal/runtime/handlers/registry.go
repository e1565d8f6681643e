// Package handlers maps event kinds onto typed business handlers and hosts
// the middleware chain wrapped around their execution.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
)

// Delivery is one entry handed to a handler: the broker entry id plus the
// decoded envelope.
type Delivery struct {
	EntryID  string
	Envelope *envelope.Envelope
}

// HandlerFunc processes one delivered entry. Because delivery is
// at-least-once, implementations must tolerate being called twice for the
// same entry id or business key without double-applying effects.
type HandlerFunc func(ctx context.Context, delivery Delivery) error

// Middleware wraps a HandlerFunc with cross-cutting behaviour.
type Middleware func(HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(h HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// Registry maps event kinds to handlers. Kinds absent from the registry
// are acknowledged and ignored by the consumer loop, so producers may
// introduce kinds a consumer does not yet understand.
type Registry struct {
	mu     sync.RWMutex
	byKind map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[string]HandlerFunc)}
}

// Register binds a handler to an event kind. Registering the same kind
// twice is an error: silently replacing a handler hides wiring mistakes.
func (r *Registry) Register(kind string, handler HandlerFunc) error {
	if kind == "" {
		return errspkg.ErrEventKindRequired
	}
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKind[kind]; exists {
		return fmt.Errorf("streamflow: handler for kind %q already registered", kind)
	}
	r.byKind[kind] = handler
	return nil
}

// Lookup returns the handler for the kind, if registered.
func (r *Registry) Lookup(kind string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.byKind[kind]
	return handler, ok
}

// Kinds returns the registered event kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
