package projections

import (
	"context"
	"fmt"

	"github.com/Bikxs/skafu-core/domain"
)

// HandlerFunc applies one event to a read model
type HandlerFunc func(ctx context.Context, event domain.Event) error

// Registry maps event types to handlers. Registration happens once during
// startup; lookups after that are read-only. An event type with no handler
// and no Default is an explicit error, never a silent skip.
type Registry struct {
	handlers map[string]HandlerFunc

	// Default, when set, receives every event type without a dedicated
	// handler
	Default HandlerFunc
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to an event type, replacing any previous binding
func (r *Registry) Register(eventType string, handler HandlerFunc) *Registry {
	r.handlers[eventType] = handler
	return r
}

// HandlerFor resolves the handler for an event type
func (r *Registry) HandlerFor(eventType string) (HandlerFunc, error) {
	if handler, ok := r.handlers[eventType]; ok {
		return handler, nil
	}
	if r.Default != nil {
		return r.Default, nil
	}
	return nil, fmt.Errorf("%w: no projection handler for %s", domain.ErrUnknownEventType, eventType)
}
