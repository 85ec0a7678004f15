package hooks

import (
	"context"
	"log/slog"
	"sync"
)

// The process-scoped registry: most callers share one hook registry, and
// the REPL installs its own configured instance at startup.
var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the shared registry, creating it lazily on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		if globalRegistry == nil {
			globalRegistry = NewRegistry(nil)
		}
	})
	return globalRegistry
}

// SetGlobalRegistry replaces the shared registry. Call during startup,
// before handlers register.
func SetGlobalRegistry(r *Registry) {
	globalRegistry = r
}

// SetGlobalLogger points the shared registry's logging at logger.
func SetGlobalLogger(logger *slog.Logger) {
	Global().logger = logger.With("component", "hooks")
}

// Register adds a handler to the shared registry.
func Register(eventKey string, handler Handler, opts ...RegisterOption) string {
	return Global().Register(eventKey, handler, opts...)
}

// Unregister removes a handler from the shared registry.
func Unregister(id string) bool {
	return Global().Unregister(id)
}

// Trigger dispatches through the shared registry.
func Trigger(ctx context.Context, event *Event) error {
	return Global().Trigger(ctx, event)
}

// TriggerAsync dispatches asynchronously through the shared registry.
func TriggerAsync(ctx context.Context, event *Event) {
	Global().TriggerAsync(ctx, event)
}

// On registers a handler for an event type on the shared registry.
func On(eventType EventType, handler Handler, opts ...RegisterOption) string {
	return Register(string(eventType), handler, opts...)
}

// OnAction registers a handler for one type:action pair.
func OnAction(eventType EventType, action string, handler Handler, opts ...RegisterOption) string {
	return Register(string(eventType)+":"+action, handler, opts...)
}

// Emit triggers a bare event through the shared registry.
func Emit(ctx context.Context, eventType EventType, action string) error {
	return Trigger(ctx, NewEvent(eventType, action))
}

// EmitAsync triggers a bare event asynchronously.
func EmitAsync(ctx context.Context, eventType EventType, action string) {
	TriggerAsync(ctx, NewEvent(eventType, action))
}
