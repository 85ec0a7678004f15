package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry dispatches events to registered handlers. A handler subscribes
// to an event key - either a bare type ("tool.called") or type:action
// ("command.detected:help") - and handlers fire in priority order. One
// failing or panicking handler never stops the others.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Registration
	byKey  map[string][]*Registration
	logger *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:   make(map[string]*Registration),
		byKey:  make(map[string][]*Registration),
		logger: logger.With("component", "hooks"),
	}
}

// RegisterOption configures a registration.
type RegisterOption func(*Registration)

// WithPriority sets the handler's call-order priority (lower = earlier).
func WithPriority(p Priority) RegisterOption {
	return func(r *Registration) { r.Priority = p }
}

// WithName names the handler for debugging.
func WithName(name string) RegisterOption {
	return func(r *Registration) { r.Name = name }
}

// WithSource records where the handler came from (plugin id, component).
func WithSource(source string) RegisterOption {
	return func(r *Registration) { r.Source = source }
}

// Register subscribes handler to eventKey and returns the registration id.
func (r *Registry) Register(eventKey string, handler Handler, opts ...RegisterOption) string {
	reg := &Registration{
		ID:       uuid.NewString(),
		EventKey: eventKey,
		Handler:  handler,
		Priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	r.byID[reg.ID] = reg
	r.byKey[eventKey] = append(r.byKey[eventKey], reg)
	r.mu.Unlock()

	r.logger.Debug("registered hook", "id", reg.ID, "event_key", eventKey, "name", reg.Name)
	return reg.ID
}

// Unregister removes a registration by id, reporting whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	kept := r.byKey[reg.EventKey][:0]
	for _, candidate := range r.byKey[reg.EventKey] {
		if candidate.ID != id {
			kept = append(kept, candidate)
		}
	}
	r.byKey[reg.EventKey] = kept
	return true
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Registration)
	r.byKey = make(map[string][]*Registration)
}

// Trigger dispatches event to every handler subscribed to its type or
// type:action key, in priority order. The first handler error is returned
// after all handlers have run.
func (r *Registry) Trigger(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	r.mu.RLock()
	matched := append([]*Registration(nil), r.byKey[string(event.Type)]...)
	if event.Action != "" {
		matched = append(matched, r.byKey[string(event.Type)+":"+event.Action]...)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})

	var firstErr error
	for _, reg := range matched {
		if err := r.invoke(ctx, reg, event); err != nil {
			r.logger.Warn("hook handler failed",
				"event", event.Type, "action", event.Action,
				"handler", reg.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// invoke runs one handler, converting a panic into an error so a broken
// hook cannot take the dispatcher down.
func (r *Registry) invoke(ctx context.Context, reg *Registration, event *Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panic: %v", p)
		}
	}()
	return reg.Handler(ctx, event)
}

// TriggerAsync dispatches in a goroutine and returns immediately.
func (r *Registry) TriggerAsync(ctx context.Context, event *Event) {
	go func() {
		if err := r.Trigger(ctx, event); err != nil {
			r.logger.Warn("async hook trigger failed", "event", event.Type, "error", err)
		}
	}()
}

// RegisteredEvents lists the event keys with at least one handler.
func (r *Registry) RegisteredEvents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for key, regs := range r.byKey {
		if len(regs) > 0 {
			keys = append(keys, key)
		}
	}
	return keys
}

// HandlerCount reports how many handlers eventKey has.
func (r *Registry) HandlerCount(eventKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey[eventKey])
}

// GetRegistration looks a registration up by id.
func (r *Registry) GetRegistration(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	return reg, ok
}

// ListRegistrations snapshots eventKey's handlers.
func (r *Registry) ListRegistrations(eventKey string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Registration(nil), r.byKey[eventKey]...)
}
