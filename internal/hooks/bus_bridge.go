package hooks

import (
	"context"

	"github.com/sagerun/sage/internal/eventbus"
)

// ForwardBusEvents drains one event-bus subscription and re-emits the tool
// and lifecycle transitions as hook events, so hook handlers (memory
// capture, plugins, discovered HOOK.md hooks) observe the loop without the
// loop knowing about them. Runs until ctx is cancelled or the subscription
// channel closes; callers start it as a goroutine.
func ForwardBusEvents(ctx context.Context, events <-chan eventbus.Event, reg *Registry) {
	for {
		select {
		case <-ctx.Done():
			return
		case busEvent, ok := <-events:
			if !ok {
				return
			}
			if hookEvent := FromBusEvent(busEvent); hookEvent != nil {
				reg.TriggerAsync(ctx, hookEvent)
			}
		}
	}
}

// FromBusEvent maps one bus event to its hook event, or nil for bus events
// with no hook-side meaning (content chunks, thinking transitions).
func FromBusEvent(busEvent eventbus.Event) *Event {
	switch busEvent.Type {
	case eventbus.EventToolExecutionStarted:
		return NewEvent(EventToolCalled, "").
			WithSession(busEvent.SessionID).
			WithTool(busEvent.ToolName).
			WithContext("call_id", busEvent.ToolCallID)

	case eventbus.EventToolExecutionCompleted:
		hookEvent := NewEvent(EventToolCompleted, "").
			WithSession(busEvent.SessionID).
			WithTool(busEvent.ToolName).
			WithContext("call_id", busEvent.ToolCallID).
			WithContext("success", busEvent.ToolSuccess).
			WithContext("duration_ms", busEvent.ToolDuration.Milliseconds())
		if busEvent.ToolError != "" {
			hookEvent.WithContext("error", busEvent.ToolError)
		}
		return hookEvent

	case eventbus.EventSessionEnded:
		return NewEvent(EventSessionEnded, "").WithSession(busEvent.SessionID)

	case eventbus.EventErrorOccurred:
		return NewEvent(EventAgentError, "").
			WithSession(busEvent.SessionID).
			WithContext("error", busEvent.Err)

	default:
		return nil
	}
}
