package eventbus

import (
	"sync"

	"github.com/sagerun/sage/internal/observability"
)

// Phase tracks the loop's last-known high-level state for snapshot readers
// (a UI that attaches mid-session and wants "what's happening right now"
// without replaying history). Once Error is set, the end events
// (ThinkingStopped, ContentStreamEnded, ToolExecutionCompleted,
// UserInputReceived) keep it, since the error is what ended the activity,
// not a benign completion; a new start event or SessionStarted leaves it.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseThinking
	PhaseStreaming
	PhaseExecutingTool
	PhaseAwaitingInput
	PhaseError
)

// Bus is a single-writer, multi-reader event stream. Publish is meant to be
// called from exactly one goroutine (the execution loop); Subscribe may be
// called from any number of reader goroutines.
//
// Each subscriber gets its own bounded channel. A slow subscriber that falls
// behind has its oldest unread event dropped rather than blocking the
// writer - the loop must never stall because a UI paused rendering.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int

	phase Phase
}

// New builds a Bus whose per-subscriber channels hold up to bufferSize
// events before the oldest is dropped to make room for the newest.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscription is a handle returned by Subscribe; call Unsubscribe when the
// reader is done to release its channel.
type Subscription struct {
	id      int
	Events  <-chan Event
	bus     *Bus
}

// Unsubscribe closes and removes this subscription's channel.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new reader and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch
	return &Subscription{id: id, Events: ch, bus: b}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish fans ev out to every current subscriber and updates the bus's
// snapshot Phase. Never blocks: a full subscriber channel has its oldest
// entry evicted to make room.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.phase = nextPhase(b.phase, ev.Type)
	subs := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	dropped := false
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			dropped = true
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	observability.RecordBusEvent(dropped)

	if adapter := observability.Adapter(); adapter != nil {
		adapter.Publish(ev)
	}
}

// Phase returns the bus's current snapshot phase.
func (b *Bus) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func nextPhase(current Phase, t EventType) Phase {
	switch t {
	case EventThinkingStarted:
		return PhaseThinking
	case EventContentStreamStarted:
		return PhaseStreaming
	case EventToolExecutionStarted:
		return PhaseExecutingTool
	case EventUserInputRequested:
		return PhaseAwaitingInput
	case EventErrorOccurred:
		return PhaseError
	case EventThinkingStopped, EventContentStreamEnded, EventToolExecutionCompleted, EventUserInputReceived:
		if current == PhaseError {
			return PhaseError
		}
		return PhaseIdle
	case EventSessionStarted:
		return PhaseIdle
	case EventSessionEnded:
		return current
	default:
		return current
	}
}
