package eventbus

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(Event{Type: EventSessionStarted, SessionID: "s1"})

	select {
	case ev := <-sub.Events:
		if ev.SessionID != "s1" {
			t.Fatalf("got session id %q, want s1", ev.SessionID)
		}
	default:
		t.Fatal("expected an event, got none")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	b := New(2)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(Event{Type: EventContentChunk, ContentChunk: "a"})
	b.Publish(Event{Type: EventContentChunk, ContentChunk: "b"})
	b.Publish(Event{Type: EventContentChunk, ContentChunk: "c"})

	first := <-sub.Events
	if first.ContentChunk != "b" {
		t.Fatalf("got %q, want b (a should have been evicted)", first.ContentChunk)
	}
}

func TestErrorPhaseIsMonotonic(t *testing.T) {
	b := New(4)
	b.Publish(Event{Type: EventThinkingStarted})
	b.Publish(Event{Type: EventErrorOccurred, Err: "boom"})
	if got := b.Phase(); got != PhaseError {
		t.Fatalf("phase = %v, want PhaseError", got)
	}

	b.Publish(Event{Type: EventThinkingStopped})
	if got := b.Phase(); got != PhaseError {
		t.Fatalf("phase after ThinkingStopped = %v, want PhaseError to persist", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.Events; ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := New(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	b.Publish(Event{Type: EventSessionStarted, SessionID: "multi"})

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case ev := <-sub.Events:
			if ev.SessionID != "multi" {
				t.Fatalf("got %q, want multi", ev.SessionID)
			}
		default:
			t.Fatal("expected an event on every subscriber")
		}
	}
}
