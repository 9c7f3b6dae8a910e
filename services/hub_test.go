package services

import "testing"

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Broadcast(Event{Type: "prediction", Data: "x"})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != "prediction" {
				t.Errorf("event type = %q", ev.Type)
			}
		default:
			t.Error("subscriber should have received the event")
		}
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	// Fill the buffer past capacity; Broadcast must not block.
	for i := 0; i < 100; i++ {
		h.Broadcast(Event{Type: "training_job"})
	}

	if len(ch) != cap(ch) {
		t.Errorf("buffered events = %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Broadcasting after unsubscribe must not panic.
	h.Broadcast(Event{Type: "prediction"})
}
