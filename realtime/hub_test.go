package realtime

import (
	"context"
	"testing"

	"teaquest/core"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(4)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewLevelUp(1, 10))
	select {
	case ev := <-ch:
		if ev.Type != core.EventLevelUp {
			t.Fatalf("got %s", ev.Type)
		}
	default:
		t.Fatal("event not delivered")
	}
}

func TestHubTypeFilter(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(4, core.EventLevelUp)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.Event{Type: core.EventProgressUpdated})
	h.Broadcast(context.Background(), core.NewLevelUp(1, 10))

	if got := len(ch); got != 1 {
		t.Fatalf("want 1 buffered event, got %d", got)
	}
	if ev := <-ch; ev.Type != core.EventLevelUp {
		t.Fatalf("filter passed wrong type %s", ev.Type)
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// Broadcasting after unsubscribe must not panic.
	h.Broadcast(context.Background(), core.NewLevelUp(1, 2))
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewLevelUp(1, 2))
	h.Broadcast(context.Background(), core.NewLevelUp(1, 3)) // dropped, buffer full
	if got := len(ch); got != 1 {
		t.Fatalf("want 1 buffered event, got %d", got)
	}
}
