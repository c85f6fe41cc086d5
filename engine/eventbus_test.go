package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"teaquest/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewLevelUp(core.UserID(1), 2))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewLevelUp(core.UserID(1), 2))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	unsub := bus.Subscribe(core.EventProgressUpdated, func(ctx context.Context, e core.Event) { count++ })
	unsub()
	bus.Publish(context.Background(), core.Event{Type: core.EventProgressUpdated})
	if count != 0 {
		t.Fatalf("handler should not fire after unsubscribe, got %d", count)
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var handled atomic.Int64
	bus.Subscribe(core.EventQuestCompleted, func(ctx context.Context, e core.Event) {
		time.Sleep(time.Millisecond)
		handled.Add(1)
	})

	const n = 64
	for i := 0; i < n; i++ {
		bus.Publish(context.Background(), core.Event{Type: core.EventQuestCompleted})
	}
	bus.Close()

	if got := handled.Load(); got != n {
		t.Fatalf("close must drain the queue, handled %d of %d", got, n)
	}
	if bus.Dropped() != 0 {
		t.Fatalf("no drops expected, got %d", bus.Dropped())
	}
}

func TestEventBusPublishAfterClose(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var handled atomic.Int64
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { handled.Add(1) })
	bus.Close()
	bus.Close() // idempotent

	bus.Publish(context.Background(), core.NewLevelUp(core.UserID(1), 2))
	if handled.Load() != 0 {
		t.Fatal("publish after close must be a no-op")
	}
}
