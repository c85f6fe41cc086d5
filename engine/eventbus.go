package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"teaquest/core"
)

// DispatchMode selects how Publish hands events to handlers.
type DispatchMode int

const (
	// DispatchSync runs handlers inline on the publisher's goroutine.
	DispatchSync DispatchMode = iota
	// DispatchAsync queues events for a worker pool; Publish never blocks
	// the game operation that produced the event.
	DispatchAsync
)

const (
	asyncQueueSize = 2048
	asyncWorkers   = 4
)

type handlerEntry struct {
	id int64
	fn func(context.Context, core.Event)
}

// EventBus fans game events (completions, progress, level-ups, card grants)
// out to registered handlers. Close stops intake and waits until every
// queued event has been dispatched, so realtime/webhook/analytics consumers
// see completions that happened right before shutdown.
type EventBus struct {
	mode     DispatchMode
	mu       sync.RWMutex
	handlers map[core.EventType][]handlerEntry
	nextID   int64
	queue    chan core.Event
	workers  sync.WaitGroup
	closed   bool
	dropped  atomic.Int64
}

func NewEventBus(mode DispatchMode) *EventBus {
	b := &EventBus{
		mode:     mode,
		handlers: make(map[core.EventType][]handlerEntry),
	}
	if mode == DispatchAsync {
		b.queue = make(chan core.Event, asyncQueueSize)
		for i := 0; i < asyncWorkers; i++ {
			b.workers.Add(1)
			go b.work()
		}
	}
	return b
}

func (b *EventBus) work() {
	defer b.workers.Done()
	for ev := range b.queue {
		b.dispatch(context.Background(), ev)
	}
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe func.
func (b *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[typ] = append(b.handlers[typ], handlerEntry{id: id, fn: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[typ]
		for i, e := range entries {
			if e.id == id {
				b.handlers[typ] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers an event to the subscribers of its type. In async mode a
// full queue drops the event rather than stalling the game operation; drops
// are counted.
func (b *EventBus) Publish(ctx context.Context, ev core.Event) {
	if b.mode == DispatchSync {
		b.dispatch(ctx, ev)
		return
	}
	// The read lock also orders Publish against Close: the queue is only
	// closed once no publisher holds it.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded due to a full async queue.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

// Close stops intake and blocks until the workers have dispatched every
// event still in the queue. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	if b.mode == DispatchAsync {
		close(b.queue)
		b.workers.Wait()
	}
}

func (b *EventBus) dispatch(ctx context.Context, ev core.Event) {
	b.mu.RLock()
	entries := b.handlers[ev.Type]
	fns := make([]func(context.Context, core.Event), len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}
