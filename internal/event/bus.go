package event

import (
	"log/slog"
	"sync"
)

// DefaultQueueSize bounds the undelivered event queue.
const DefaultQueueSize = 1000

// Handler consumes a single event. Handlers run serially on the delivery
// goroutine; a panicking handler is logged and skipped, never fatal.
type Handler func(Event)

// Bus is a bounded asynchronous pub/sub. Publish never blocks: when the
// queue is full the oldest undelivered event is discarded with a warning.
// A single delivery goroutine dispatches events in publish order.
type Bus struct {
	mu       sync.Mutex
	queue    []Event
	limit    int
	closed   bool
	notify   chan struct{}
	done     chan struct{}
	handlers map[Type][]Handler
	all      []Handler
}

func NewBus() *Bus { return NewBusSize(DefaultQueueSize) }

func NewBusSize(limit int) *Bus {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	b := &Bus{
		limit:    limit,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		handlers: make(map[Type][]Handler),
	}
	go b.deliver()
	return b
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], h)
	b.mu.Unlock()
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	b.all = append(b.all, h)
	b.mu.Unlock()
}

// Publish enqueues an event without blocking. On overflow the oldest
// undelivered event is dropped and a warning logged.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.queue) >= b.limit {
		dropped := b.queue[0]
		b.queue = b.queue[1:]
		slog.Warn("event queue full, dropping oldest event",
			"type", dropped.Type, "process", dropped.Process)
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Close stops accepting events, drains what is already queued, and waits
// for the delivery goroutine to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	<-b.done
}

func (b *Bus) deliver() {
	defer close(b.done)
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			if b.closed {
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
			<-b.notify
			continue
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		hs := append([]Handler(nil), b.all...)
		hs = append(hs, b.handlers[ev.Type]...)
		b.mu.Unlock()

		for _, h := range hs {
			b.dispatch(h, ev)
		}
	}
}

// dispatch isolates handler failures so one bad subscriber cannot stall
// delivery to the rest.
func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "type", ev.Type, "error", r)
		}
	}()
	h(ev)
}
