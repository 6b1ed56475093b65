// Package eventbus provides the process-wide publish/subscribe hub used for
// cross-component signaling inside the sync engine. Signals are a closed set
// of typed events so that consumers can switch exhaustively instead of
// matching on string names.
package eventbus

import (
	"sync"
	"time"
)

// Event is the sealed union of signals carried by the bus.
type Event interface {
	event()
}

// NetworkStatusChanged is published on every connectivity transition.
type NetworkStatusChanged struct {
	Online bool
	At     time.Time
}

// SyncErrorEvent reports an asynchronous failure (subscription open, live
// query error, exhausted queue retries) that must not surface as a panic or
// a synchronous error to unrelated callers.
type SyncErrorEvent struct {
	Op  string
	Err error
}

// ConflictDetected is published when a consistency check finds a version
// mismatch that requires explicit resolution.
type ConflictDetected struct {
	Collection      string
	DocumentID      string
	ExpectedVersion int64
	ActualVersion   int64
}

// ConflictResolved is published after a recorded conflict has been resolved.
type ConflictResolved struct {
	Collection string
	DocumentID string
	Strategy   string
}

// QueueItemDropped is published when a queue item exceeds its retry budget
// and is permanently discarded.
type QueueItemDropped struct {
	ItemID     string
	Collection string
	Err        error
}

// QueueDrained is published after a successful batch commit.
type QueueDrained struct {
	Committed int
	At        time.Time
}

func (NetworkStatusChanged) event() {}
func (SyncErrorEvent) event()       {}
func (ConflictDetected) event()     {}
func (ConflictResolved) event()     {}
func (QueueItemDropped) event()     {}
func (QueueDrained) event()         {}

// Handler receives every published event. Handlers that only care about one
// event kind type-switch and ignore the rest.
type Handler func(Event)

// Bus is a synchronized in-process pub/sub hub. Publish dispatches to the
// handlers registered at publish time; handler panics are recovered so a
// misbehaving consumer cannot take down the engine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	closed   bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a token for Unsubscribe.
func (b *Bus) Subscribe(h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return -1
	}

	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	return id
}

// Unsubscribe removes a handler. Unknown or already-removed tokens are a no-op.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Publish delivers the event to every registered handler on the caller's
// goroutine. Handlers are invoked without the bus lock held, so they may
// subscribe or unsubscribe freely.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, e)
	}
}

func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		// A panicking handler must not crash the publisher.
		_ = recover()
	}()
	h(e)
}

// Close detaches every handler and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[int]Handler)
}
