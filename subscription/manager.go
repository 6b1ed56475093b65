// Package subscription multiplexes live queries against the remote store.
// It owns the handle table, normalizes adapter notifications into batched
// change-event callbacks, and guarantees that an unsubscribe issued while
// the underlying query is still opening does not leak the handle.
package subscription

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/eventbus"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/metrics"
	"github.com/curalink/syncengine/store"
)

// Callback receives the change events of one underlying store notification.
// Callers always get a batch, never one invocation per event. Callbacks may
// call back into the Manager, including unsubscribing their own id.
type Callback func([]store.ChangeEvent)

var errNilCallback = stderrors.New("subscribe requires a callback")

// Manager opens and tracks live queries.
type Manager struct {
	store   store.Store
	bus     *eventbus.Bus
	metrics *metrics.Registry
	log     *logging.Logger
	idGen   func() string

	mu   sync.Mutex
	subs map[string]*subState
}

// subState tracks one subscription through its lifecycle. Opening the
// underlying query is asynchronous relative to handle-table registration;
// cancelRequested records an unsubscribe that arrived mid-open so the
// handle is closed the moment the open completes.
type subState struct {
	id         string
	collection string

	// deliverMu serializes callback invocations for this subscription so
	// batches never interleave. It is never held while taking mu's critical
	// sections in Unsubscribe, which keeps re-entrant cancellation safe.
	deliverMu sync.Mutex

	mu              sync.Mutex
	active          bool
	handle          store.LiveQueryHandle
	cancelRequested bool
	cb              Callback
}

// NewManager creates a subscription manager.
func NewManager(st store.Store, bus *eventbus.Bus, reg *metrics.Registry, log *logging.Logger, idGen func() string) *Manager {
	return &Manager{
		store:   st,
		bus:     bus,
		metrics: reg,
		log:     log.WithComponent(logging.Component("subscription")),
		idGen:   idGen,
		subs:    make(map[string]*subState),
	}
}

// Subscribe registers a live query for the collection and returns the
// caller's handle for cancellation. The underlying query opens
// asynchronously; open failures are reported on the event bus, never thrown
// here.
func (m *Manager) Subscribe(ctx context.Context, collection string, q store.Query, cb Callback) (string, error) {
	if cb == nil {
		return "", errors.NewValidationError(errors.OpSubscribe, errNilCallback)
	}

	st := &subState{
		id:         m.idGen(),
		collection: collection,
		active:     true,
		cb:         cb,
	}

	m.mu.Lock()
	m.subs[st.id] = st
	m.mu.Unlock()

	m.metrics.ListenerOpened()
	m.log.Debug("opening live query",
		slog.String("subscription_id", st.id),
		slog.String("collection", collection),
	)

	go m.open(ctx, st, q)

	return st.id, nil
}

func (m *Manager) open(ctx context.Context, st *subState, q store.Query) {
	handle, err := m.store.OpenLiveQuery(ctx, st.collection, q,
		func(events []store.ChangeEvent) { m.deliver(st, events) },
		func(err error) { m.reportError(st, err) },
	)

	if err != nil {
		m.mu.Lock()
		delete(m.subs, st.id)
		m.mu.Unlock()

		st.mu.Lock()
		wasActive := st.active
		st.active = false
		st.mu.Unlock()

		if wasActive {
			m.metrics.ListenerClosed()
		}

		m.log.LogError(ctx, err, "live query open failed",
			slog.String("subscription_id", st.id),
			slog.String("collection", st.collection),
		)
		m.bus.Publish(eventbus.SyncErrorEvent{Op: string(errors.OpSubscribe), Err: err})
		return
	}

	st.mu.Lock()
	if st.cancelRequested {
		// Unsubscribe raced the open: release immediately, no leaked
		// listener.
		st.mu.Unlock()
		_ = handle.Close()
		return
	}
	st.handle = handle
	st.mu.Unlock()
}

// deliver forwards one store notification to the caller. The liveness gate
// is checked under the state lock, then the callback runs outside it:
// Unsubscribe retires the state for good (subscriptions are single-use, so
// active is a one-step generation), meaning once it has returned no further
// invocation can pass the gate, while a callback is still free to cancel
// its own subscription.
func (m *Manager) deliver(st *subState, events []store.ChangeEvent) {
	st.deliverMu.Lock()
	defer st.deliverMu.Unlock()

	st.mu.Lock()
	if !st.active {
		st.mu.Unlock()
		return
	}
	cb := st.cb
	st.mu.Unlock()

	m.metrics.AddUpdates(len(events))
	cb(events)
}

// reportError publishes a live-query failure on the bus. One failing feed
// never closes or disturbs the others.
func (m *Manager) reportError(st *subState, err error) {
	st.mu.Lock()
	active := st.active
	st.mu.Unlock()
	if !active {
		return
	}

	wrapped := errors.NewTransportError(errors.OpLiveQuery, "subscription", err)
	m.log.LogError(context.Background(), wrapped, "live query error",
		slog.String("subscription_id", st.id),
		slog.String("collection", st.collection),
	)
	m.bus.Publish(eventbus.SyncErrorEvent{Op: string(errors.OpLiveQuery), Err: wrapped})
}

// Unsubscribe releases the live query behind id. Unknown ids are a no-op;
// calling it twice is safe, and a callback may call it for its own id.
// When it returns, no new callback invocation can start.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	st, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	st.mu.Lock()
	if !st.active {
		st.mu.Unlock()
		return
	}
	st.active = false
	st.cancelRequested = true
	handle := st.handle
	st.mu.Unlock()

	m.metrics.ListenerClosed()

	if handle != nil {
		if err := handle.Close(); err != nil {
			m.bus.Publish(eventbus.SyncErrorEvent{
				Op:  string(errors.OpUnsubscribe),
				Err: errors.NewTransportError(errors.OpUnsubscribe, "subscription", err),
			})
		}
	}
	// If handle was still nil the open is in flight; open() observes
	// cancelRequested and closes it on completion.

	m.log.Debug("unsubscribed", slog.String("subscription_id", id))
}

// UnsubscribeAll releases every open subscription.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Unsubscribe(id)
	}
}

// Active reports how many subscriptions are currently registered.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
