package syncengine

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/curalink/syncengine/consistency"
	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/eventbus"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/metrics"
	"github.com/curalink/syncengine/network"
	"github.com/curalink/syncengine/queue"
	"github.com/curalink/syncengine/store"
	"github.com/curalink/syncengine/subscription"
)

// Engine is the composition root. It owns the event bus, wires the
// subscription manager, offline queue, consistency checker and network
// monitor together, and exposes the whole surface behind one handle.
//
// Construct with New; an Engine is ready for use when New returns and must
// be released with Dispose.
type Engine struct {
	store   store.Store
	bus     *eventbus.Bus
	metrics *metrics.Registry
	log     *logging.Logger

	subs    *subscription.Manager
	queue   *queue.Queue
	checker *consistency.Checker
	monitor *network.Monitor

	cancel      context.CancelFunc
	busSub      int
	disposeOnce sync.Once
}

// New builds and starts an Engine against the given store adapter and
// connectivity source.
func New(st store.Store, src network.ConnectivitySource, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.NewValidationError(errors.OpSubscribe, stderrors.New("engine requires a store adapter"))
	}
	if src == nil {
		return nil, errors.NewValidationError(errors.OpSubscribe, stderrors.New("engine requires a connectivity source"))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	bus := eventbus.New()
	reg := metrics.NewRegistry()
	log := cfg.log

	e := &Engine{
		store:   st,
		bus:     bus,
		metrics: reg,
		log:     log,
	}

	e.monitor = network.NewMonitor(src, st, bus, reg, log)
	e.subs = subscription.NewManager(st, bus, reg, log, cfg.idGen)
	e.queue = queue.New(st, bus, reg, cfg.dead, log, queue.Options{
		BatchSize:     cfg.batchSize,
		MaxRetries:    cfg.maxRetries,
		DrainInterval: cfg.drainInterval,
		DrainTimeout:  cfg.drainTimeout,
		Backoff:       cfg.backoff,
		Clock:         cfg.clock,
		IDGen:         cfg.idGen,
		IsOnline:      e.monitor.IsOnline,
	})
	e.checker = consistency.NewChecker(st, bus, reg, log, cfg.clock)

	// Regaining connectivity triggers an immediate drain attempt.
	e.busSub = bus.Subscribe(func(ev eventbus.Event) {
		if n, ok := ev.(eventbus.NetworkStatusChanged); ok && n.Online {
			e.queue.Kick()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.monitor.Start(ctx)
	e.queue.Start()

	return e, nil
}

// SubscribeTo opens a live query against a collection. The callback fires
// once per store notification with the batch of normalized changes. The
// returned id feeds Unsubscribe.
func (e *Engine) SubscribeTo(ctx context.Context, collection string, q store.Query, cb subscription.Callback) (string, error) {
	return e.subs.Subscribe(ctx, collection, q, cb)
}

// Unsubscribe tears down one live query. Idempotent; after it returns the
// callback will not fire again.
func (e *Engine) Unsubscribe(id string) {
	e.subs.Unsubscribe(id)
}

// UnsubscribeAll tears down every live query.
func (e *Engine) UnsubscribeAll() {
	e.subs.UnsubscribeAll()
}

// EnqueueMutation records a local write. The mutation always goes through
// the queue so ordering is preserved; when online a drain is kicked off
// immediately.
func (e *Engine) EnqueueMutation(collection string, op store.OpKind, payload map[string]interface{}, id string) (*queue.Item, error) {
	return e.queue.Enqueue(collection, op, payload, id)
}

// ForceSync drains the queue now, ignoring any backoff window. It blocks
// until the pass completes or ctx expires.
func (e *Engine) ForceSync(ctx context.Context) error {
	return e.queue.ForceSync(ctx)
}

// QueueSize reports how many mutations are waiting to sync.
func (e *Engine) QueueSize() int {
	return e.queue.Size()
}

// CheckConsistency compares an expected document version against the
// store. A mismatch is recorded as a pending conflict and surfaced on the
// bus.
func (e *Engine) CheckConsistency(ctx context.Context, collection, id string, expectedVersion int64) (consistency.Check, error) {
	return e.checker.Check(ctx, collection, id, expectedVersion)
}

// ResolveConflict applies a strategy to a previously recorded conflict.
func (e *Engine) ResolveConflict(ctx context.Context, collection, id string, strategy consistency.Strategy, mergeData map[string]interface{}) error {
	return e.checker.Resolve(ctx, collection, id, strategy, mergeData)
}

// PendingConflicts lists conflicts awaiting resolution.
func (e *Engine) PendingConflicts() []consistency.Check {
	return e.checker.Pending()
}

// IsOnline reports the last observed connectivity state.
func (e *Engine) IsOnline() bool {
	return e.monitor.IsOnline()
}

// Metrics returns a point-in-time snapshot of engine counters.
func (e *Engine) Metrics() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// OnNetworkChange registers a connectivity listener. The returned func
// detaches it.
func (e *Engine) OnNetworkChange(fn func(online bool)) func() {
	return e.monitor.OnStatusChange(fn)
}

// OnSyncError registers a listener for surfaced sync failures.
func (e *Engine) OnSyncError(fn func(op string, err error)) func() {
	id := e.bus.Subscribe(func(ev eventbus.Event) {
		if se, ok := ev.(eventbus.SyncErrorEvent); ok {
			fn(se.Op, se.Err)
		}
	})
	return func() { e.bus.Unsubscribe(id) }
}

// OnConflict registers a listener for detected version conflicts.
func (e *Engine) OnConflict(fn func(eventbus.ConflictDetected)) func() {
	id := e.bus.Subscribe(func(ev eventbus.Event) {
		if c, ok := ev.(eventbus.ConflictDetected); ok {
			fn(c)
		}
	})
	return func() { e.bus.Unsubscribe(id) }
}

// ResetOfflineState disables the network flag, clears the adapter's local
// cache, then re-enables the network. Live queries and queued mutations
// survive; only cached reads are discarded.
func (e *Engine) ResetOfflineState(ctx context.Context) error {
	log := e.log.WithOperation(logging.Operation(errors.OpReset))
	if err := e.store.SetNetworkEnabled(ctx, false); err != nil {
		return errors.NewStorageError(errors.OpReset, err)
	}
	if err := e.store.ClearLocalCache(ctx); err != nil {
		// Try to restore the flag before reporting.
		_ = e.store.SetNetworkEnabled(ctx, e.monitor.IsOnline())
		return errors.NewStorageError(errors.OpReset, err)
	}
	if err := e.store.SetNetworkEnabled(ctx, e.monitor.IsOnline()); err != nil {
		return errors.NewStorageError(errors.OpReset, err)
	}
	log.Info("offline state reset")
	return nil
}

// Dispose releases everything the Engine owns: live queries, the queue
// ticker, the network monitor and the bus. Idempotent.
func (e *Engine) Dispose() {
	e.disposeOnce.Do(func() {
		e.subs.UnsubscribeAll()
		e.queue.Stop()
		e.monitor.Stop()
		e.cancel()
		e.bus.Unsubscribe(e.busSub)
		e.bus.Close()
	})
}

// WaitForDrain is a test and shutdown helper that polls until the queue is
// empty or ctx expires.
func (e *Engine) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.queue.Size() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
