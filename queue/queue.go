// Package queue buffers local mutations that cannot be applied immediately
// and drains them in bounded, serialized batches once connectivity allows.
// Items are committed in enqueue order; failed batches are retried with
// exponential backoff and dropped to the dead-letter store once their retry
// budget is spent.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/curalink/syncengine/deadletter"
	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/eventbus"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/metrics"
	"github.com/curalink/syncengine/store"
)

// Item is one buffered mutation. Mutated only by the queue itself
// (RetryCount); discarded on successful commit or when retries run out.
type Item struct {
	ID         string
	Collection string
	Operation  store.OpKind
	Payload    map[string]interface{}
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
}

// BackoffStrategy defines how long to wait before the next drain attempt
// after a failed batch.
type BackoffStrategy interface {
	// NextDelay returns the delay for the given attempt count
	NextDelay(attempt int) time.Duration

	// Reset resets the strategy after a successful commit
	Reset()
}

// ExponentialBackoff implements baseDelay * Multiplier^attempt, capped.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= eb.Multiplier
	}

	result := time.Duration(float64(eb.InitialDelay) * multiplier)
	if result > eb.MaxDelay {
		result = eb.MaxDelay
	}
	return result
}

func (eb *ExponentialBackoff) Reset() {}

// Options configures the queue.
type Options struct {
	// BatchSize is the maximum number of items per commit (default 10)
	BatchSize int

	// MaxRetries is the per-item retry budget (default 3)
	MaxRetries int

	// DrainInterval is the safety-net timer period (default 5s)
	DrainInterval time.Duration

	// DrainTimeout bounds one drain pass (default 30s)
	DrainTimeout time.Duration

	// Backoff strategy applied after a failed batch
	Backoff BackoffStrategy

	// Clock is injectable for tests
	Clock func() time.Time

	// IDGen produces item ids when the caller supplies none
	IDGen func() string

	// IsOnline gates immediate drain attempts; nil means always online
	IsOnline func() bool
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = 5 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 30 * time.Second
	}
	if o.Backoff == nil {
		o.Backoff = &ExponentialBackoff{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.IsOnline == nil {
		o.IsOnline = func() bool { return true }
	}
}

// Queue is the offline sync queue.
type Queue struct {
	store   store.Store
	bus     *eventbus.Bus
	metrics *metrics.Registry
	dead    deadletter.Store
	log     *logging.Logger
	opts    Options

	mu        sync.Mutex
	items     []*Item
	draining  bool
	stopped   bool
	notBefore time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// New creates a queue. Call Start to arm the safety-net ticker.
func New(st store.Store, bus *eventbus.Bus, reg *metrics.Registry, dead deadletter.Store, log *logging.Logger, opts Options) *Queue {
	opts.setDefaults()
	if dead == nil {
		dead = deadletter.Discard{}
	}
	return &Queue{
		store:   st,
		bus:     bus,
		metrics: reg,
		dead:    dead,
		log:     log.WithComponent(logging.Component("queue")),
		opts:    opts,
		stop:    make(chan struct{}),
	}
}

// Start launches the periodic drain ticker. Safe to call once.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.opts.DrainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				if q.opts.IsOnline() {
					q.drainWithTimeout()
				}
			}
		}
	}()
}

// Stop halts the ticker and waits for it and any in-flight background drain
// to exit. Buffered items remain in memory; they are not flushed.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.stop)
	})
	q.wg.Wait()
}

// Enqueue appends a mutation to the tail of the queue and, when online,
// immediately attempts a drain in the background.
func (q *Queue) Enqueue(collection string, op store.OpKind, payload map[string]interface{}, id string) (*Item, error) {
	if collection == "" {
		return nil, errors.NewValidationError(errors.OpEnqueue, fmt.Errorf("empty collection"))
	}
	switch op {
	case store.OpCreate, store.OpUpdate, store.OpDelete:
	default:
		return nil, errors.NewValidationError(errors.OpEnqueue, fmt.Errorf("unknown operation %q", op))
	}
	if op != store.OpDelete && len(payload) == 0 {
		return nil, errors.NewValidationError(errors.OpEnqueue, fmt.Errorf("%s requires a payload", op))
	}
	if id == "" {
		if q.opts.IDGen == nil {
			return nil, errors.NewValidationError(errors.OpEnqueue, fmt.Errorf("no id and no id generator"))
		}
		id = q.opts.IDGen()
	}

	item := &Item{
		ID:         id,
		Collection: collection,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: q.opts.Clock(),
		MaxRetries: q.opts.MaxRetries,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	size := len(q.items)
	q.mu.Unlock()

	q.metrics.SetQueueSize(size)
	q.log.Debug("mutation enqueued",
		slog.String("item_id", item.ID),
		slog.String("collection", collection),
		slog.String("operation", string(op)),
		slog.Int("queue_size", size),
	)

	if q.opts.IsOnline() {
		q.Kick()
	}

	return item, nil
}

// Kick schedules a background drain attempt. It returns immediately; the
// backoff window and the single-drain guard are honored by the drain itself.
// After Stop, kicks are ignored; Stop waits for any drain already in flight.
func (q *Queue) Kick() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		q.drainWithTimeout()
	}()
}

func (q *Queue) drainWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.DrainTimeout)
	defer cancel()
	_ = q.drain(ctx, false)
}

// ForceSync drains the queue immediately, bypassing the backoff window.
// It returns the commit error of the batch that stopped the drain, if any.
func (q *Queue) ForceSync(ctx context.Context) error {
	return q.drain(ctx, true)
}

// drain is serialized: at most one drain runs at a time, so a batch can
// never be committed twice. Retried items go to the tail, keeping younger
// items from being starved beyond their own batch.
func (q *Queue) drain(ctx context.Context, force bool) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	if !force && q.opts.Clock().Before(q.notBefore) {
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return nil
		}
		n := q.opts.BatchSize
		if n > len(q.items) {
			n = len(q.items)
		}
		batch := make([]*Item, n)
		copy(batch, q.items[:n])
		q.items = q.items[n:]
		q.mu.Unlock()

		ops := make([]store.WriteOp, len(batch))
		for i, it := range batch {
			ops[i] = store.WriteOp{
				Collection: it.Collection,
				DocumentID: it.ID,
				Op:         it.Operation,
				Payload:    it.Payload,
			}
		}

		err := q.store.CommitBatch(ctx, ops)
		now := q.opts.Clock()

		if err == nil {
			q.mu.Lock()
			size := len(q.items)
			q.notBefore = time.Time{}
			q.mu.Unlock()

			q.opts.Backoff.Reset()
			q.metrics.MarkSynced(now)
			q.metrics.SetQueueSize(size)
			q.bus.Publish(eventbus.QueueDrained{Committed: len(batch), At: now})
			q.log.Info("batch committed",
				slog.Int("items", len(batch)),
				slog.Int("remaining", size),
			)
			continue
		}

		q.handleFailedBatch(ctx, batch, err, now)
		return errors.NewTransportError(errors.OpDrain, "queue", err)
	}
}

func (q *Queue) handleFailedBatch(ctx context.Context, batch []*Item, cause error, now time.Time) {
	var requeue []*Item
	var dropped []*Item
	maxRetry := 0

	for _, it := range batch {
		it.RetryCount++
		if it.RetryCount < it.MaxRetries {
			requeue = append(requeue, it)
			if it.RetryCount > maxRetry {
				maxRetry = it.RetryCount
			}
		} else {
			dropped = append(dropped, it)
		}
	}

	q.mu.Lock()
	q.items = append(q.items, requeue...)
	size := len(q.items)
	if len(requeue) > 0 {
		q.notBefore = now.Add(q.opts.Backoff.NextDelay(maxRetry))
	}
	q.mu.Unlock()

	q.metrics.SetQueueSize(size)
	q.log.LogError(ctx, cause, "batch commit failed",
		slog.Int("requeued", len(requeue)),
		slog.Int("dropped", len(dropped)),
	)

	for _, it := range dropped {
		q.dropItem(ctx, it, cause, now)
	}
}

// dropItem permanently discards an item whose retries are exhausted. The
// drop is never silent: it is persisted to the dead-letter store and
// surfaced on the event bus.
func (q *Queue) dropItem(ctx context.Context, it *Item, cause error, now time.Time) {
	exhausted := errors.NewExhaustedRetriesError(cause, map[string]interface{}{
		"item_id":    it.ID,
		"collection": it.Collection,
		"operation":  string(it.Operation),
		"retries":    it.RetryCount,
	})

	if err := q.dead.Record(ctx, deadletter.Entry{
		ID:         it.ID,
		Collection: it.Collection,
		Operation:  string(it.Operation),
		Payload:    it.Payload,
		Retries:    it.RetryCount,
		EnqueuedAt: it.EnqueuedAt,
		FailedAt:   now,
		Cause:      cause.Error(),
	}); err != nil {
		q.log.LogError(ctx, err, "dead-letter record failed", slog.String("item_id", it.ID))
	}

	q.metrics.ItemDropped()
	q.log.LogError(ctx, exhausted, "queue item dropped after final retry",
		slog.String("item_id", it.ID),
		slog.String("collection", it.Collection),
	)
	q.bus.Publish(eventbus.SyncErrorEvent{Op: string(errors.OpDrain), Err: exhausted})
	q.bus.Publish(eventbus.QueueItemDropped{ItemID: it.ID, Collection: it.Collection, Err: exhausted})
}

// Size reports the number of buffered items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
