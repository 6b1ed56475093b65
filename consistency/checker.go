// Package consistency performs the optimistic-concurrency
// read-compare-resolve cycle: fetch the authoritative document version,
// compare it to the version the caller expected, record the mismatch, and
// apply an explicit resolution strategy.
package consistency

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/eventbus"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/metrics"
	"github.com/curalink/syncengine/store"
)

// Strategy selects how a version conflict is resolved.
type Strategy string

const (
	StrategyServerWins Strategy = "server_wins"
	StrategyClientWins Strategy = "client_wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

// UpdatedAtField carries the write timestamp set on client_wins and merge
// resolutions, per the store's document conventions.
const UpdatedAtField = "updatedAt"

// Check is the outcome of one consistency check.
type Check struct {
	Collection      string
	DocumentID      string
	ExpectedVersion int64
	ActualVersion   int64
	Resolved        bool
	Strategy        Strategy
	CheckedAt       time.Time
}

// Checker detects and resolves write/write conflicts. Recorded conflicts
// live in memory until resolved; the engine keeps no conflict history.
type Checker struct {
	store   store.Store
	bus     *eventbus.Bus
	metrics *metrics.Registry
	log     *logging.Logger
	clock   func() time.Time

	mu      sync.Mutex
	pending map[string]*Check
}

// NewChecker creates a checker.
func NewChecker(st store.Store, bus *eventbus.Bus, reg *metrics.Registry, log *logging.Logger, clock func() time.Time) *Checker {
	if clock == nil {
		clock = time.Now
	}
	return &Checker{
		store:   st,
		bus:     bus,
		metrics: reg,
		log:     log.WithComponent(logging.Component("consistency")),
		clock:   clock,
		pending: make(map[string]*Check),
	}
}

func conflictKey(collection, id string) string {
	return collection + "/" + id
}

// Check fetches the document's current version and compares it to
// expectedVersion. Matching versions auto-resolve as server_wins and are
// not recorded. A mismatch is recorded, counted, and published as a
// conflict for explicit resolution. A missing document counts as version 0.
func (c *Checker) Check(ctx context.Context, collection, id string, expectedVersion int64) (Check, error) {
	var actual int64
	doc, err := c.store.GetDocument(ctx, collection, id)
	switch {
	case err == nil:
		actual = doc.Version()
	case stderrors.Is(err, store.ErrNotFound):
		actual = 0
	default:
		return Check{}, errors.NewTransportError(errors.OpCheck, "consistency", err)
	}

	check := Check{
		Collection:      collection,
		DocumentID:      id,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actual,
		CheckedAt:       c.clock(),
	}

	if actual == expectedVersion {
		check.Resolved = true
		check.Strategy = StrategyServerWins
		return check, nil
	}

	c.mu.Lock()
	stored := check
	c.pending[conflictKey(collection, id)] = &stored
	c.mu.Unlock()

	c.metrics.ConflictRecorded()
	c.log.Warn("version conflict detected",
		slog.String("collection", collection),
		slog.String("document_id", id),
		slog.Int64("expected", expectedVersion),
		slog.Int64("actual", actual),
	)
	c.bus.Publish(eventbus.ConflictDetected{
		Collection:      collection,
		DocumentID:      id,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actual,
	})

	return check, nil
}

// Resolve applies a strategy to a previously recorded conflict.
//
// server_wins keeps the authoritative copy and issues no write.
// client_wins overwrites the server copy with mergeData, bumping the
// version past the observed one. merge writes the caller-computed merged
// fields the same way; this component never merges fields itself.
//
// Calling Resolve without a recorded conflict is a usage error and is
// returned synchronously.
func (c *Checker) Resolve(ctx context.Context, collection, id string, strategy Strategy, mergeData map[string]interface{}) error {
	key := conflictKey(collection, id)

	c.mu.Lock()
	check, ok := c.pending[key]
	c.mu.Unlock()

	if !ok {
		return errors.NewConflictError(errors.OpResolve,
			fmt.Errorf("no conflict recorded for %s/%s", collection, id))
	}

	switch strategy {
	case StrategyServerWins:
		// Authoritative copy stands; nothing to write.

	case StrategyClientWins, StrategyMerge:
		if strategy == StrategyMerge && len(mergeData) == 0 {
			return errors.NewConflictError(errors.OpResolve,
				fmt.Errorf("merge resolution requires merge data"))
		}

		payload := make(map[string]interface{}, len(mergeData)+2)
		for k, v := range mergeData {
			payload[k] = v
		}
		payload[store.VersionField] = check.ActualVersion + 1
		payload[UpdatedAtField] = c.clock().UTC().Format(time.RFC3339Nano)

		err := c.store.CommitBatch(ctx, []store.WriteOp{{
			Collection: collection,
			DocumentID: id,
			Op:         store.OpUpdate,
			Payload:    payload,
		}})
		if err != nil {
			// Keep the conflict recorded so the caller can retry.
			return errors.NewTransportError(errors.OpResolve, "consistency", err)
		}

	default:
		return errors.NewConflictError(errors.OpResolve,
			fmt.Errorf("unknown strategy %q", strategy))
	}

	c.mu.Lock()
	check.Resolved = true
	check.Strategy = strategy
	delete(c.pending, key)
	c.mu.Unlock()

	c.metrics.ConflictResolved()
	c.log.Info("conflict resolved",
		slog.String("collection", collection),
		slog.String("document_id", id),
		slog.String("strategy", string(strategy)),
	)
	c.bus.Publish(eventbus.ConflictResolved{
		Collection: collection,
		DocumentID: id,
		Strategy:   string(strategy),
	})

	return nil
}

// Pending returns a snapshot of the unresolved conflicts.
func (c *Checker) Pending() []Check {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Check, 0, len(c.pending))
	for _, check := range c.pending {
		out = append(out, *check)
	}
	return out
}
