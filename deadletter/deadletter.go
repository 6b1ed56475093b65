// Package deadletter keeps a durable record of queue items that exhausted
// their retry budget, so an operator can inspect and recover writes the
// engine had to drop.
package deadletter

import (
	"context"
	"time"
)

// Entry is one permanently failed queue item.
type Entry struct {
	ID         string
	Collection string
	Operation  string
	Payload    map[string]interface{}
	Retries    int
	EnqueuedAt time.Time
	FailedAt   time.Time
	Cause      string
}

// Store records dropped items. Record must be safe to call from the queue's
// drain path; failures to record are logged by the caller, never fatal.
type Store interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Discard is the default store when no dead-letter database is configured.
// Dropped items still surface on the event bus; they are just not persisted.
type Discard struct{}

func (Discard) Record(ctx context.Context, e Entry) error { return nil }
func (Discard) List(ctx context.Context, limit int) ([]Entry, error) {
	return nil, nil
}
func (Discard) Purge(ctx context.Context, before time.Time) (int64, error) { return 0, nil }
func (Discard) Close() error                                               { return nil }
