// Package store defines the remote document-store abstraction the sync
// engine is built against. Any backend (a managed document database, a
// WebSocket bridge, an in-memory fake) can drive the engine as long as it
// satisfies the Store contract: live queries with push notifications,
// point reads, and all-or-nothing batch commits.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by GetDocument when no document exists.
var ErrNotFound = errors.New("document not found")

// OpKind is the kind of a write operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// ChangeKind describes how a document moved relative to a live query's
// result set.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Origin identifies where a change notification was produced.
type Origin string

const (
	OriginServer Origin = "server"
	OriginCache  Origin = "cache"
	OriginLocal  Origin = "local"
)

// VersionField is the document field carrying the monotonically increasing
// version integer used for optimistic concurrency.
const VersionField = "version"

// Document is the raw payload of a stored document. Adapters hand these to
// the engine, which decodes them into typed entities at the boundary.
type Document map[string]interface{}

// Version reads the document's optimistic-concurrency counter. A missing or
// malformed field counts as version 0 per the store convention.
func (d Document) Version() int64 {
	switch v := d[VersionField].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ChangeEvent is one added/modified/removed notification for a single
// document within a live query's result set. Immutable after creation.
type ChangeEvent struct {
	Kind       ChangeKind
	EntityID   string
	Doc        Document
	ObservedAt time.Time
	Origin     Origin
}

// WriteOp is one element of a batch commit.
type WriteOp struct {
	Collection string
	DocumentID string
	Op         OpKind
	Payload    map[string]interface{}
}

// LiveQueryHandle releases an open live query. Close is idempotent.
type LiveQueryHandle interface {
	Close() error
}

// Store is the remote document-store adapter contract.
//
// OpenLiveQuery establishes a server-pushed, continuously updated result set
// for the query. Every underlying notification arrives as ONE onChange call
// carrying all change events of that notification; the initial snapshot is
// delivered the same way, as a batch of ChangeAdded events. onError reports
// asynchronous query failures; after onError the query may stop delivering.
//
// CommitBatch applies all operations atomically: either every op is applied
// or none is.
//
// SetNetworkEnabled toggles the adapter's network access; while disabled,
// remote round-trips fail fast. ClearLocalCache discards any locally cached
// documents the adapter maintains; both back the engine's explicit
// "reset offline state" operation.
type Store interface {
	OpenLiveQuery(ctx context.Context, collection string, q Query, onChange func([]ChangeEvent), onError func(error)) (LiveQueryHandle, error)
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	CommitBatch(ctx context.Context, ops []WriteOp) error
	SetNetworkEnabled(ctx context.Context, enabled bool) error
	ClearLocalCache(ctx context.Context) error
}
