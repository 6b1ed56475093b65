// Package metrics tracks the process-wide counters exposed by the sync
// engine. The registry is mutated by every component and read-only to
// callers via Snapshot.
package metrics

import (
	"sync/atomic"
	"time"
)

// Registry holds the live counters. All methods are safe for concurrent use.
type Registry struct {
	activeListeners   atomic.Int64
	updatesReceived   atomic.Int64
	conflictsResolved atomic.Int64
	pendingConflicts  atomic.Int64
	queueSize         atomic.Int64
	droppedItems      atomic.Int64
	lastSyncUnixNano  atomic.Int64
	online            atomic.Bool
}

// Snapshot is an immutable view of the registry at one point in time.
type Snapshot struct {
	ActiveListeners   int64
	UpdatesReceived   int64
	ConflictsResolved int64
	PendingConflicts  int64
	QueueSize         int64
	DroppedItems      int64
	LastSyncTime      time.Time
	Online            bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) ListenerOpened() {
	r.activeListeners.Add(1)
}

func (r *Registry) ListenerClosed() {
	r.activeListeners.Add(-1)
}

func (r *Registry) AddUpdates(n int) {
	r.updatesReceived.Add(int64(n))
}

func (r *Registry) ConflictRecorded() {
	r.pendingConflicts.Add(1)
}

func (r *Registry) ConflictResolved() {
	r.pendingConflicts.Add(-1)
	r.conflictsResolved.Add(1)
}

func (r *Registry) SetQueueSize(n int) {
	r.queueSize.Store(int64(n))
}

func (r *Registry) ItemDropped() {
	r.droppedItems.Add(1)
}

func (r *Registry) MarkSynced(t time.Time) {
	r.lastSyncUnixNano.Store(t.UnixNano())
}

func (r *Registry) SetOnline(online bool) {
	r.online.Store(online)
}

// Snapshot returns the current counter values.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		ActiveListeners:   r.activeListeners.Load(),
		UpdatesReceived:   r.updatesReceived.Load(),
		ConflictsResolved: r.conflictsResolved.Load(),
		PendingConflicts:  r.pendingConflicts.Load(),
		QueueSize:         r.queueSize.Load(),
		DroppedItems:      r.droppedItems.Load(),
		Online:            r.online.Load(),
	}
	if nano := r.lastSyncUnixNano.Load(); nano != 0 {
		s.LastSyncTime = time.Unix(0, nano)
	}
	return s
}
