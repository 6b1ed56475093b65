package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/curalink/syncengine/errors"
	"github.com/curalink/syncengine/store"
)

type changeRecorder struct {
	mu      sync.Mutex
	batches [][]store.ChangeEvent
}

func (r *changeRecorder) onChange(events []store.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *changeRecorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *changeRecorder) batch(i int) []store.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[i]
}

func TestInitialSnapshotIsOneBatch(t *testing.T) {
	s := New()
	s.Seed("prescriptions", "rx1", store.Document{"patientId": "p1", "status": "issued"})
	s.Seed("prescriptions", "rx2", store.Document{"patientId": "p1", "status": "issued"})
	s.Seed("prescriptions", "rx3", store.Document{"patientId": "p2", "status": "issued"})

	rec := &changeRecorder{}
	q := store.Where(store.Eq("patientId", "p1"), store.Eq("status", "issued"))

	h, err := s.OpenLiveQuery(context.Background(), "prescriptions", q, rec.onChange, func(error) {})
	if err != nil {
		t.Fatalf("OpenLiveQuery: %v", err)
	}
	defer h.Close()

	if rec.batchCount() != 1 {
		t.Fatalf("snapshot batches = %d, want 1", rec.batchCount())
	}
	snapshot := rec.batch(0)
	if len(snapshot) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snapshot))
	}
	for _, ev := range snapshot {
		if ev.Kind != store.ChangeAdded {
			t.Errorf("snapshot kind = %s, want added", ev.Kind)
		}
	}
}

func TestSnapshotSortsBeforeLimiting(t *testing.T) {
	s := New()
	s.Seed("appointments", "a1", store.Document{"startsAt": "2026-09-03T09:00:00Z"})
	s.Seed("appointments", "a2", store.Document{"startsAt": "2026-09-01T09:00:00Z"})
	s.Seed("appointments", "a3", store.Document{"startsAt": "2026-09-02T09:00:00Z"})

	rec := &changeRecorder{}
	q := store.Query{OrderBy: "startsAt", Limit: 2}

	h, err := s.OpenLiveQuery(context.Background(), "appointments", q, rec.onChange, func(error) {})
	if err != nil {
		t.Fatalf("OpenLiveQuery: %v", err)
	}
	defer h.Close()

	snapshot := rec.batch(0)
	if len(snapshot) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snapshot))
	}
	if snapshot[0].EntityID != "a2" || snapshot[1].EntityID != "a3" {
		t.Errorf("snapshot order = %s, %s, want a2, a3", snapshot[0].EntityID, snapshot[1].EntityID)
	}

	// Descending picks the latest instead.
	rec2 := &changeRecorder{}
	q.Descending = true
	h2, err := s.OpenLiveQuery(context.Background(), "appointments", q, rec2.onChange, func(error) {})
	if err != nil {
		t.Fatalf("OpenLiveQuery: %v", err)
	}
	defer h2.Close()

	desc := rec2.batch(0)
	if desc[0].EntityID != "a1" || desc[1].EntityID != "a3" {
		t.Errorf("descending order = %s, %s, want a1, a3", desc[0].EntityID, desc[1].EntityID)
	}
}

func TestCommitNotifiesMatchingWatcher(t *testing.T) {
	s := New()
	s.Seed("prescriptions", "rx1", store.Document{"patientId": "p1", "status": "issued"})

	rec := &changeRecorder{}
	q := store.Where(store.Eq("patientId", "p1"))
	h, err := s.OpenLiveQuery(context.Background(), "prescriptions", q, rec.onChange, func(error) {})
	if err != nil {
		t.Fatalf("OpenLiveQuery: %v", err)
	}
	defer h.Close()

	err = s.CommitBatch(context.Background(), []store.WriteOp{
		{Collection: "prescriptions", DocumentID: "rx1", Op: store.OpUpdate, Payload: map[string]interface{}{"status": "dispensed"}},
	})
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	if rec.batchCount() != 2 {
		t.Fatalf("batches = %d, want 2 (snapshot + modify)", rec.batchCount())
	}
	mod := rec.batch(1)
	if len(mod) != 1 || mod[0].Kind != store.ChangeModified {
		t.Fatalf("expected one modified event, got %+v", mod)
	}
	if mod[0].Doc["status"] != "dispensed" {
		t.Errorf("merged payload missing update: %+v", mod[0].Doc)
	}
}

func TestCommitRemovesFromResultSet(t *testing.T) {
	s := New()
	s.Seed("appointments", "A1", store.Document{"status": "booked"})

	rec := &changeRecorder{}
	h, _ := s.OpenLiveQuery(context.Background(), "appointments",
		store.Where(store.Eq("status", "booked")), rec.onChange, func(error) {})
	defer h.Close()

	s.CommitBatch(context.Background(), []store.WriteOp{
		{Collection: "appointments", DocumentID: "A1", Op: store.OpUpdate, Payload: map[string]interface{}{"status": "cancelled"}},
	})

	last := rec.batch(rec.batchCount() - 1)
	if len(last) != 1 || last[0].Kind != store.ChangeRemoved {
		t.Fatalf("expected removed event, got %+v", last)
	}
}

func TestClosedWatcherGetsNothing(t *testing.T) {
	s := New()
	rec := &changeRecorder{}
	h, _ := s.OpenLiveQuery(context.Background(), "logs", store.Where(), rec.onChange, func(error) {})

	h.Close()
	h.Close() // idempotent

	s.CommitBatch(context.Background(), []store.WriteOp{
		{Collection: "logs", DocumentID: "l1", Op: store.OpCreate, Payload: map[string]interface{}{"note": "visit"}},
	})

	if rec.batchCount() != 0 {
		t.Errorf("closed watcher received %d batches", rec.batchCount())
	}
	if s.WatcherCount() != 0 {
		t.Errorf("WatcherCount = %d, want 0", s.WatcherCount())
	}
}

func TestScriptedCommitFailure(t *testing.T) {
	s := New()
	s.FailNextCommits(1, fmt.Errorf("backend unavailable"))

	ops := []store.WriteOp{{Collection: "stock", DocumentID: "s1", Op: store.OpCreate, Payload: map[string]interface{}{"name": "gauze"}}}

	if err := s.CommitBatch(context.Background(), ops); !errors.IsRetryable(err) {
		t.Fatalf("scripted failure should be a retryable transport error, got %v", err)
	}
	if err := s.CommitBatch(context.Background(), ops); err != nil {
		t.Fatalf("second commit should succeed, got %v", err)
	}
	if len(s.CommitCalls()) != 2 {
		t.Errorf("CommitCalls = %d, want 2", len(s.CommitCalls()))
	}
}

func TestNetworkDisabledFailsFast(t *testing.T) {
	s := New()
	s.Seed("appointments", "A1", store.Document{"version": int64(2)})
	s.SetNetworkEnabled(context.Background(), false)

	if _, err := s.GetDocument(context.Background(), "appointments", "A1"); err == nil {
		t.Error("GetDocument should fail while network is disabled")
	}
	err := s.CommitBatch(context.Background(), []store.WriteOp{
		{Collection: "appointments", DocumentID: "A1", Op: store.OpDelete},
	})
	if err == nil {
		t.Error("CommitBatch should fail while network is disabled")
	}

	s.SetNetworkEnabled(context.Background(), true)
	if _, err := s.GetDocument(context.Background(), "appointments", "A1"); err != nil {
		t.Errorf("GetDocument after re-enable: %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := New()
	_, err := s.GetDocument(context.Background(), "appointments", "ghost")
	if err != store.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
