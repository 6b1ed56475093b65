package deadletter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	syncErrors "github.com/curalink/syncengine/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "dead.db")
	s, err := NewSQLiteStore(Config{DataSourceName: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenFailureTaggedWithOpenOperation(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "missing-dir", "dead.db")
	_, err := NewSQLiteStore(Config{DataSourceName: dsn})
	require.Error(t, err)

	var se *syncErrors.SyncError
	require.ErrorAs(t, err, &se)
	require.Equal(t, syncErrors.OpOpen, se.Op)
	require.Equal(t, syncErrors.ErrCodeStorageFailure, se.Code)
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueued := time.Now().Add(-time.Minute)
	failed := time.Now()

	err := s.Record(ctx, Entry{
		ID:         "q-1",
		Collection: "prescriptions",
		Operation:  "create",
		Payload:    map[string]interface{}{"medication": "amoxicillin"},
		Retries:    3,
		EnqueuedAt: enqueued,
		FailedAt:   failed,
		Cause:      "commit failed: backend unavailable",
	})
	require.NoError(t, err)

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, "q-1", e.ID)
	require.Equal(t, "prescriptions", e.Collection)
	require.Equal(t, "create", e.Operation)
	require.Equal(t, "amoxicillin", e.Payload["medication"])
	require.Equal(t, 3, e.Retries)
	require.True(t, e.FailedAt.Equal(time.Unix(0, failed.UnixNano())))
}

func TestListOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Entry{
			ID:         string(rune('a' + i)),
			Collection: "stock",
			Operation:  "update",
			Payload:    map[string]interface{}{},
			FailedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "e", entries[0].ID, "newest first")
}

func TestRecordSameIDReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ID: "q-1", Collection: "logs", Operation: "create", Payload: map[string]interface{}{}, Cause: "first"}))
	require.NoError(t, s.Record(ctx, Entry{ID: "q-1", Collection: "logs", Operation: "create", Payload: map[string]interface{}{}, Cause: "second"}))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "second", entries[0].Cause)
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	require.NoError(t, s.Record(ctx, Entry{ID: "old", Collection: "logs", Operation: "delete", Payload: map[string]interface{}{}, FailedAt: old}))
	require.NoError(t, s.Record(ctx, Entry{ID: "fresh", Collection: "logs", Operation: "delete", Payload: map[string]interface{}{}, FailedAt: fresh}))

	n, err := s.Purge(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fresh", entries[0].ID)
}

func TestDiscardIsSilent(t *testing.T) {
	var s Store = Discard{}
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ID: "x"}))
	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoError(t, s.Close())
}
