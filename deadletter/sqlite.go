package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"

	syncErrors "github.com/curalink/syncengine/errors"
)

// Config holds configuration for the SQLite dead-letter store.
type Config struct {
	// DataSourceName is the SQLite connection string, e.g. "file:dead.db".
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging for better concurrency.
	// Recommended outside of tests.
	EnableWAL bool

	// TableName defaults to "dead_letters".
	TableName string
}

func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "dead_letters"
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		c.DataSourceName += sep + "_journal_mode=WAL"
	}
}

// SQLiteStore persists dead letters in a SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens (and if necessary creates) the dead-letter table.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	cfg.setDefaults()

	db, err := sql.Open("sqlite3", cfg.DataSourceName)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpOpen, fmt.Errorf("open database: %w", err))
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			collection  TEXT NOT NULL,
			operation   TEXT NOT NULL,
			payload     TEXT NOT NULL,
			retries     INTEGER NOT NULL,
			enqueued_at INTEGER NOT NULL,
			failed_at   INTEGER NOT NULL,
			cause       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_failed_at ON %s(failed_at);
	`, cfg.TableName, cfg.TableName, cfg.TableName)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpOpen, fmt.Errorf("create schema: %w", err))
	}

	return &SQLiteStore{db: db, table: cfg.TableName}, nil
}

// Record inserts one dropped item. Re-recording the same id replaces the
// previous row; the latest failure wins.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRecord, fmt.Errorf("marshal payload: %w", err))
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s
		(id, collection, operation, payload, retries, enqueued_at, failed_at, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.Collection, e.Operation, string(payload),
		e.Retries, e.EnqueuedAt.UnixNano(), e.FailedAt.UnixNano(), e.Cause,
	)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRecord, fmt.Errorf("insert dead letter: %w", err))
	}
	return nil
}

// List returns the most recently failed entries, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, collection, operation, payload, retries, enqueued_at, failed_at, cause
		FROM %s ORDER BY failed_at DESC LIMIT ?
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpRead, fmt.Errorf("query dead letters: %w", err))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload string
		var enqueued, failed int64
		if err := rows.Scan(&e.ID, &e.Collection, &e.Operation, &payload, &e.Retries, &enqueued, &failed, &e.Cause); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpRead, fmt.Errorf("scan dead letter: %w", err))
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, syncErrors.NewStorageError(syncErrors.OpRead, fmt.Errorf("unmarshal payload: %w", err))
		}
		e.EnqueuedAt = time.Unix(0, enqueued)
		e.FailedAt = time.Unix(0, failed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes entries that failed before the cutoff and reports how many
// rows were removed.
func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE failed_at < ?", s.table)
	res, err := s.db.ExecContext(ctx, query, before.UnixNano())
	if err != nil {
		return 0, syncErrors.NewStorageError(syncErrors.OpPurge, fmt.Errorf("purge dead letters: %w", err))
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = Discard{}
