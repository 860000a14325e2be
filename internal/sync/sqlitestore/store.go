// Package sqlitestore persists the sync queue in a device-local SQLite
// database. The whole snapshot is replaced in one transaction per save, so
// a reload after a crash always sees a consistent queue.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hasanat-app/hasanat/internal/sync"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	position        INTEGER PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	entity_type     TEXT NOT NULL,
	action          TEXT NOT NULL,
	payload         BLOB NOT NULL,
	status          TEXT NOT NULL,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	last_attempt_at TEXT,
	error           TEXT NOT NULL DEFAULT ''
);
`

// Store implements sync.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the queue database at path. Use ":memory:" for an
// ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// The queue serializes writes itself; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the persisted snapshot with entries, in order.
func (s *Store) Save(ctx context.Context, entries []sync.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_queue (position, id, entity_type, action, payload, status, retry_count, created_at, last_attempt_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		var lastAttempt any
		if e.LastAttemptAt != nil {
			lastAttempt = e.LastAttemptAt.Format(time.RFC3339Nano)
		}
		_, err := stmt.ExecContext(ctx,
			i,
			e.ID,
			string(e.EntityType),
			string(e.Action),
			[]byte(e.Payload),
			string(e.Status),
			e.RetryCount,
			e.CreatedAt.Format(time.RFC3339Nano),
			lastAttempt,
			e.Error,
		)
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot in insertion order.
func (s *Store) Load(ctx context.Context) ([]sync.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, action, payload, status, retry_count, created_at, last_attempt_at, error
		FROM sync_queue
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()

	var entries []sync.Entry
	for rows.Next() {
		var (
			e           sync.Entry
			entityType  string
			action      string
			status      string
			createdAt   string
			lastAttempt sql.NullString
		)
		err := rows.Scan(
			&e.ID,
			&entityType,
			&action,
			(*[]byte)(&e.Payload),
			&status,
			&e.RetryCount,
			&createdAt,
			&lastAttempt,
			&e.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		e.EntityType = sync.EntityType(entityType)
		e.Action = sync.Action(action)
		e.Status = sync.Status(status)

		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
		}
		if lastAttempt.Valid {
			t, err := time.Parse(time.RFC3339Nano, lastAttempt.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_attempt_at for %s: %w", e.ID, err)
			}
			e.LastAttemptAt = &t
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue rows: %w", err)
	}

	return entries, nil
}
