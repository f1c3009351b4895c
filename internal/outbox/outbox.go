// Package outbox is the durable queue between normalization and the
// persistence stores. Each entry remembers which stores still owe it a
// write; an entry is removed only once every one of them has confirmed.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for an id with no outbox entry.
var ErrNotFound = errors.New("outbox entry not found")

// Entry is one queued document.
type Entry struct {
	Seq        int64
	Doc        domain.Document
	Pending    sink.Targets
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
	UpdatedAt  time.Time
}

// Outbox is a single-connection SQLite queue.
type Outbox struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens or creates the outbox database at path. Use ":memory:" for a
// throwaway queue. clock stamps every change.
func Open(path string, clock clockwork.Clock) (*Outbox, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create outbox dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping outbox: %w", err)
	}
	o := &Outbox{db: db, clock: clock}
	if err := o.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return o, nil
}

func (o *Outbox) migrate() error {
	schema := `
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS outbox (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			doc BLOB NOT NULL,
			pending INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			enqueued_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(pending, seq);
	`
	_, err := o.db.Exec(schema)
	return err
}

// Close closes the database.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Enqueue upserts docs, each owed to targets. Re-enqueueing an id replaces
// its document and resets its delivery state.
func (o *Outbox) Enqueue(ctx context.Context, docs []domain.Document, targets sink.Targets) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outbox (id, doc, pending, attempts, last_error, enqueued_at, updated_at)
		VALUES (?, ?, ?, 0, '', ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc = excluded.doc,
			pending = excluded.pending,
			attempts = 0,
			last_error = '',
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare enqueue: %w", err)
	}
	defer stmt.Close()

	ts := o.now()
	for _, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", doc.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, body, int(targets), ts, ts); err != nil {
			return fmt.Errorf("enqueue %s: %w", doc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	return nil
}

// Pending returns up to limit undelivered entries with seq greater than
// after, in queue order.
func (o *Outbox) Pending(ctx context.Context, after int64, limit int) ([]Entry, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT seq, doc, pending, attempts, last_error, enqueued_at, updated_at
		FROM outbox
		WHERE pending != 0 AND seq > ?
		ORDER BY seq
		LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			body    []byte
			pending int
		)
		if err := rows.Scan(&e.Seq, &body, &pending, &e.Attempts, &e.LastError, &e.EnqueuedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		if err := json.Unmarshal(body, &e.Doc); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", e.Seq, err)
		}
		e.Pending = sink.Targets(pending)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkDelivered clears delivered from the entry's pending set and deletes
// the entry once nothing is owed. It returns the targets still pending.
func (o *Outbox) MarkDelivered(ctx context.Context, id string, delivered sink.Targets) (sink.Targets, error) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mark: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var pending int
	err = tx.QueryRowContext(ctx, `SELECT pending FROM outbox WHERE id = ?`, id).Scan(&pending)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("read pending %s: %w", id, err)
	}

	remaining := sink.Targets(pending) &^ delivered
	if remaining == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE outbox SET pending = ?, updated_at = ? WHERE id = ?`,
			int(remaining), o.now(), id)
	}
	if err != nil {
		return 0, fmt.Errorf("mark %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mark: %w", err)
	}
	return remaining, nil
}

// RecordFailure bumps the attempt counter and keeps the last error.
func (o *Outbox) RecordFailure(ctx context.Context, id, cause string) error {
	res, err := o.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, cause, o.now(), id)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Depth counts undelivered entries.
func (o *Outbox) Depth(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE pending != 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

func (o *Outbox) now() time.Time { return o.clock.Now().UTC() }

// CheckReadiness pings the database.
func (o *Outbox) CheckReadiness(ctx context.Context) error {
	return o.db.PingContext(ctx)
}
