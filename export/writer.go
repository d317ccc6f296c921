// Package export writes log snapshots to SQLite for offline analysis. Rows are
// keyed by the event fingerprint, so exporting the same log twice adds nothing.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"radiolog/radio"
	"radiolog/render"
	"radiolog/sqliteutil"
)

const busyTimeout = 5 * time.Second

// Writer appends log entries to one SQLite file.
type Writer struct {
	db     *sql.DB
	path   string
	render *render.Renderer
}

// Result counts what a Write did.
type Result struct {
	Inserted int
	Skipped  int // already present from an earlier export
}

// Open preflights path, then opens (or creates) the database and ensures the
// schema exists. r formats the text column; nil uses a bare renderer.
func Open(ctx context.Context, path string, r *render.Renderer) (*Writer, error) {
	res, err := sqliteutil.Preflight(ctx, path, "export", busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if res.Quarantined {
		logrus.Warnf("Export: previous database moved to %s", res.QuarantinePath)
	}
	db, err := sqliteutil.Open(ctx, path, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: schema: %w", err)
	}
	if r == nil {
		r = &render.Renderer{}
	}
	return &Writer{db: db, path: path, render: r}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS log_entries (
    fingerprint INTEGER PRIMARY KEY,
    observed_at INTEGER NOT NULL,
    subscription_id INTEGER NOT NULL,
    category TEXT NOT NULL,
    text TEXT NOT NULL,
    exported_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS log_entries_observed_at ON log_entries(observed_at);`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Path returns the database file.
func (w *Writer) Path() string {
	return w.path
}

// Write stores events in one transaction, skipping any already exported.
func (w *Writer) Write(ctx context.Context, events []radio.Event) (Result, error) {
	var res Result
	if w == nil || w.db == nil || len(events) == 0 {
		return res, nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO log_entries (
    fingerprint, observed_at, subscription_id, category, text, exported_at
) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return res, fmt.Errorf("export: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, ev := range events {
		out, err := stmt.ExecContext(ctx,
			int64(ev.Fingerprint()),
			ev.Time.UTC().UnixMilli(),
			ev.SubscriptionID,
			ev.Kind().String(),
			w.render.Text(ev),
			now,
		)
		if err != nil {
			return Result{}, fmt.Errorf("export: insert: %w", err)
		}
		if n, _ := out.RowsAffected(); n > 0 {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("export: commit: %w", err)
	}
	return res, nil
}

// Count returns the number of stored rows.
func (w *Writer) Count(ctx context.Context) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("export: count: %w", err)
	}
	return n, nil
}

// CategoryCounts returns stored rows per category.
func (w *Writer) CategoryCounts(ctx context.Context) (map[string]int, error) {
	rows, err := w.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM log_entries GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("export: category counts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		out[cat] = n
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Snapshot opens path, writes events, and closes it again.
func Snapshot(ctx context.Context, path string, r *render.Renderer, events []radio.Event) (Result, error) {
	w, err := Open(ctx, path, r)
	if err != nil {
		return Result{}, err
	}
	res, writeErr := w.Write(ctx, events)
	if err := w.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("export: close: %w", err)
	}
	return res, writeErr
}
