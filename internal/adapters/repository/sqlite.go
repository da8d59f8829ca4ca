package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/pkg/logger"
)

// SQLiteHistory stores history snapshots in a SQLite table. Each Save
// replaces the table contents inside one transaction.
type SQLiteHistory struct {
	db  *sql.DB
	mu  sync.Mutex
	log logger.Logger
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string, opts ...Option) (*SQLiteHistory, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	st := newSettings("sqlite", opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	h := &SQLiteHistory{db: db, log: st.log}
	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return h, nil
}

func (h *SQLiteHistory) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS linking_history (
		signature TEXT PRIMARY KEY,
		work_item_id TEXT NOT NULL,
		event_name TEXT NOT NULL DEFAULT '',
		work_item_name TEXT NOT NULL DEFAULT '',
		use_count INTEGER NOT NULL DEFAULT 0,
		last_used TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_last_used ON linking_history(last_used DESC);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot with entries.
func (h *SQLiteHistory) Save(ctx context.Context, entries []history.Entry) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM linking_history`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO linking_history (
			signature, work_item_id, event_name, work_item_name, use_count, last_used
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx,
			e.Signature, e.WorkItemID, e.EventName, e.WorkItemName, e.UseCount,
			e.LastUsed.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert %q: %w", e.Signature, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	h.log.Debug(ctx, "snapshot saved", logger.Int("entries", len(entries)))
	return nil
}

// Load reads the stored snapshot.
func (h *SQLiteHistory) Load(ctx context.Context) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.QueryContext(ctx, `
		SELECT signature, work_item_id, event_name, work_item_name, use_count, last_used
		FROM linking_history
		ORDER BY last_used DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []history.Entry
	for rows.Next() {
		var e history.Entry
		var lastUsed string
		if err := rows.Scan(&e.Signature, &e.WorkItemID, &e.EventName, &e.WorkItemName, &e.UseCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if e.LastUsed, err = time.Parse(time.RFC3339Nano, lastUsed); err != nil {
			return nil, fmt.Errorf("parse last_used of %q: %w", e.Signature, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (h *SQLiteHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Close()
}
