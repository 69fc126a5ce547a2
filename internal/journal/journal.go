// Package journal records lifecycle events in an embedded SQLite database so
// they can be listed after the watcher has moved on.
//
// The database runs in WAL mode: the watcher appends from its dispatch
// goroutine while `treewatch journal list` reads concurrently.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/treewatch/internal/events"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("journal closed")

// Entry is one recorded event.
type Entry struct {
	ID         int64        `json:"id" yaml:"id"`
	RecordedAt time.Time    `json:"recorded_at" yaml:"recorded_at"`
	Event      events.Event `json:"event" yaml:"event"`
}

// Filter narrows Query and Count. Zero values match everything.
type Filter struct {
	Since      time.Time
	Until      time.Time
	Kinds      []events.Kind
	PathPrefix string
	// Limit caps the number of entries, newest first. Zero means no limit.
	Limit int
}

// Journal is an append-only event log.
type Journal struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the journal at path and ensures its schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	j, err := journal.Open(".treewatch/journal.db")
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
func Open(path string) (*Journal, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	j := &Journal{conn: conn, path: path, now: time.Now}
	if err := j.InitSchemaContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.conn == nil {
		return nil
	}

	_, checkpointErr := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := j.conn.Close()
	j.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	if checkpointErr != nil {
		return fmt.Errorf("failed to checkpoint journal: %w", checkpointErr)
	}
	return nil
}

// InitSchema creates the events table and its indexes. Idempotent.
func (j *Journal) InitSchema() error {
	return j.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (j *Journal) InitSchemaContext(ctx context.Context) error {
	conn, unlock, err := j.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		new_path TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_recorded_at ON events(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_path ON events(path);
	`
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

func (j *Journal) acquire() (*sql.DB, func(), error) {
	j.mu.RLock()
	if j.conn == nil {
		j.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	return j.conn, j.mu.RUnlock, nil
}

// Record appends ev stamped with the current time.
func (j *Journal) Record(ev events.Event) error {
	return j.RecordContext(context.Background(), ev)
}

// RecordContext appends ev with context support.
func (j *Journal) RecordContext(ctx context.Context, ev events.Event) error {
	return j.RecordAtContext(ctx, j.now(), ev)
}

// RecordAtContext appends ev with an explicit timestamp.
func (j *Journal) RecordAtContext(ctx context.Context, at time.Time, ev events.Event) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("cannot record event with invalid kind %d", int(ev.Kind))
	}
	conn, unlock, err := j.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	_, err = conn.ExecContext(ctx,
		`INSERT INTO events (recorded_at, kind, path, new_path) VALUES (?, ?, ?, ?)`,
		at.UnixNano(), ev.Kind.String(), ev.Path, ev.NewPath)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", ev, err)
	}
	return nil
}

// Query returns entries matching f, newest first.
func (j *Journal) Query(f Filter) ([]Entry, error) {
	return j.QueryContext(context.Background(), f)
}

// QueryContext returns entries matching f with context support.
func (j *Journal) QueryContext(ctx context.Context, f Filter) ([]Entry, error) {
	conn, unlock, err := j.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	where, args := f.clause()
	query := `SELECT id, recorded_at, kind, path, new_path FROM events` + where + ` ORDER BY recorded_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			nanos int64
			kind  string
		)
		if err := rows.Scan(&e.ID, &nanos, &kind, &e.Event.Path, &e.Event.NewPath); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.RecordedAt = time.Unix(0, nanos)
		if e.Event.Kind, err = events.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("journal entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries matching f. Limit is ignored.
func (j *Journal) Count(f Filter) (int, error) {
	return j.CountContext(context.Background(), f)
}

// CountContext counts entries with context support.
func (j *Journal) CountContext(ctx context.Context, f Filter) (int, error) {
	conn, unlock, err := j.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	where, args := f.clause()
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// Prune deletes entries recorded before cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, unlock, err := j.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	res, err := conn.ExecContext(ctx, `DELETE FROM events WHERE recorded_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

func (f Filter) clause() (string, []any) {
	var conds []string
	var args []any
	if !f.Since.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "recorded_at < ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			args = append(args, k.String())
		}
		conds = append(conds, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if f.PathPrefix != "" {
		base := strings.TrimSuffix(f.PathPrefix, string(filepath.Separator))
		prefix := base + string(filepath.Separator)
		conds = append(conds, "(path = ? OR new_path = ? OR instr(path, ?) = 1 OR instr(new_path, ?) = 1)")
		args = append(args, base, base, prefix, prefix)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
