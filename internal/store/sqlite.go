// Package store persists the accumulating list of imported events.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"breakcal/internal/model"
)

// SQLiteStore keeps imported events in import order.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Imports from the CLI, the API and the refresh job serialize here.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		source_id   TEXT NOT NULL,
		uid         TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL,
		location    TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start_at    TEXT,
		end_at      TEXT,
		all_day     INTEGER NOT NULL DEFAULT 0,
		imported_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_source ON events(source_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a parsed batch after everything already stored. Repeated
// imports of the same payload are stored again; nothing is deduplicated.
func (s *SQLiteStore) Append(ctx context.Context, sourceID string, events []model.CalendarEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.insert(ctx, tx, sourceID, events); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(events), nil
}

// ReplaceSource swaps every event of sourceID for events in one
// transaction. Used by subscription refresh so a feed is not duplicated on
// every poll.
func (s *SQLiteStore) ReplaceSource(ctx context.Context, sourceID string, events []model.CalendarEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE source_id = ?`, sourceID); err != nil {
		return 0, fmt.Errorf("delete source %s: %w", sourceID, err)
	}
	if err := s.insert(ctx, tx, sourceID, events); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(events), nil
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, sourceID string, events []model.CalendarEvent) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, source_id, uid, title, location, description, start_at, end_at, all_day, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			s.newID(), sourceID, ev.UID, ev.Title, ev.Location, ev.Description,
			formatTime(ev.Start), formatTime(ev.End), ev.AllDay, now,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

// List returns every stored event in import order, with timestamps
// expressed in loc (time.Local when nil).
func (s *SQLiteStore) List(ctx context.Context, loc *time.Location) ([]model.CalendarEvent, error) {
	if loc == nil {
		loc = time.Local
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, uid, title, location, description, start_at, end_at, all_day
		FROM events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]model.CalendarEvent, 0)
	for rows.Next() {
		var (
			ev         model.CalendarEvent
			start, end sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.SourceID, &ev.UID, &ev.Title, &ev.Location, &ev.Description, &start, &end, &ev.AllDay); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Start, err = parseTime(start, loc); err != nil {
			return nil, fmt.Errorf("event %s start: %w", ev.ID, err)
		}
		if ev.End, err = parseTime(end, loc); err != nil {
			return nil, fmt.Errorf("event %s end: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count returns the number of stored events.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Reset removes every stored event.
func (s *SQLiteStore) Reset(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString, loc *time.Location) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	t = t.In(loc)
	return &t, nil
}
