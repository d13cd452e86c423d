// Package storage owns event identity and durability: an in-memory
// event set persisted as a full SQLite snapshot on every mutation.
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
)

// DB wraps the SQLite snapshot file.
type DB struct {
	db *sql.DB
}

// Open opens or creates the snapshot database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	d := &DB{db: db}
	if err := d.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		date TEXT NOT NULL,
		title TEXT NOT NULL,
		fair TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
	`

	_, err := d.db.Exec(schema)
	return err
}

// WriteSnapshot replaces the persisted event list with events, in
// order, inside one transaction. There is no incremental write path:
// every store mutation lands here.
func (d *DB) WriteSnapshot(events []event.Event) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (position, id, date, title, fair, link, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		_, err := stmt.Exec(i, ev.ID, ev.Date.String(), ev.Title, ev.Fair, ev.Link, string(ev.Source))
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the full persisted event list in insertion order.
func (d *DB) ReadSnapshot() ([]event.Event, error) {
	rows, err := d.db.Query(`
		SELECT id, date, title, fair, link, source
		FROM events
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		var date, source string
		if err := rows.Scan(&ev.ID, &date, &ev.Title, &ev.Fair, &ev.Link, &source); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		day, err := dates.ParseISO(date)
		if err != nil {
			return nil, fmt.Errorf("snapshot date %q: %w", date, err)
		}
		ev.Date = day
		ev.Source = event.Source(source)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of persisted events.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	return count, err
}
