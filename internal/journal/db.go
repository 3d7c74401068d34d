// Package journal records supervisor sessions so a launch after a crash can
// undo what the crashed session left behind.
// Uses pure-Go SQLite (modernc.org/sqlite), so no cgo is required.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite journal database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the journal at the given path.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each session commits a handful of rows; WAL keeps those writes from
	// blocking a concurrent `stevedore doctor` read.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	jdb := &DB{db: db}
	if err := jdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return jdb, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			pid              INTEGER NOT NULL,
			previous_context TEXT NOT NULL DEFAULT '',
			recovered        INTEGER NOT NULL DEFAULT 0,
			started_at       TEXT NOT NULL,
			ended_at         TEXT
		);

		CREATE TABLE IF NOT EXISTS processes (
			session_id  INTEGER NOT NULL REFERENCES sessions(id),
			role        TEXT NOT NULL,
			pid         INTEGER NOT NULL,
			started_at  TEXT NOT NULL,
			released_at TEXT,
			PRIMARY KEY (session_id, pid)
		);

		CREATE TABLE IF NOT EXISTS registrations (
			name          TEXT PRIMARY KEY,
			artifact      TEXT NOT NULL,
			digest        TEXT NOT NULL DEFAULT '',
			guest_version TEXT NOT NULL DEFAULT '',
			imported_at   TEXT NOT NULL
		);
	`)
	return err
}
