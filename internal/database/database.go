// Package database is the authoritative store for areas, tables and
// reservations. It owns the invariant that no two active reservations on the
// same table have overlapping effective intervals: every table-assigning
// write re-runs the conflict check inside the same transaction as the
// insert or update.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrNotFound is returned when a referenced area, table or reservation
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTableUnavailable is returned when the write-time conflict check
	// finds an overlapping active reservation on the requested table.
	ErrTableUnavailable = errors.New("table unavailable")
	// ErrConcurrentModification is returned when an update carries a stale
	// version. The caller should re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrInactiveTable is returned when a reservation is assigned to a
	// table that has been deactivated.
	ErrInactiveTable = errors.New("table is not active")
)

// NewDB opens (creating if necessary) the SQLite database at path.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL keeps readers off the writer's back; _txlock=immediate makes every
	// write transaction take the writer lock up front, so the in-transaction
	// conflict re-check is serialized against other writers.
	// _loc=Local keeps scanned start times in local wall-clock time, which
	// the service-window math expects.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_loc=Local"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS areas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			area_id INTEGER NOT NULL,
			table_number INTEGER NOT NULL,
			seats INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(area_id, table_number),
			FOREIGN KEY(area_id) REFERENCES areas(id)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guest_name TEXT NOT NULL,
			phone TEXT,
			party_size INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'confirmed',
			notes TEXT,
			area_id INTEGER NOT NULL,
			table_id INTEGER,
			fallback_area_id INTEGER,
			idempotency_key TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY(area_id) REFERENCES areas(id),
			FOREIGN KEY(table_id) REFERENCES tables(id)
		)`,

		`CREATE TABLE IF NOT EXISTS day_notes (
			day TEXT PRIMARY KEY,
			note TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tables_area ON tables(area_id, table_number)`,
		`CREATE INDEX IF NOT EXISTS idx_tables_active ON tables(active)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_start ON reservations(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_table_status ON reservations(table_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_area ON reservations(area_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_guest ON reservations(guest_name COLLATE NOCASE)`,

		// Duplicate idempotency keys must never produce a second row, even
		// if the Redis-side check was skipped. NULL keys stay unconstrained.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_idem ON reservations(idempotency_key)
			WHERE idempotency_key IS NOT NULL`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
