package database

import (
	"context"
	"database/sql"
	"time"
)

const dayKeyFormat = "2006-01-02"

// GetDayNote returns the free-text note for a calendar day; an absent note
// is returned as the empty string.
func (db *DB) GetDayNote(ctx context.Context, day time.Time) (string, error) {
	var note string
	err := db.QueryRowContext(ctx,
		`SELECT note FROM day_notes WHERE day = ?`, day.Format(dayKeyFormat)).Scan(&note)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return note, nil
}

// UpsertDayNote creates or replaces the note for a calendar day.
func (db *DB) UpsertDayNote(ctx context.Context, day time.Time, note string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO day_notes (day, note, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET note = excluded.note, updated_at = excluded.updated_at`,
		day.Format(dayKeyFormat), note, time.Now())
	return err
}
