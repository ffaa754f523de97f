package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tischplan/internal/models"
	"tischplan/internal/schedule"
)

const activeStatuses = `('requested', 'confirmed', 'arrived')`

const reservationColumns = `id, guest_name, phone, party_size, start_time, duration_minutes,
	status, notes, area_id, table_id, fallback_area_id, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var phone, notes sql.NullString
	var tableID, fallbackAreaID sql.NullInt64
	err := row.Scan(
		&r.ID, &r.GuestName, &phone, &r.PartySize, &r.StartTime, &r.DurationMinutes,
		&r.Status, &notes, &r.AreaID, &tableID, &fallbackAreaID,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if phone.Valid {
		r.Phone = phone.String
	}
	if notes.Valid {
		r.Notes = notes.String
	}
	if tableID.Valid {
		r.TableID = &tableID.Int64
	}
	if fallbackAreaID.Valid {
		r.FallbackAreaID = &fallbackAreaID.Int64
	}
	return &r, nil
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetReservationByIdempotencyKey returns the reservation previously created
// with the given key, or ErrNotFound.
func (db *DB) GetReservationByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE idempotency_key = ?`, key)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReservationsForDay returns reservations whose start falls within the
// given calendar day, joined with their optional table and area, ordered by
// start time. areaID narrows the listing to one area when non-nil.
func (db *DB) ListReservationsForDay(ctx context.Context, day time.Time, areaID *int64) ([]models.ReservationDetail, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT r.id, r.guest_name, r.phone, r.party_size, r.start_time, r.duration_minutes,
		       r.status, r.notes, r.area_id, r.table_id, r.fallback_area_id,
		       r.created_at, r.updated_at, r.version,
		       t.id, t.area_id, t.table_number, t.seats, t.active,
		       a.id, a.name, a.sort_order
		FROM reservations r
		LEFT JOIN tables t ON t.id = r.table_id
		LEFT JOIN areas a ON a.id = r.area_id
		WHERE r.start_time >= ? AND r.start_time < ?`
	args := []any{dayStart, dayEnd}
	if areaID != nil {
		query += ` AND r.area_id = ?`
		args = append(args, *areaID)
	}
	query += ` ORDER BY r.start_time, r.id`

	return db.queryDetails(ctx, query, args...)
}

// SearchReservationsByGuest returns reservations whose guest name contains
// the given text (case-insensitive), newest first.
func (db *DB) SearchReservationsByGuest(ctx context.Context, text string, limit int) ([]models.ReservationDetail, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT r.id, r.guest_name, r.phone, r.party_size, r.start_time, r.duration_minutes,
		       r.status, r.notes, r.area_id, r.table_id, r.fallback_area_id,
		       r.created_at, r.updated_at, r.version,
		       t.id, t.area_id, t.table_number, t.seats, t.active,
		       a.id, a.name, a.sort_order
		FROM reservations r
		LEFT JOIN tables t ON t.id = r.table_id
		LEFT JOIN areas a ON a.id = r.area_id
		WHERE r.guest_name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY r.start_time DESC
		LIMIT ?`
	return db.queryDetails(ctx, query, text, limit)
}

func (db *DB) queryDetails(ctx context.Context, query string, args ...any) ([]models.ReservationDetail, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var details []models.ReservationDetail
	for rows.Next() {
		var d models.ReservationDetail
		var phone, notes sql.NullString
		var tableID, fallbackAreaID sql.NullInt64
		var tID, tAreaID, tNumber, tSeats sql.NullInt64
		var tActive sql.NullBool
		var aID, aSort sql.NullInt64
		var aName sql.NullString

		err := rows.Scan(
			&d.ID, &d.GuestName, &phone, &d.PartySize, &d.StartTime, &d.DurationMinutes,
			&d.Status, &notes, &d.AreaID, &tableID, &fallbackAreaID,
			&d.CreatedAt, &d.UpdatedAt, &d.Version,
			&tID, &tAreaID, &tNumber, &tSeats, &tActive,
			&aID, &aName, &aSort,
		)
		if err != nil {
			return nil, err
		}
		if phone.Valid {
			d.Phone = phone.String
		}
		if notes.Valid {
			d.Notes = notes.String
		}
		if tableID.Valid {
			d.TableID = &tableID.Int64
		}
		if fallbackAreaID.Valid {
			d.FallbackAreaID = &fallbackAreaID.Int64
		}
		if tID.Valid {
			d.Table = &models.Table{
				ID:          tID.Int64,
				AreaID:      tAreaID.Int64,
				TableNumber: int(tNumber.Int64),
				Seats:       int(tSeats.Int64),
				Active:      tActive.Bool,
			}
		}
		if aID.Valid {
			d.Area = &models.Area{ID: aID.Int64, Name: aName.String, SortOrder: aSort.Int64}
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// ActiveReservationsForArea returns table-assigned active reservations in an
// area whose start time lies in [windowStart, windowEnd). Callers widen
// windowStart enough to catch long-running earlier seatings; the definitive
// overlap decision is made against schedule.Overlaps, the range here is only
// a coarse prefilter.
func (db *DB) ActiveReservationsForArea(ctx context.Context, areaID int64, windowStart, windowEnd time.Time) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.guest_name, r.phone, r.party_size, r.start_time, r.duration_minutes,
		       r.status, r.notes, r.area_id, r.table_id, r.fallback_area_id,
		       r.created_at, r.updated_at, r.version
		FROM reservations r
		JOIN tables t ON t.id = r.table_id
		WHERE t.area_id = ?
		AND r.status IN `+activeStatuses+`
		AND r.start_time >= ? AND r.start_time < ?
		ORDER BY r.start_time`,
		areaID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("active reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// CreateReservation persists a new reservation. When a table is assigned,
// the conflict check runs inside the same transaction as the insert, so two
// concurrent writers targeting the same table at overlapping times cannot
// both commit; the loser gets ErrTableUnavailable. idemKey, when non-empty,
// makes the create replay-safe: a repeat call with the same key returns the
// previously created row instead of inserting a duplicate.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation, bufferMinutes int, idemKey string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if idemKey != "" {
		row := tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE idempotency_key = ?`, idemKey)
		existing, err := scanReservation(row)
		if err == nil {
			*r = *existing
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check idempotency key: %w", err)
		}
	}

	if r.TableID != nil {
		if err := checkTableFree(ctx, tx, *r.TableID, r.StartTime, r.EffectiveEnd(bufferMinutes), bufferMinutes, 0); err != nil {
			return err
		}
	}

	now := time.Now()
	var key any
	if idemKey != "" {
		key = idemKey
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			guest_name, phone, party_size, start_time, duration_minutes,
			status, notes, area_id, table_id, fallback_area_id,
			idempotency_key, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		r.GuestName, nullIfEmpty(r.Phone), r.PartySize, r.StartTime, r.DurationMinutes,
		r.Status, nullIfEmpty(r.Notes), r.AreaID, nullableID(r.TableID), nullableID(r.FallbackAreaID),
		key, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

// UpdateReservation applies a partial update with optimistic locking. If the
// patch touches the table, start time or duration, the conflict check is
// re-run inside the transaction against the patched values, excluding the
// reservation's own prior interval.
func (db *DB) UpdateReservation(ctx context.Context, id, version int64, patch models.ReservationPatch, bufferMinutes int) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	current, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, ErrConcurrentModification
	}

	updated := *current
	applyPatch(&updated, patch)

	if patch.TouchesSchedule() && updated.TableID != nil && updated.IsActive() {
		err := checkTableFree(ctx, tx, *updated.TableID, updated.StartTime,
			updated.EffectiveEnd(bufferMinutes), bufferMinutes, updated.ID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE reservations SET
			guest_name = ?, phone = ?, party_size = ?, start_time = ?,
			duration_minutes = ?, status = ?, notes = ?, area_id = ?,
			table_id = ?, fallback_area_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		updated.GuestName, nullIfEmpty(updated.Phone), updated.PartySize, updated.StartTime,
		updated.DurationMinutes, updated.Status, nullIfEmpty(updated.Notes), updated.AreaID,
		nullableID(updated.TableID), nullableID(updated.FallbackAreaID), now,
		id, version,
	)
	if err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	updated.UpdatedAt = now
	updated.Version = version + 1
	return &updated, nil
}

// DeleteReservation removes a reservation entirely, freeing its table
// immediately.
func (db *DB) DeleteReservation(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// checkTableFree verifies inside the caller's transaction that the table is
// active and no active reservation's effective interval overlaps the
// candidate interval. excludeID removes the reservation being edited from
// its own conflict set.
func checkTableFree(ctx context.Context, tx *sql.Tx, tableID int64, candStart, candEnd time.Time, bufferMinutes int, excludeID int64) error {
	var active bool
	err := tx.QueryRowContext(ctx,
		`SELECT active FROM tables WHERE id = ?`, tableID).Scan(&active)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	if !active {
		return ErrInactiveTable
	}

	// Coarse prefilter on start_time; the definitive decision is
	// schedule.Overlaps over the effective intervals.
	rows, err := tx.QueryContext(ctx, `
		SELECT start_time, duration_minutes FROM reservations
		WHERE table_id = ?
		AND id != ?
		AND status IN `+activeStatuses+`
		AND start_time < ?`,
		tableID, excludeID, candEnd)
	if err != nil {
		return fmt.Errorf("check conflicts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var existing models.Reservation
		if err := rows.Scan(&existing.StartTime, &existing.DurationMinutes); err != nil {
			return err
		}
		if schedule.Overlaps(candStart, candEnd, existing.StartTime, existing.EffectiveEnd(bufferMinutes)) {
			return ErrTableUnavailable
		}
	}
	return rows.Err()
}

func applyPatch(r *models.Reservation, patch models.ReservationPatch) {
	if patch.GuestName != nil {
		r.GuestName = *patch.GuestName
	}
	if patch.Phone != nil {
		r.Phone = *patch.Phone
	}
	if patch.PartySize != nil {
		r.PartySize = *patch.PartySize
	}
	if patch.StartTime != nil {
		r.StartTime = *patch.StartTime
	}
	if patch.DurationMinutes != nil {
		r.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if patch.Notes != nil {
		r.Notes = *patch.Notes
	}
	if patch.AreaID != nil {
		r.AreaID = *patch.AreaID
	}
	if patch.SetTable {
		r.TableID = patch.TableID
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
