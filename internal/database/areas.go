package database

import (
	"context"
	"database/sql"
	"fmt"

	"tischplan/internal/models"
)

// ListAreas returns all areas ordered by their configured rank, then name.
func (db *DB) ListAreas(ctx context.Context) ([]models.Area, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, sort_order FROM areas ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	var areas []models.Area
	for rows.Next() {
		var a models.Area
		if err := rows.Scan(&a.ID, &a.Name, &a.SortOrder); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// GetArea returns a single area by id.
func (db *DB) GetArea(ctx context.Context, id int64) (*models.Area, error) {
	var a models.Area
	err := db.QueryRowContext(ctx,
		`SELECT id, name, sort_order FROM areas WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.SortOrder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateArea inserts a new seating area and fills in its id.
func (db *DB) CreateArea(ctx context.Context, a *models.Area) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO areas (name, sort_order) VALUES (?, ?)`,
		a.Name, a.SortOrder)
	if err != nil {
		return fmt.Errorf("create area: %w", err)
	}
	a.ID, err = result.LastInsertId()
	return err
}

// RenameArea updates an area's display name. Renaming is the only permitted
// mutation after creation.
func (db *DB) RenameArea(ctx context.Context, id int64, name string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE areas SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
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

// EnsureDefaultAreas seeds the house areas on first start so a fresh
// database is immediately usable.
func (db *DB) EnsureDefaultAreas(ctx context.Context) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM areas`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []models.Area{
		{Name: "Restaurant", SortOrder: 1},
		{Name: "Pizzastube", SortOrder: 2},
		{Name: "Terrasse", SortOrder: 3},
	}
	for i := range defaults {
		if err := db.CreateArea(ctx, &defaults[i]); err != nil {
			return fmt.Errorf("seed area %s: %w", defaults[i].Name, err)
		}
	}
	db.logger.Info().Int("areas", len(defaults)).Msg("Seeded default areas")
	return nil
}

// ListTables returns the active tables of an area ordered by table number.
func (db *DB) ListTables(ctx context.Context, areaID int64) ([]models.Table, error) {
	if _, err := db.GetArea(ctx, areaID); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, area_id, table_number, seats, active
		FROM tables
		WHERE area_id = ? AND active = 1
		ORDER BY table_number`,
		areaID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.ID, &t.AreaID, &t.TableNumber, &t.Seats, &t.Active); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// GetTable returns a single table by id, active or not.
func (db *DB) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	var t models.Table
	err := db.QueryRowContext(ctx,
		`SELECT id, area_id, table_number, seats, active FROM tables WHERE id = ?`, id,
	).Scan(&t.ID, &t.AreaID, &t.TableNumber, &t.Seats, &t.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTable inserts a new table and fills in its id.
func (db *DB) CreateTable(ctx context.Context, t *models.Table) error {
	if _, err := db.GetArea(ctx, t.AreaID); err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO tables (area_id, table_number, seats, active) VALUES (?, ?, ?, ?)`,
		t.AreaID, t.TableNumber, t.Seats, t.Active)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	t.ID, err = result.LastInsertId()
	return err
}

// SetTableActive activates or deactivates a table. Deactivated tables keep
// their historical reservations but stop appearing in availability.
func (db *DB) SetTableActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE tables SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
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
