package database

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tischplan/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedArea(t *testing.T, db *DB, name string) models.Area {
	t.Helper()
	a := models.Area{Name: name, SortOrder: 1}
	if err := db.CreateArea(context.Background(), &a); err != nil {
		t.Fatalf("create area: %v", err)
	}
	return a
}

func seedTable(t *testing.T, db *DB, areaID int64, number, seats int) models.Table {
	t.Helper()
	tbl := models.Table{AreaID: areaID, TableNumber: number, Seats: seats, Active: true}
	if err := db.CreateTable(context.Background(), &tbl); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return tbl
}

func reservationAt(areaID int64, tableID *int64, start time.Time, duration int) models.Reservation {
	return models.Reservation{
		GuestName:       "Müller",
		PartySize:       4,
		StartTime:       start,
		DurationMinutes: duration,
		Status:          models.StatusConfirmed,
		AreaID:          areaID,
		TableID:         tableID,
	}
}

func TestCreateReservationConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 5, 4)

	nineteen := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	first := reservationAt(area.ID, &table.ID, nineteen, 120)
	if err := db.CreateReservation(ctx, &first, 0, ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.ID == 0 || first.Version != 1 {
		t.Fatalf("first reservation not filled in: %+v", first)
	}

	// 20:30 for 60 overlaps 19:00-21:00.
	overlapping := reservationAt(area.ID, &table.ID, nineteen.Add(90*time.Minute), 60)
	if err := db.CreateReservation(ctx, &overlapping, 0, ""); !errors.Is(err, ErrTableUnavailable) {
		t.Fatalf("expected ErrTableUnavailable, got %v", err)
	}

	// 21:00 for 60 only touches; with buffer 0 it must succeed.
	touching := reservationAt(area.ID, &table.ID, nineteen.Add(2*time.Hour), 60)
	if err := db.CreateReservation(ctx, &touching, 0, ""); err != nil {
		t.Fatalf("touching create: %v", err)
	}
}

func TestCreateReservationBuffer(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 1, 4)

	nineteen := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	first := reservationAt(area.ID, &table.ID, nineteen, 120)
	if err := db.CreateReservation(ctx, &first, 15, ""); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// 21:00 touches the booked span but falls inside the 15 minute buffer.
	buffered := reservationAt(area.ID, &table.ID, nineteen.Add(2*time.Hour), 60)
	if err := db.CreateReservation(ctx, &buffered, 15, ""); !errors.Is(err, ErrTableUnavailable) {
		t.Fatalf("expected ErrTableUnavailable within buffer, got %v", err)
	}
}

func TestCreateReservationUnassigned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")

	r := reservationAt(area.ID, nil, time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC), 120)
	if err := db.CreateReservation(ctx, &r, 15, ""); err != nil {
		t.Fatalf("unassigned create: %v", err)
	}

	// A second unassigned reservation at the same time always succeeds.
	other := reservationAt(area.ID, nil, r.StartTime, 120)
	if err := db.CreateReservation(ctx, &other, 15, ""); err != nil {
		t.Fatalf("second unassigned create: %v", err)
	}
}

func TestCreateReservationInactiveTable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 1, 4)

	if err := db.SetTableActive(ctx, table.ID, false); err != nil {
		t.Fatal(err)
	}

	r := reservationAt(area.ID, &table.ID, time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC), 120)
	if err := db.CreateReservation(ctx, &r, 0, ""); !errors.Is(err, ErrInactiveTable) {
		t.Fatalf("expected ErrInactiveTable, got %v", err)
	}
}

func TestCreateReservationIdempotencyKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 1, 4)

	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	first := reservationAt(area.ID, &table.ID, start, 120)
	if err := db.CreateReservation(ctx, &first, 0, "key-1"); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Retrying with the same key returns the existing row rather than
	// failing with a self-conflict or inserting a duplicate.
	retry := reservationAt(area.ID, &table.ID, start, 120)
	if err := db.CreateReservation(ctx, &retry, 0, "key-1"); err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if retry.ID != first.ID {
		t.Errorf("retry returned id %d, want %d", retry.ID, first.ID)
	}

	details, err := db.ListReservationsForDay(ctx, start, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(details) != 1 {
		t.Errorf("expected 1 reservation after retry, got %d", len(details))
	}

	byKey, err := db.GetReservationByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("lookup by key: %v", err)
	}
	if byKey.ID != first.ID {
		t.Errorf("lookup by key returned id %d, want %d", byKey.ID, first.ID)
	}
	if _, err := db.GetReservationByIdempotencyKey(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestConcurrentCreateOneWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 5, 4)

	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := reservationAt(area.ID, &table.ID, start, 90)
			errs[i] = db.CreateReservation(ctx, &r, 0, "")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTableUnavailable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
}

func TestCancelFreesTable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 5, 4)

	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	r := reservationAt(area.ID, &table.ID, start, 90)
	if err := db.CreateReservation(ctx, &r, 0, ""); err != nil {
		t.Fatal(err)
	}

	cancelled := models.StatusCancelled
	if _, err := db.UpdateReservation(ctx, r.ID, r.Version, models.ReservationPatch{Status: &cancelled}, 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Same table, same time must now be free.
	again := reservationAt(area.ID, &table.ID, start, 90)
	if err := db.CreateReservation(ctx, &again, 0, ""); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestUpdateReservationSelfExclusion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 5, 4)

	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	r := reservationAt(area.ID, &table.ID, start, 120)
	if err := db.CreateReservation(ctx, &r, 0, ""); err != nil {
		t.Fatal(err)
	}

	// Re-assigning the same table and time must not conflict with itself.
	updated, err := db.UpdateReservation(ctx, r.ID, r.Version,
		models.ReservationPatch{SetTable: true, TableID: &table.ID}, 0)
	if err != nil {
		t.Fatalf("self reassign: %v", err)
	}
	if updated.Version != r.Version+1 {
		t.Errorf("version = %d, want %d", updated.Version, r.Version+1)
	}

	// Shifting within its own span is also conflict-free.
	shifted := start.Add(30 * time.Minute)
	if _, err := db.UpdateReservation(ctx, r.ID, updated.Version,
		models.ReservationPatch{StartTime: &shifted}, 0); err != nil {
		t.Fatalf("shift within own span: %v", err)
	}
}

func TestUpdateReservationStaleVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")

	r := reservationAt(area.ID, nil, time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC), 120)
	if err := db.CreateReservation(ctx, &r, 0, ""); err != nil {
		t.Fatal(err)
	}

	name := "Schmidt"
	if _, err := db.UpdateReservation(ctx, r.ID, r.Version, models.ReservationPatch{GuestName: &name}, 0); err != nil {
		t.Fatal(err)
	}

	// The original version is now stale.
	if _, err := db.UpdateReservation(ctx, r.ID, r.Version, models.ReservationPatch{GuestName: &name}, 0); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestListReservationsForDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	main := seedArea(t, db, "Main")
	terrace := seedArea(t, db, "Terrasse")
	table := seedTable(t, db, main.ID, 5, 4)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	inMain := reservationAt(main.ID, &table.ID, day.Add(19*time.Hour), 120)
	inTerrace := reservationAt(terrace.ID, nil, day.Add(12*time.Hour), 90)
	nextDay := reservationAt(main.ID, nil, day.Add(25*time.Hour), 90)
	for _, r := range []*models.Reservation{&inMain, &inTerrace, &nextDay} {
		if err := db.CreateReservation(ctx, r, 0, ""); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListReservationsForDay(ctx, day, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reservations on the day, got %d", len(all))
	}
	// Ordered by start time: terrace lunch first.
	if all[0].AreaID != terrace.ID {
		t.Errorf("expected terrace reservation first")
	}
	if all[0].Table != nil {
		t.Errorf("unassigned reservation must have nil table join")
	}
	if all[1].Table == nil || all[1].Table.TableNumber != 5 {
		t.Errorf("assigned reservation missing table join: %+v", all[1].Table)
	}
	if all[1].Area == nil || all[1].Area.Name != "Main" {
		t.Errorf("missing area join: %+v", all[1].Area)
	}

	onlyMain, err := db.ListReservationsForDay(ctx, day, &main.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyMain) != 1 || onlyMain[0].AreaID != main.ID {
		t.Errorf("area filter failed: %+v", onlyMain)
	}
}

func TestSearchReservationsByGuest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	names := []string{"Müller", "Schmidt", "Obermüller"}
	for i, name := range names {
		r := reservationAt(area.ID, nil, day.Add(time.Duration(18+i)*time.Hour), 90)
		r.GuestName = name
		if err := db.CreateReservation(ctx, &r, 0, ""); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.SearchReservationsByGuest(ctx, "müller", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	// Newest first.
	if got[0].GuestName != "Obermüller" || got[1].GuestName != "Müller" {
		t.Errorf("unexpected order: %s, %s", got[0].GuestName, got[1].GuestName)
	}

	limited, err := db.SearchReservationsByGuest(ctx, "müller", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit not applied: %d rows", len(limited))
	}
}

func TestDeleteReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	area := seedArea(t, db, "Main")
	table := seedTable(t, db, area.ID, 5, 4)

	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	r := reservationAt(area.ID, &table.ID, start, 120)
	if err := db.CreateReservation(ctx, &r, 0, ""); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteReservation(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteReservation(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Deletion frees the table immediately.
	again := reservationAt(area.ID, &table.ID, start, 120)
	if err := db.CreateReservation(ctx, &again, 0, ""); err != nil {
		t.Fatalf("create after delete: %v", err)
	}
}

func TestDayNotes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	note, err := db.GetDayNote(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if note != "" {
		t.Errorf("expected empty note, got %q", note)
	}

	if err := db.UpsertDayNote(ctx, day, "Stammtisch ab 18 Uhr"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertDayNote(ctx, day, "Stammtisch ab 19 Uhr"); err != nil {
		t.Fatal(err)
	}

	note, err = db.GetDayNote(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if note != "Stammtisch ab 19 Uhr" {
		t.Errorf("note = %q", note)
	}
}

func TestAreasAndTables(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.EnsureDefaultAreas(ctx); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := db.EnsureDefaultAreas(ctx); err != nil {
		t.Fatal(err)
	}

	areas, err := db.ListAreas(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(areas) != 3 {
		t.Fatalf("expected 3 seeded areas, got %d", len(areas))
	}
	if areas[0].Name != "Restaurant" {
		t.Errorf("areas not ordered by rank: %v", areas)
	}

	seedTable(t, db, areas[0].ID, 2, 4)
	seedTable(t, db, areas[0].ID, 1, 2)
	inactive := seedTable(t, db, areas[0].ID, 3, 6)
	if err := db.SetTableActive(ctx, inactive.ID, false); err != nil {
		t.Fatal(err)
	}

	tables, err := db.ListTables(ctx, areas[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 {
		t.Fatalf("expected 2 active tables, got %d", len(tables))
	}
	if tables[0].TableNumber != 1 || tables[1].TableNumber != 2 {
		t.Errorf("tables not ordered by number: %v", tables)
	}

	if _, err := db.ListTables(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown area, got %v", err)
	}

	if err := db.RenameArea(ctx, areas[0].ID, "Gaststube"); err != nil {
		t.Fatal(err)
	}
	renamed, err := db.GetArea(ctx, areas[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Name != "Gaststube" {
		t.Errorf("rename not applied: %v", renamed)
	}
	if err := db.RenameArea(ctx, 9999, "X"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound renaming unknown area, got %v", err)
	}
}
