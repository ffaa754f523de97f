package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tischplan/internal/models"
	"tischplan/internal/schedule"
)

var timetable = schedule.Timetable{
	Windows: []schedule.ServiceWindow{
		{Name: "Mittag", Start: "11:30", End: "14:00"},
		{Name: "Abend", Start: "17:00", End: "22:30"},
	},
	SlotMinutes: 15,
}

func TestFilename(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	assert.Equal(t, "Reservierungen_2026-03-14.xlsx", Filename(day))
}

func TestBuildDayWorkbook(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	area := models.Area{ID: 1, Name: "Restaurant"}
	table := models.Table{ID: 5, AreaID: 1, TableNumber: 12, Seats: 4}

	details := []models.ReservationDetail{
		{
			Reservation: models.Reservation{
				GuestName: "Müller", Phone: "+49 170 555", PartySize: 4,
				StartTime: day.Add(12 * time.Hour), DurationMinutes: 90,
				Status: models.StatusConfirmed, TableID: &table.ID,
			},
			Table: &table, Area: &area,
		},
		{
			Reservation: models.Reservation{
				GuestName: "Schmidt", PartySize: 2,
				StartTime: day.Add(19 * time.Hour), DurationMinutes: 120,
				Status: models.StatusCancelled,
			},
		},
	}

	wb, err := BuildDayWorkbook(timetable, details, "Stammtisch ab 20 Uhr")
	require.NoError(t, err)
	defer wb.Close()

	var buf bytes.Buffer
	require.NoError(t, wb.Save(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Mittag", "Abend"}, f.GetSheetList())

	got, err := f.GetCellValue("Mittag", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Müller", got)

	start, err := f.GetCellValue("Mittag", "A2")
	require.NoError(t, err)
	assert.Equal(t, "12:00", start)

	end, err := f.GetCellValue("Mittag", "B2")
	require.NoError(t, err)
	assert.Equal(t, "13:30", end)

	tableNo, err := f.GetCellValue("Mittag", "F2")
	require.NoError(t, err)
	assert.Equal(t, "12", tableNo)

	// The cancelled evening reservation still appears, flagged by status.
	status, err := f.GetCellValue("Abend", "H2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status)

	note, err := f.GetCellValue("Mittag", "A4")
	require.NoError(t, err)
	assert.Equal(t, "Notiz:", note)
}
