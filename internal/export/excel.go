package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"tischplan/internal/models"
	"tischplan/internal/schedule"
)

var headerColumns = []string{"Zeit", "Ende", "Name", "Telefon", "Personen", "Tisch", "Bereich", "Status", "Notizen"}

// Filename names a day workbook, e.g. "Reservierungen_2026-03-14.xlsx".
func Filename(day time.Time) string {
	return fmt.Sprintf("Reservierungen_%s.xlsx", day.Format("2006-01-02"))
}

// Workbook is an in-memory Excel workbook under construction.
type Workbook struct {
	file  *excelize.File
	sheet string
	row   int
}

// NewWorkbook creates an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{file: excelize.NewFile()}
}

// AddSheet starts a new sheet and makes it current. The first call renames
// the default sheet.
func (w *Workbook) AddSheet(name string) error {
	// Excel caps sheet names at 31 characters.
	if len(name) > 31 {
		name = name[:31]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename default sheet: %w", err)
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	w.sheet = name
	w.row = 1
	return nil
}

// WriteHeader writes a bold header row on the current sheet.
func (w *Workbook) WriteHeader(columns []string) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, col); err != nil {
			return err
		}
	}
	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.row)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.row)
		_ = w.file.SetCellStyle(w.sheet, startCell, endCell, style)
	}
	w.row++
	return nil
}

// WriteRow appends a data row to the current sheet.
func (w *Workbook) WriteRow(row []interface{}) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

// Save writes the workbook to wr.
func (w *Workbook) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases the workbook's resources.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// BuildDayWorkbook renders one sheet per service window with the day's
// reservations, in start order within each sheet. Cancelled and no-show rows
// are kept; the status column tells them apart. The day note, when present,
// lands on the first sheet below the rows.
func BuildDayWorkbook(tt schedule.Timetable, details []models.ReservationDetail, note string) (*Workbook, error) {
	wb := NewWorkbook()

	for wi, win := range tt.Windows {
		if err := wb.AddSheet(win.Name); err != nil {
			wb.Close()
			return nil, err
		}
		if err := wb.WriteHeader(headerColumns); err != nil {
			wb.Close()
			return nil, err
		}
		for _, d := range details {
			w, ok := tt.WindowFor(d.StartTime)
			if !ok || w.Name != win.Name {
				continue
			}
			if err := wb.WriteRow(reservationRow(d)); err != nil {
				wb.Close()
				return nil, err
			}
		}
		if wi == 0 && note != "" {
			wb.row++
			if err := wb.WriteRow([]interface{}{"Notiz:", note}); err != nil {
				wb.Close()
				return nil, err
			}
		}
	}
	return wb, nil
}

func reservationRow(d models.ReservationDetail) []interface{} {
	tableNo := ""
	areaName := ""
	if d.Table != nil {
		tableNo = fmt.Sprintf("%d", d.Table.TableNumber)
	}
	if d.Area != nil {
		areaName = d.Area.Name
	}
	return []interface{}{
		d.StartTime.Format("15:04"),
		d.End().Format("15:04"),
		d.GuestName,
		d.Phone,
		d.PartySize,
		tableNo,
		areaName,
		d.Status,
		d.Notes,
	}
}
