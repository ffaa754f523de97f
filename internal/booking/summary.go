package booking

import (
	"context"
	"time"

	"tischplan/internal/models"
	"tischplan/internal/schedule"
)

// WindowTotal is the guest count of one service window on a day.
type WindowTotal struct {
	Window string `json:"window"`
	Guests int    `json:"guests"`
}

// DaySummary aggregates a day's expected guests. Unassigned reservations
// count; cancelled and no_show do not.
type DaySummary struct {
	Day          string        `json:"day"`
	TotalGuests  int           `json:"total_guests"`
	Reservations int           `json:"reservations"`
	Windows      []WindowTotal `json:"windows"`
	Note         string        `json:"note,omitempty"`
}

// Summarize computes the day's guest totals, per service window and overall,
// together with the day note.
func (s *Service) Summarize(ctx context.Context, day time.Time, areaID *int64) (*DaySummary, error) {
	details, err := s.store.ListReservationsForDay(ctx, day, areaID)
	if err != nil {
		return nil, err
	}
	note, err := s.store.GetDayNote(ctx, day)
	if err != nil {
		return nil, err
	}

	summary := DaySummary{Day: day.Format("2006-01-02"), Note: note}
	perWindow := make(map[string]int)
	for _, d := range details {
		if !d.IsActive() {
			continue
		}
		summary.TotalGuests += d.PartySize
		summary.Reservations++
		if w, ok := s.timetable.WindowFor(d.StartTime); ok {
			perWindow[w.Name] += d.PartySize
		}
	}
	for _, w := range s.timetable.Windows {
		summary.Windows = append(summary.Windows, WindowTotal{Window: w.Name, Guests: perWindow[w.Name]})
	}
	return &summary, nil
}

// TableOccupancy describes one table's seatings within a service window.
type TableOccupancy struct {
	Table    models.Table              `json:"table"`
	Seatings int                       `json:"seatings"`
	Current  *models.ReservationDetail `json:"current,omitempty"`
}

// TablePlan returns, for each active table of an area, how many seatings
// fall into the named service window on the day and which reservation is
// running at the reference instant.
func (s *Service) TablePlan(ctx context.Context, day time.Time, areaID int64, windowName string, now time.Time) ([]TableOccupancy, error) {
	var window *schedule.ServiceWindow
	for i := range s.timetable.Windows {
		if s.timetable.Windows[i].Name == windowName {
			window = &s.timetable.Windows[i]
			break
		}
	}
	if window == nil {
		return nil, &models.ValidationError{Field: "window", Reason: "unknown service window"}
	}
	winStart, winEnd, err := window.Bounds(day)
	if err != nil {
		return nil, err
	}

	tables, err := s.store.ListTables(ctx, areaID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.ListReservationsForDay(ctx, day, &areaID)
	if err != nil {
		return nil, err
	}

	byTable := make(map[int64][]models.ReservationDetail)
	for _, d := range details {
		if d.TableID == nil || !d.IsActive() {
			continue
		}
		if !schedule.Overlaps(d.StartTime, d.End(), winStart, winEnd) {
			continue
		}
		byTable[*d.TableID] = append(byTable[*d.TableID], d)
	}

	plan := make([]TableOccupancy, 0, len(tables))
	for _, t := range tables {
		occ := TableOccupancy{Table: t, Seatings: len(byTable[t.ID])}
		for i := range byTable[t.ID] {
			d := byTable[t.ID][i]
			// Seated right now, start inclusive and end exclusive.
			if !now.Before(d.StartTime) && now.Before(d.End()) {
				occ.Current = &d
				break
			}
		}
		plan = append(plan, occ)
	}
	return plan, nil
}
