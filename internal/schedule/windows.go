// Package schedule defines the service windows of a restaurant day, the
// selectable start-time slots derived from them, and the interval overlap
// predicate used by all conflict checks.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServiceWindow is a named time-of-day range during which seatings are
// accepted, e.g. "Mittag" 11:30-14:00. Times are "HH:MM" wall-clock strings
// combined with a calendar day to produce absolute instants.
type ServiceWindow struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Bounds returns the absolute start and end instants of the window on the
// given calendar day.
func (w ServiceWindow) Bounds(day time.Time) (start, end time.Time, err error) {
	start, err = TimeOnDate(day, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window %q start: %w", w.Name, err)
	}
	end, err = TimeOnDate(day, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("window %q end: %w", w.Name, err)
	}
	return start, end, nil
}

// Timetable holds the configured service windows and the slot granularity.
// Windows are processed in their configured order and are expected not to
// overlap each other.
type Timetable struct {
	Windows     []ServiceWindow
	SlotMinutes int
}

// Fits reports whether a seating starting at start and occupying the table
// for durationMinutes plus bufferMinutes lies entirely inside one of the
// configured windows on that same day.
func (t Timetable) Fits(start time.Time, durationMinutes, bufferMinutes int) bool {
	end := start.Add(time.Duration(durationMinutes+bufferMinutes) * time.Minute)
	for _, w := range t.Windows {
		winStart, winEnd, err := w.Bounds(start)
		if err != nil {
			continue
		}
		if !start.Before(winStart) && !end.After(winEnd) {
			return true
		}
	}
	return false
}

// WindowFor returns the window containing the instant, or false if the
// instant falls outside every window on its day.
func (t Timetable) WindowFor(at time.Time) (ServiceWindow, bool) {
	for _, w := range t.Windows {
		winStart, winEnd, err := w.Bounds(at)
		if err != nil {
			continue
		}
		if !at.Before(winStart) && at.Before(winEnd) {
			return w, true
		}
	}
	return ServiceWindow{}, false
}

// TimeOnDate combines a calendar day with an "HH:MM" time of day.
func TimeOnDate(day time.Time, hhmm string) (time.Time, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", hhmm)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute: %w", err)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("time of day out of range: %s", hhmm)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), nil
}
