package schedule

import (
	"time"
)

// SlotsForDay returns every selectable start instant on the given day:
// for each service window, the instants from window start to window end
// inclusive, stepping by the slot granularity. Recomputing for the same day
// yields the same sequence. An instant strictly after a window's end is
// never emitted; if the window length is not a multiple of the granularity,
// the last emitted instant is the boundary at or before the end.
func (t Timetable) SlotsForDay(day time.Time) ([]time.Time, error) {
	step := time.Duration(t.SlotMinutes) * time.Minute
	if step <= 0 {
		step = 15 * time.Minute
	}

	var slots []time.Time
	for _, w := range t.Windows {
		start, end, err := w.Bounds(day)
		if err != nil {
			return nil, err
		}
		for cursor := start; !cursor.After(end); cursor = cursor.Add(step) {
			slots = append(slots, cursor)
		}
	}
	return slots, nil
}
