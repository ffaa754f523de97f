package schedule

import "time"

// Overlaps reports whether two half-open intervals [startA, endA) and
// [startB, endB) intersect. Intervals that merely touch at a boundary
// (endA == startB) do not overlap.
//
// Every conflict check in the engine goes through this predicate; interval
// math is not reimplemented at call sites.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && endA.After(startB)
}
