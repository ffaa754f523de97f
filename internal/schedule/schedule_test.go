package schedule

import (
	"testing"
	"time"
)

var testWindows = []ServiceWindow{
	{Name: "Mittag", Start: "11:30", End: "14:00"},
	{Name: "Abend", Start: "17:00", End: "22:30"},
}

func day() time.Time {
	return time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
}

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	ts, err := TimeOnDate(day(), hhmm)
	if err != nil {
		t.Fatalf("TimeOnDate(%s): %v", hhmm, err)
	}
	return ts
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		aStart   string
		aEnd     string
		bStart   string
		bEnd     string
		expected bool
	}{
		{"identical", "10:00", "11:00", "10:00", "11:00", true},
		{"contained", "10:00", "12:00", "10:30", "11:00", true},
		{"partial", "10:00", "11:00", "10:30", "11:30", true},
		{"touching at boundary", "10:00", "11:00", "11:00", "12:00", false},
		{"disjoint", "10:00", "11:00", "12:00", "13:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aS, aE := at(t, tt.aStart), at(t, tt.aEnd)
			bS, bE := at(t, tt.bStart), at(t, tt.bEnd)

			if got := Overlaps(aS, aE, bS, bE); got != tt.expected {
				t.Errorf("Overlaps = %v, want %v", got, tt.expected)
			}
			// Symmetry must hold for every pair.
			if got := Overlaps(bS, bE, aS, aE); got != tt.expected {
				t.Errorf("Overlaps reversed = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestOverlapsSelf(t *testing.T) {
	s, e := at(t, "19:00"), at(t, "21:00")
	if !Overlaps(s, e, s, e) {
		t.Error("non-empty interval must overlap itself")
	}
}

func TestSlotsForDay(t *testing.T) {
	tests := []struct {
		name        string
		windows     []ServiceWindow
		slotMinutes int
		count       int
		first       string
		last        string
	}{
		{
			name:        "lunch window 15 min",
			windows:     []ServiceWindow{{Name: "Mittag", Start: "11:30", End: "14:00"}},
			slotMinutes: 15,
			count:       11,
			first:       "11:30",
			last:        "14:00",
		},
		{
			name:        "both windows",
			windows:     testWindows,
			slotMinutes: 15,
			count:       11 + 23, // 17:00..22:30 inclusive = 23
			first:       "11:30",
			last:        "22:30",
		},
		{
			name:        "end not a multiple of granularity",
			windows:     []ServiceWindow{{Name: "Brunch", Start: "10:00", End: "11:10"}},
			slotMinutes: 30,
			count:       3, // 10:00, 10:30, 11:00
			first:       "10:00",
			last:        "11:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Timetable{Windows: tt.windows, SlotMinutes: tt.slotMinutes}
			slots, err := tbl.SlotsForDay(day())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(slots) != tt.count {
				t.Fatalf("expected %d slots, got %d", tt.count, len(slots))
			}
			if got := slots[0].Format("15:04"); got != tt.first {
				t.Errorf("first slot = %s, want %s", got, tt.first)
			}
			if got := slots[len(slots)-1].Format("15:04"); got != tt.last {
				t.Errorf("last slot = %s, want %s", got, tt.last)
			}
		})
	}
}

func TestSlotsForDayDeterministic(t *testing.T) {
	tbl := Timetable{Windows: testWindows, SlotMinutes: 15}
	a, err := tbl.SlotsForDay(day())
	if err != nil {
		t.Fatal(err)
	}
	b, err := tbl.SlotsForDay(day())
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Errorf("slot %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestFits(t *testing.T) {
	tbl := Timetable{Windows: testWindows, SlotMinutes: 15}

	tests := []struct {
		name     string
		start    string
		duration int
		buffer   int
		expected bool
	}{
		{"fits lunch exactly", "11:30", 150, 0, true},
		{"fits dinner with buffer", "19:00", 120, 15, true},
		{"duration spills past window end", "13:00", 90, 0, false},
		{"buffer spills past window end", "21:30", 60, 15, false},
		{"before opening", "09:00", 60, 0, false},
		{"between windows", "15:00", 60, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.Fits(at(t, tt.start), tt.duration, tt.buffer); got != tt.expected {
				t.Errorf("Fits(%s, %d, %d) = %v, want %v", tt.start, tt.duration, tt.buffer, got, tt.expected)
			}
		})
	}
}

func TestWindowFor(t *testing.T) {
	tbl := Timetable{Windows: testWindows, SlotMinutes: 15}

	w, ok := tbl.WindowFor(at(t, "12:00"))
	if !ok || w.Name != "Mittag" {
		t.Errorf("expected Mittag window, got %v ok=%v", w.Name, ok)
	}

	// Window end is exclusive.
	if _, ok := tbl.WindowFor(at(t, "14:00")); ok {
		t.Error("14:00 should fall outside the lunch window")
	}

	if _, ok := tbl.WindowFor(at(t, "16:00")); ok {
		t.Error("16:00 should fall outside every window")
	}
}

func TestTimeOnDate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"11:30", false},
		{"00:00", false},
		{"23:59", false},
		{"24:00", true},
		{"12:60", true},
		{"noon", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := TimeOnDate(day(), tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("TimeOnDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
