// Package availability computes which tables are free for a candidate
// seating. Results are advisory: the authoritative conflict check runs again
// inside the write transaction.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tischplan/internal/models"
	"tischplan/internal/schedule"
)

// ErrOutsideServiceHours is returned when the candidate start plus duration
// and buffer does not fit inside any configured service window. It is
// distinct from an empty result so callers can tell "no tables" from
// "invalid time".
var ErrOutsideServiceHours = errors.New("outside service hours")

// lookback bounds the coarse prefilter for earlier seatings that may still
// run into the candidate interval. No seating lasts a full day.
const lookback = 24 * time.Hour

// Store is the read-side of the reservation store the resolver queries.
type Store interface {
	GetArea(ctx context.Context, id int64) (*models.Area, error)
	ListAreas(ctx context.Context) ([]models.Area, error)
	ListTables(ctx context.Context, areaID int64) ([]models.Table, error)
	ActiveReservationsForArea(ctx context.Context, areaID int64, windowStart, windowEnd time.Time) ([]models.Reservation, error)
}

// Request describes a candidate seating. AreaID 0 means "any area".
// ExcludeReservationID removes the reservation being edited from the
// conflict set so it never conflicts with itself.
type Request struct {
	AreaID               int64
	Start                time.Time
	PartySize            int
	DurationMinutes      int
	BufferMinutes        int
	ExcludeReservationID int64
}

// AreaFailure records an area whose lookup failed during an any-area query.
type AreaFailure struct {
	AreaID int64
	Err    error
}

// Result is a ranked set of free tables. In any-area mode FailedAreas lists
// the areas that could not be queried; their tables are simply absent.
type Result struct {
	Tables      []models.Table
	FailedAreas []AreaFailure
}

// Resolver answers free-table queries against the store and the configured
// service windows.
type Resolver struct {
	store     Store
	timetable schedule.Timetable
	logger    *zerolog.Logger
}

func New(store Store, timetable schedule.Timetable, logger *zerolog.Logger) *Resolver {
	return &Resolver{store: store, timetable: timetable, logger: logger}
}

// FindFreeTables returns the active tables that seat the party and have no
// active reservation overlapping the candidate's effective interval, ranked
// smallest adequate table first, then by table number. The call is read-only
// and repeatable.
func (rs *Resolver) FindFreeTables(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if !rs.timetable.Fits(req.Start, req.DurationMinutes, req.BufferMinutes) {
		return nil, ErrOutsideServiceHours
	}

	candEnd := req.Start.Add(time.Duration(req.DurationMinutes+req.BufferMinutes) * time.Minute)

	var result Result
	seen := make(map[int64]bool)

	if req.AreaID != 0 {
		if _, err := rs.store.GetArea(ctx, req.AreaID); err != nil {
			return nil, err
		}
		tables, err := rs.freeTablesInArea(ctx, req.AreaID, req, candEnd)
		if err != nil {
			return nil, err
		}
		appendUnseen(&result.Tables, tables, seen)
	} else {
		areas, err := rs.store.ListAreas(ctx)
		if err != nil {
			return nil, fmt.Errorf("list areas: %w", err)
		}
		for _, area := range areas {
			tables, err := rs.freeTablesInArea(ctx, area.ID, req, candEnd)
			if err != nil {
				// One failing area must not abort the others; the caller
				// sees the gap in FailedAreas.
				rs.logger.Warn().Err(err).Int64("area_id", area.ID).Msg("area availability lookup failed")
				result.FailedAreas = append(result.FailedAreas, AreaFailure{AreaID: area.ID, Err: err})
				continue
			}
			appendUnseen(&result.Tables, tables, seen)
		}
	}

	rank(result.Tables)
	return &result, nil
}

func (rs *Resolver) freeTablesInArea(ctx context.Context, areaID int64, req Request, candEnd time.Time) ([]models.Table, error) {
	tables, err := rs.store.ListTables(ctx, areaID)
	if err != nil {
		return nil, err
	}

	reservations, err := rs.store.ActiveReservationsForArea(ctx, areaID, req.Start.Add(-lookback), candEnd)
	if err != nil {
		return nil, err
	}

	busy := make(map[int64]bool)
	for _, r := range reservations {
		if r.TableID == nil || r.ID == req.ExcludeReservationID {
			continue
		}
		if schedule.Overlaps(req.Start, candEnd, r.StartTime, r.EffectiveEnd(req.BufferMinutes)) {
			busy[*r.TableID] = true
		}
	}

	var free []models.Table
	for _, t := range tables {
		if t.Seats < req.PartySize || busy[t.ID] {
			continue
		}
		free = append(free, t)
	}
	return free, nil
}

// rank orders by ascending seat capacity so the smallest adequate table
// comes first, with table number as the deterministic tie-break.
func rank(tables []models.Table) {
	sort.SliceStable(tables, func(i, j int) bool {
		if tables[i].Seats != tables[j].Seats {
			return tables[i].Seats < tables[j].Seats
		}
		return tables[i].TableNumber < tables[j].TableNumber
	})
}

func appendUnseen(dst *[]models.Table, tables []models.Table, seen map[int64]bool) {
	for _, t := range tables {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		*dst = append(*dst, t)
	}
}

func validate(req Request) error {
	if req.PartySize < 1 {
		return &models.ValidationError{Field: "party_size", Reason: "must be at least 1"}
	}
	if req.DurationMinutes <= 0 {
		return &models.ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if req.BufferMinutes < 0 {
		return &models.ValidationError{Field: "buffer_minutes", Reason: "must not be negative"}
	}
	if req.Start.IsZero() {
		return &models.ValidationError{Field: "start", Reason: "must be set"}
	}
	return nil
}
