// Package models defines the seating records: areas, tables and
// reservations, together with the reservation status machine and field
// validation.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Reservation statuses.
const (
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusArrived   = "arrived"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// ActiveStatuses are the statuses that occupy a table. Cancelled and no_show
// reservations free their table immediately.
var ActiveStatuses = []string{StatusRequested, StatusConfirmed, StatusArrived}

// Area is a seating zone containing tables.
type Area struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SortOrder int64  `json:"sort_order"`
}

// Table is a physical table belonging to exactly one area. Inactive tables
// are excluded from availability but keep their historical reservations.
type Table struct {
	ID          int64 `json:"id"`
	AreaID      int64 `json:"area_id"`
	TableNumber int   `json:"table_number"`
	Seats       int   `json:"seats"`
	Active      bool  `json:"active"`
}

// Reservation is a booking record. TableID is nil while the reservation is
// unassigned; an unassigned reservation never participates in the per-table
// overlap invariant but still counts toward day guest totals.
type Reservation struct {
	ID              int64     `json:"id"`
	GuestName       string    `json:"guest_name"`
	Phone           string    `json:"phone,omitempty"`
	PartySize       int       `json:"party_size"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	AreaID          int64     `json:"area_id"`
	TableID         *int64    `json:"table_id,omitempty"`
	FallbackAreaID  *int64    `json:"fallback_area_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// ReservationDetail is a reservation joined with its optional table and the
// owning area, as returned by day listings and guest search.
type ReservationDetail struct {
	Reservation
	Table *Table `json:"table,omitempty"`
	Area  *Area  `json:"area,omitempty"`
}

// End returns the booked end instant (without buffer).
func (r *Reservation) End() time.Time {
	return r.StartTime.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// EffectiveEnd returns the end of the reservation's effective interval:
// start + duration + buffer. The buffer is a conflict-check parameter, it is
// never stored on the record.
func (r *Reservation) EffectiveEnd(bufferMinutes int) time.Time {
	return r.StartTime.Add(time.Duration(r.DurationMinutes+bufferMinutes) * time.Minute)
}

// IsActive reports whether the reservation currently occupies its table.
func (r *Reservation) IsActive() bool {
	return IsActiveStatus(r.Status)
}

// IsActiveStatus reports whether a status counts toward table occupancy.
func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status permits no further transitions.
func IsTerminalStatus(status string) bool {
	return status == StatusCancelled || status == StatusNoShow
}

// CanTransition reports whether a status change is allowed:
// requested/confirmed/arrived may move to cancelled or no_show (terminal),
// confirmed and arrived may move between each other, and requested may be
// confirmed. Nothing leaves a terminal status.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if IsTerminalStatus(from) {
		return false
	}
	switch to {
	case StatusCancelled, StatusNoShow:
		return IsActiveStatus(from)
	case StatusConfirmed:
		return from == StatusRequested || from == StatusArrived
	case StatusArrived:
		return from == StatusConfirmed || from == StatusRequested
	default:
		return false
	}
}

// ValidationError describes invalid caller input on a single field. It is
// raised before any store access and is fully recoverable by correcting the
// input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the field constraints of a reservation about to be
// written.
func (r *Reservation) Validate() error {
	if strings.TrimSpace(r.GuestName) == "" {
		return &ValidationError{Field: "guest_name", Reason: "must not be empty"}
	}
	if r.PartySize < 1 {
		return &ValidationError{Field: "party_size", Reason: "must be at least 1"}
	}
	if r.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if r.StartTime.IsZero() {
		return &ValidationError{Field: "start_time", Reason: "must be set"}
	}
	if r.Status == "" {
		return &ValidationError{Field: "status", Reason: "must be set"}
	}
	if r.Status != StatusRequested && r.Status != StatusConfirmed {
		return &ValidationError{Field: "status", Reason: "new reservations start as requested or confirmed"}
	}
	if r.AreaID == 0 {
		return &ValidationError{Field: "area_id", Reason: "must reference an area"}
	}
	return nil
}

// ReservationPatch is a partial update for a reservation. Nil pointers leave
// the field untouched. SetTable distinguishes "do not touch the table" from
// "unassign" (SetTable true with TableID nil).
type ReservationPatch struct {
	GuestName       *string
	Phone           *string
	PartySize       *int
	StartTime       *time.Time
	DurationMinutes *int
	Status          *string
	Notes           *string
	AreaID          *int64
	SetTable        bool
	TableID         *int64
}

// TouchesSchedule reports whether applying the patch changes the table,
// start time or duration, which requires the write path to re-run the
// conflict check.
func (p *ReservationPatch) TouchesSchedule() bool {
	return p.SetTable || p.StartTime != nil || p.DurationMinutes != nil
}
