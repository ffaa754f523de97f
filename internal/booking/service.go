// Package booking is the write path and operational facade of the seating
// engine: it validates input, enforces the service-window policy, drives the
// conflict-checked store transactions and publishes lifecycle events.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tischplan/internal/availability"
	"tischplan/internal/database"
	"tischplan/internal/events"
	"tischplan/internal/metrics"
	"tischplan/internal/models"
	"tischplan/internal/schedule"
)

// ErrInvalidTransition is returned when a status change is not permitted by
// the reservation state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the persistence collaborator of the service.
type Store interface {
	ListAreas(ctx context.Context) ([]models.Area, error)
	GetArea(ctx context.Context, id int64) (*models.Area, error)
	ListTables(ctx context.Context, areaID int64) ([]models.Table, error)
	GetTable(ctx context.Context, id int64) (*models.Table, error)

	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ListReservationsForDay(ctx context.Context, day time.Time, areaID *int64) ([]models.ReservationDetail, error)
	SearchReservationsByGuest(ctx context.Context, text string, limit int) ([]models.ReservationDetail, error)
	CreateReservation(ctx context.Context, r *models.Reservation, bufferMinutes int, idemKey string) error
	UpdateReservation(ctx context.Context, id, version int64, patch models.ReservationPatch, bufferMinutes int) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error

	GetDayNote(ctx context.Context, day time.Time) (string, error)
	UpsertDayNote(ctx context.Context, day time.Time, note string) error
}

// Finder answers advisory free-table queries.
type Finder interface {
	FindFreeTables(ctx context.Context, req availability.Request) (*availability.Result, error)
}

// EventPublisher receives reservation lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Rules are the house policies around a seating.
type Rules struct {
	BufferMinutes          int
	DefaultDurationMinutes int
	SearchLimit            int
}

// Service exposes the engine operations to collaborators.
type Service struct {
	store         Store
	finder        Finder
	bus           EventPublisher
	keys          *IdempotencyCache
	timetable     schedule.Timetable
	bufferMinutes int
	defaultDur    int
	searchLimit   int
	logger        *zerolog.Logger
}

// NewService wires the service. keys may be nil when no Redis is configured;
// the store-level key check still applies.
func NewService(store Store, finder Finder, bus EventPublisher, keys *IdempotencyCache,
	timetable schedule.Timetable, rules Rules, logger *zerolog.Logger) *Service {
	if rules.BufferMinutes < 0 {
		rules.BufferMinutes = 0
	}
	if rules.DefaultDurationMinutes <= 0 {
		rules.DefaultDurationMinutes = 120
	}
	if rules.SearchLimit <= 0 {
		rules.SearchLimit = 50
	}
	return &Service{
		store:         store,
		finder:        finder,
		bus:           bus,
		keys:          keys,
		timetable:     timetable,
		bufferMinutes: rules.BufferMinutes,
		defaultDur:    rules.DefaultDurationMinutes,
		searchLimit:   rules.SearchLimit,
		logger:        logger,
	}
}

// Timetable returns the service windows the engine runs on.
func (s *Service) Timetable() schedule.Timetable { return s.timetable }

// ListAreas returns all seating areas in display order.
func (s *Service) ListAreas(ctx context.Context) ([]models.Area, error) {
	return s.store.ListAreas(ctx)
}

// ListTables returns the active tables of an area ordered by table number.
func (s *Service) ListTables(ctx context.Context, areaID int64) ([]models.Table, error) {
	return s.store.ListTables(ctx, areaID)
}

// ListReservations returns the reservations starting on the given calendar
// day, optionally narrowed to one area.
func (s *Service) ListReservations(ctx context.Context, day time.Time, areaID *int64) ([]models.ReservationDetail, error) {
	return s.store.ListReservationsForDay(ctx, day, areaID)
}

// GetReservation returns one reservation by ID.
func (s *Service) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// SearchReservations finds reservations by guest name substring, newest
// first. A blank query yields no rows.
func (s *Service) SearchReservations(ctx context.Context, text string, limit int) ([]models.ReservationDetail, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if limit <= 0 || limit > s.searchLimit {
		limit = s.searchLimit
	}
	return s.store.SearchReservationsByGuest(ctx, text, limit)
}

// FindFreeTables runs the advisory availability query. The write path
// re-checks, so a free table here is a suggestion, not a hold.
func (s *Service) FindFreeTables(ctx context.Context, req availability.Request) (*availability.Result, error) {
	metrics.IncAvailabilityQuery()
	// Zero means absent here; an explicit buffer of 0 is passed by the
	// caller resolving the default first. Negative values fail validation
	// in the resolver.
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.defaultDur
	}
	return s.finder.FindFreeTables(ctx, req)
}

// DefaultBuffer returns the configured turnaround buffer in minutes.
func (s *Service) DefaultBuffer() int { return s.bufferMinutes }

// Slots returns the selectable start instants for a calendar day.
func (s *Service) Slots(day time.Time) ([]time.Time, error) {
	return s.timetable.SlotsForDay(day)
}

// CreateRequest carries the fields of a new reservation. TableID nil creates
// the reservation unassigned. IdempotencyKey, when set, makes retries safe:
// a repeated create with the same key returns the original reservation.
type CreateRequest struct {
	GuestName       string
	Phone           string
	PartySize       int
	Start           time.Time
	DurationMinutes int
	Status          string
	Notes           string
	AreaID          int64
	TableID         *int64
	FallbackAreaID  *int64
	IdempotencyKey  string
}

// CreateReservation validates and persists a new reservation. With a table
// assigned, the store re-runs the conflict check inside the insert
// transaction; on conflict nothing is written and ErrTableUnavailable is
// returned for the caller to re-query and pick another table or time.
func (s *Service) CreateReservation(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	if req.Status == "" {
		req.Status = models.StatusConfirmed
	}
	// Only an absent duration gets the default; a negative one must reach
	// Validate and be rejected.
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.defaultDur
	}

	r := models.Reservation{
		GuestName:       strings.TrimSpace(req.GuestName),
		Phone:           strings.TrimSpace(req.Phone),
		PartySize:       req.PartySize,
		StartTime:       req.Start,
		DurationMinutes: req.DurationMinutes,
		Status:          req.Status,
		Notes:           req.Notes,
		AreaID:          req.AreaID,
		TableID:         req.TableID,
		FallbackAreaID:  req.FallbackAreaID,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !s.timetable.Fits(r.StartTime, r.DurationMinutes, s.bufferMinutes) {
		return nil, availability.ErrOutsideServiceHours
	}

	// With a table chosen, the owning area is authoritative.
	if req.TableID != nil {
		table, err := s.store.GetTable(ctx, *req.TableID)
		if err != nil {
			return nil, err
		}
		r.AreaID = table.AreaID
	} else {
		if _, err := s.store.GetArea(ctx, r.AreaID); err != nil {
			return nil, err
		}
	}

	// Fast replay path; the store's key column is the authoritative guard.
	if req.IdempotencyKey != "" {
		if id, ok := s.keys.Lookup(ctx, req.IdempotencyKey); ok {
			existing, err := s.store.GetReservation(ctx, id)
			if err == nil {
				s.logger.Info().Int64("reservation_id", id).Str("key", req.IdempotencyKey).
					Msg("create replayed from idempotency key")
				return existing, nil
			}
		}
	}

	if err := s.store.CreateReservation(ctx, &r, s.bufferMinutes, req.IdempotencyKey); err != nil {
		if isConflict(err) {
			metrics.IncReservationConflict()
		}
		return nil, err
	}

	s.keys.Remember(ctx, req.IdempotencyKey, r.ID)
	metrics.IncReservationCreated(r.Status)
	if err := s.bus.PublishJSON(events.TypeReservationCreated, &r); err != nil {
		s.logger.Warn().Err(err).Msg("publish reservation_created failed")
	}
	s.logger.Info().Int64("reservation_id", r.ID).Str("guest", r.GuestName).
		Time("start", r.StartTime).Msg("reservation created")
	return &r, nil
}

// UpdateReservation applies a partial edit. Changes to the table, start time
// or duration re-trigger the conflict check with the reservation's own prior
// interval excluded; status changes go through the state machine.
func (s *Service) UpdateReservation(ctx context.Context, id int64, patch models.ReservationPatch) (*models.Reservation, error) {
	current, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil && *patch.Status != current.Status {
		if !models.CanTransition(current.Status, *patch.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *patch.Status)
		}
	}
	if err := validatePatch(current, patch); err != nil {
		return nil, err
	}

	if patch.TouchesSchedule() {
		start, duration := current.StartTime, current.DurationMinutes
		if patch.StartTime != nil {
			start = *patch.StartTime
		}
		if patch.DurationMinutes != nil {
			duration = *patch.DurationMinutes
		}
		if !s.timetable.Fits(start, duration, s.bufferMinutes) {
			return nil, availability.ErrOutsideServiceHours
		}
		if patch.SetTable && patch.TableID != nil {
			table, err := s.store.GetTable(ctx, *patch.TableID)
			if err != nil {
				return nil, err
			}
			area := table.AreaID
			patch.AreaID = &area
		}
	}

	updated, err := s.store.UpdateReservation(ctx, id, current.Version, patch, s.bufferMinutes)
	if err != nil {
		if isConflict(err) {
			metrics.IncReservationConflict()
		}
		return nil, err
	}

	eventType := events.TypeReservationUpdated
	if patch.Status != nil {
		metrics.IncStatusTransition(*patch.Status)
		if *patch.Status == models.StatusCancelled || *patch.Status == models.StatusNoShow {
			eventType = events.TypeReservationCancelled
		}
	}
	if err := s.bus.PublishJSON(eventType, updated); err != nil {
		s.logger.Warn().Err(err).Msg("publish reservation update failed")
	}
	return updated, nil
}

// DeleteReservation removes a reservation entirely; its table becomes free
// immediately.
func (s *Service) DeleteReservation(ctx context.Context, id int64) error {
	if err := s.store.DeleteReservation(ctx, id); err != nil {
		return err
	}
	if err := s.bus.PublishJSON(events.TypeReservationDeleted, map[string]int64{"id": id}); err != nil {
		s.logger.Warn().Err(err).Msg("publish reservation_deleted failed")
	}
	return nil
}

// DayNote returns the staff note for a calendar day.
func (s *Service) DayNote(ctx context.Context, day time.Time) (string, error) {
	return s.store.GetDayNote(ctx, day)
}

// SetDayNote stores the staff note for a calendar day.
func (s *Service) SetDayNote(ctx context.Context, day time.Time, note string) error {
	return s.store.UpsertDayNote(ctx, day, note)
}

func validatePatch(current *models.Reservation, patch models.ReservationPatch) error {
	if patch.GuestName != nil && strings.TrimSpace(*patch.GuestName) == "" {
		return &models.ValidationError{Field: "guest_name", Reason: "must not be empty"}
	}
	if patch.PartySize != nil && *patch.PartySize < 1 {
		return &models.ValidationError{Field: "party_size", Reason: "must be at least 1"}
	}
	if patch.DurationMinutes != nil && *patch.DurationMinutes <= 0 {
		return &models.ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	if patch.StartTime != nil && patch.StartTime.IsZero() {
		return &models.ValidationError{Field: "start_time", Reason: "must be set"}
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, database.ErrTableUnavailable)
}
