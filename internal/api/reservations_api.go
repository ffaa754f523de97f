package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tischplan/internal/booking"
	"tischplan/internal/metrics"
	"tischplan/internal/models"
)

// ReservationRequest is the request body for POST /api/reservations.
type ReservationRequest struct {
	GuestName       string `json:"guest_name"`
	Phone           string `json:"phone,omitempty"`
	PartySize       int    `json:"party_size"`
	StartTime       string `json:"start_time"` // RFC 3339
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Status          string `json:"status,omitempty"`
	Notes           string `json:"notes,omitempty"`
	AreaID          int64  `json:"area_id"`
	TableID         *int64 `json:"table_id,omitempty"`
	FallbackAreaID  *int64 `json:"fallback_area_id,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// ReservationPatchRequest is the request body for PATCH
// /api/reservations/{id}. Absent fields stay untouched; "table_id": null
// unassigns the table.
type ReservationPatchRequest struct {
	GuestName       *string `json:"guest_name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	PartySize       *int    `json:"party_size,omitempty"`
	StartTime       *string `json:"start_time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Status          *string `json:"status,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	TableID         *int64  `json:"table_id,omitempty"`
}

// handleAreas returns all seating areas.
// GET /api/areas
func (s *HTTPServer) handleAreas(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("areas")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	areas, err := s.svc.ListAreas(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list areas failed")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas})
}

// handleTables returns the active tables of one area.
// GET /api/tables?area_id=N
func (s *HTTPServer) handleTables(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("tables")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	areaID, err := strconv.ParseInt(r.URL.Query().Get("area_id"), 10, 64)
	if err != nil || areaID <= 0 {
		writeError(w, http.StatusBadRequest, "area_id is required")
		return
	}
	tables, err := s.svc.ListTables(r.Context(), areaID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// handleReservations lists a day's reservations, searches by guest name, or
// creates a reservation.
// GET /api/reservations?day=YYYY-MM-DD&area_id=N
// GET /api/reservations?q=name&limit=N
// POST /api/reservations
func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations")
	switch r.Method {
	case http.MethodGet:
		if q := r.URL.Query().Get("q"); q != "" {
			s.searchReservations(w, r, q)
			return
		}
		s.listReservations(w, r)
	case http.MethodPost:
		s.createReservation(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listReservations(w http.ResponseWriter, r *http.Request) {
	dayStr := r.URL.Query().Get("day")
	if dayStr == "" {
		writeError(w, http.StatusBadRequest, "day is required; expected YYYY-MM-DD")
		return
	}
	day, err := parseDay(dayStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day format; expected YYYY-MM-DD")
		return
	}
	var areaID *int64
	if v := r.URL.Query().Get("area_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid area_id")
			return
		}
		areaID = &id
	}
	details, err := s.svc.ListReservations(r.Context(), day, areaID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": details})
}

func (s *HTTPServer) searchReservations(w http.ResponseWriter, r *http.Request, query string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	details, err := s.svc.SearchReservations(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if details == nil {
		details = []models.ReservationDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": details})
}

func (s *HTTPServer) createReservation(w http.ResponseWriter, r *http.Request) {
	var req ReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected RFC 3339")
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	created, err := s.svc.CreateReservation(r.Context(), booking.CreateRequest{
		GuestName:       req.GuestName,
		Phone:           req.Phone,
		PartySize:       req.PartySize,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Status:          req.Status,
		Notes:           req.Notes,
		AreaID:          req.AreaID,
		TableID:         req.TableID,
		FallbackAreaID:  req.FallbackAreaID,
		IdempotencyKey:  key,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleReservationByID updates or deletes one reservation.
// GET    /api/reservations/{id}
// PATCH  /api/reservations/{id}
// DELETE /api/reservations/{id}
func (s *HTTPServer) handleReservationByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservation")
	const prefix = "/api/reservations/"
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		reservation, err := s.svc.GetReservation(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reservation)
	case http.MethodPatch:
		s.patchReservation(w, r, id)
	case http.MethodDelete:
		if err := s.svc.DeleteReservation(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// patchFields are the accepted PATCH body keys. Decoding through a raw map
// loses DisallowUnknownFields, so the keys are checked by hand.
var patchFields = map[string]bool{
	"guest_name": true, "phone": true, "party_size": true,
	"start_time": true, "duration_minutes": true, "status": true,
	"notes": true, "table_id": true,
}

func (s *HTTPServer) patchReservation(w http.ResponseWriter, r *http.Request, id int64) {
	// Field presence matters for table_id: absent keeps the table, null
	// unassigns it. Decode the raw keys first.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for key := range raw {
		if !patchFields[key] {
			writeError(w, http.StatusBadRequest, "unknown field: "+key)
			return
		}
	}
	var req ReservationPatchRequest
	merged, _ := json.Marshal(raw)
	if err := json.Unmarshal(merged, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := models.ReservationPatch{
		GuestName:       req.GuestName,
		Phone:           req.Phone,
		PartySize:       req.PartySize,
		DurationMinutes: req.DurationMinutes,
		Status:          req.Status,
		Notes:           req.Notes,
	}
	if req.StartTime != nil {
		start, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time; expected RFC 3339")
			return
		}
		patch.StartTime = &start
	}
	if _, ok := raw["table_id"]; ok {
		patch.SetTable = true
		patch.TableID = req.TableID
	}

	updated, err := s.svc.UpdateReservation(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
