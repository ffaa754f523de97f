package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tischplan/internal/availability"
	"tischplan/internal/export"
	"tischplan/internal/metrics"
)

// AvailabilityRequest is the request body for POST /api/availability.
// area_id 0 queries every area.
type AvailabilityRequest struct {
	AreaID               int64  `json:"area_id,omitempty"`
	StartTime            string `json:"start_time"` // RFC 3339
	PartySize            int    `json:"party_size"`
	DurationMinutes      int    `json:"duration_minutes,omitempty"`
	BufferMinutes        *int   `json:"buffer_minutes,omitempty"` // nil defaults; 0 disables the buffer
	ExcludeReservationID int64  `json:"exclude_reservation_id,omitempty"`
}

// handleAvailability returns the free tables for a candidate seating.
// POST /api/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req AvailabilityRequest
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

	buffer := s.svc.DefaultBuffer()
	if req.BufferMinutes != nil {
		buffer = *req.BufferMinutes
	}

	result, err := s.svc.FindFreeTables(r.Context(), availability.Request{
		AreaID:               req.AreaID,
		Start:                start,
		PartySize:            req.PartySize,
		DurationMinutes:      req.DurationMinutes,
		BufferMinutes:        buffer,
		ExcludeReservationID: req.ExcludeReservationID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSlots returns the selectable start instants of a day.
// GET /api/slots?day=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	day, err := parseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day format; expected YYYY-MM-DD")
		return
	}
	slots, err := s.svc.Slots(day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	formatted := make([]string, len(slots))
	for i, slot := range slots {
		formatted[i] = slot.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": formatted})
}

// handleDay dispatches the day-scoped subresources.
// GET /api/days/{day}/note        PUT /api/days/{day}/note
// GET /api/days/{day}/summary?area_id=N
// GET /api/days/{day}/plan?area_id=N&window=Name&at=RFC3339
// GET /api/days/{day}/export
func (s *HTTPServer) handleDay(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/days/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	day, err := parseDay(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day format; expected YYYY-MM-DD")
		return
	}

	switch parts[1] {
	case "note":
		s.handleDayNote(w, r, day)
	case "summary":
		s.handleDaySummary(w, r, day)
	case "plan":
		s.handleTablePlan(w, r, day)
	case "export":
		s.handleDayExport(w, r, day)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleDayNote(w http.ResponseWriter, r *http.Request, day time.Time) {
	metrics.IncHTTP("day_note")
	switch r.Method {
	case http.MethodGet:
		note, err := s.svc.DayNote(r.Context(), day)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"note": note})
	case http.MethodPut:
		var body struct {
			Note string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.svc.SetDayNote(r.Context(), day, body.Note); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleDaySummary(w http.ResponseWriter, r *http.Request, day time.Time) {
	metrics.IncHTTP("day_summary")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
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
	summary, err := s.svc.Summarize(r.Context(), day, areaID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleTablePlan(w http.ResponseWriter, r *http.Request, day time.Time) {
	metrics.IncHTTP("table_plan")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	areaID, err := strconv.ParseInt(r.URL.Query().Get("area_id"), 10, 64)
	if err != nil || areaID <= 0 {
		writeError(w, http.StatusBadRequest, "area_id is required")
		return
	}
	window := r.URL.Query().Get("window")
	if window == "" {
		writeError(w, http.StatusBadRequest, "window is required")
		return
	}
	at := time.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at; expected RFC 3339")
			return
		}
	}
	plan, err := s.svc.TablePlan(r.Context(), day, areaID, window, at)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": plan})
}

func (s *HTTPServer) handleDayExport(w http.ResponseWriter, r *http.Request, day time.Time) {
	metrics.IncHTTP("day_export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	details, err := s.svc.ListReservations(r.Context(), day, nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	note, err := s.svc.DayNote(r.Context(), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	wb, err := export.BuildDayWorkbook(s.svc.Timetable(), details, note)
	if err != nil {
		s.log.Error().Err(err).Msg("build day workbook failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	defer wb.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(day)+`"`)
	if err := wb.Save(w); err != nil {
		s.log.Error().Err(err).Msg("write day workbook failed")
	}
}
