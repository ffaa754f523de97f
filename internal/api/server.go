package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tischplan/internal/availability"
	"tischplan/internal/booking"
	"tischplan/internal/database"
	"tischplan/internal/models"
)

// HTTPServer serves the reservation API.
type HTTPServer struct {
	svc     *booking.Service
	log     *zerolog.Logger
	limiter *rate.Limiter
	srv     *http.Server
}

// NewHTTPServer builds the API server on addr. ratePerSecond and burst bound
// the request rate across all clients; requestTimeout caps handler time.
func NewHTTPServer(addr string, svc *booking.Service, ratePerSecond float64, burst int,
	requestTimeout time.Duration, logger *zerolog.Logger) *HTTPServer {
	if ratePerSecond <= 0 {
		ratePerSecond = 50
	}
	if burst <= 0 {
		burst = 100
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	s := &HTTPServer{
		svc:     svc,
		log:     logger,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/areas", s.handleAreas)
	mux.HandleFunc("/api/tables", s.handleTables)
	mux.HandleFunc("/api/reservations", s.handleReservations)
	mux.HandleFunc("/api/reservations/", s.handleReservationByID)
	mux.HandleFunc("/api/availability", s.handleAvailability)
	mux.HandleFunc("/api/slots", s.handleSlots)
	mux.HandleFunc("/api/days/", s.handleDay)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.middleware(http.TimeoutHandler(mux, requestTimeout, "request timed out")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
	}
	return s
}

// Start blocks serving requests until the server is shut down.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("HTTP API listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// middleware applies rate limiting and request-ID logging to every request.
func (s *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		s.log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, availability.ErrOutsideServiceHours):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrTableUnavailable),
		errors.Is(err, database.ErrInactiveTable),
		errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseDay(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", value, time.Local)
}
