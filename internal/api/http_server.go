package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"barberbook/internal/config"
	"barberbook/internal/domain"
	"barberbook/internal/lifecycle"
	"barberbook/internal/models"
	"barberbook/internal/store"
	"barberbook/internal/timeofday"

	"github.com/rs/zerolog"
)

// AppointmentService is what the HTTP layer needs from the core.
type AppointmentService interface {
	Filtered(ctx context.Context, actor store.Actor, f store.Filter, now time.Time) ([]models.Appointment, error)
	RequestTransition(ctx context.Context, actor store.Actor, id int64, ev lifecycle.Event, p lifecycle.Payload, now time.Time) (models.Appointment, error)
	Book(ctx context.Context, req domain.CreateRequest, now time.Time) (models.Appointment, error)
	GetAvailableSlots(ctx context.Context, shopID int64, date models.Date) ([]timeofday.TimeOfDay, error)
	Location() *time.Location
}

// HealthCheck reports one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HTTPServer exposes the appointment API to the presentation layer.
type HTTPServer struct {
	cfg     config.APIConfig
	service AppointmentService
	checks  map[string]HealthCheck
	server  *http.Server
	auth    *HTTPAuth
	now     func() time.Time
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, service AppointmentService, checks map[string]HealthCheck, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:     cfg,
		service: service,
		checks:  checks,
		auth:    NewHTTPAuth(cfg),
		now:     time.Now,
		logger:  &l,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/appointments", srv.handleListAppointments)
	mux.HandleFunc("POST /api/v1/appointments", srv.handleBook)
	mux.HandleFunc("POST /api/v1/appointments/{id}/{event}", srv.handleTransition)
	mux.HandleFunc("GET /api/v1/slots", srv.handleSlots)
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	var handler http.Handler = mux
	handler = srv.auth.Wrap(handler)
	handler = recoverMiddleware(&l)(handler)
	handler = loggingMiddleware(&l)(handler)
	handler = requestIDMiddleware(handler)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler is the fully wrapped router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": report})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
