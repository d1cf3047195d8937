package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"restobook/internal/config"
	"restobook/internal/domain"
	"restobook/internal/metrics"
	"restobook/internal/timegraph"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ScheduleReader gives a detached copy of one operating day.
type ScheduleReader interface {
	Schedule(ctx context.Context, date time.Time) (*timegraph.DaySchedule, error)
}

// ScheduleExporter renders one operating day as a workbook.
type ScheduleExporter interface {
	BuildDay(ctx context.Context, date time.Time) (*excelize.File, error)
}

// Options selects which routes a process serves. The gateway only forwards
// bookings; the scheduler can also expose the live grid.
type Options struct {
	Gateway  domain.BookingGateway
	Schedule ScheduleReader
	Exporter ScheduleExporter
	Location *time.Location
}

// HTTPServer is the guest-facing HTTP API.
type HTTPServer struct {
	cfg    config.APIConfig
	opts   Options
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, opts Options, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	srv := &HTTPServer{cfg: cfg, opts: opts, auth: NewHTTPAuth(cfg), logger: logger}

	mux := http.NewServeMux()
	srv.route(mux, "GET /healthz", "healthz", srv.handleHealth)
	if opts.Gateway != nil {
		srv.route(mux, "POST /api/v1/bookings", "bookings", srv.handleBooking)
		srv.route(mux, "POST /api/v1/bookings/confirm", "confirm", srv.handleConfirm)
	}
	if opts.Schedule != nil {
		srv.route(mux, "GET /api/v1/schedule", "schedule", srv.handleSchedule)
	}
	if opts.Exporter != nil {
		srv.route(mux, "GET /api/v1/schedule/export", "schedule_export", srv.handleExport)
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           chain(mux, loggingMiddleware(logger), recoveryMiddleware(logger), srv.auth.Wrap),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		h(w, r)
	})
}

// Handler exposes the assembled handler chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
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
