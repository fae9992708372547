// Package http exposes arena reports, snapshots, kungfu lookups and season
// labels over a small JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/interface/http/handlers"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins for CORS. Empty disables CORS handling.
	AllowedOrigins []string

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	// Version is reported by /health.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    60 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
		Version:        "dev",
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ReportProvider serves built reports.
type ReportProvider interface {
	Latest() *arena.Report
	LatestOrBuild(ctx context.Context) (*arena.Report, error)
	Build(ctx context.Context) (*arena.Report, error)
}

// SnapshotProvider returns the current ranking snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*arena.RankingSnapshot, error)
}

// NameResolver resolves one (server, name) pair.
type NameResolver interface {
	ResolveName(ctx context.Context, server, name string) (arena.KungfuAttribution, error)
}

// Dependencies are the services behind the handlers.
type Dependencies struct {
	Reports   ReportProvider
	Snapshots SnapshotProvider
	Resolver  NameResolver

	Season      *arena.SeasonCalculator
	SeasonStart time.Time
	Clock       clock.Clock

	Health *handlers.CompositeHealthChecker
	Logger zerolog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     zerolog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a server and registers the routes.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Season == nil {
		deps.Season = arena.NewSeasonCalculator(nil)
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker(config.Version)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: logger.Component(deps.Logger, "http"),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(handlers.RequestID(s.logger))
	r.Use(handlers.Recoverer(s.logger))
	r.Use(handlers.AccessLog(s.logger))
	r.Use(handlers.SecurityHeaders)
	r.Use(handlers.RequestSizeLimit(s.config.MaxBodyBytes))
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", handlers.RequestIDHeader},
			ExposedHeaders: []string{handlers.RequestIDHeader},
			MaxAge:         86400,
		}).Handler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/arena/report", s.handleGetReport)
		r.Post("/arena/report/refresh", s.handleRefreshReport)
		r.Get("/arena/snapshot", s.handleGetSnapshot)
		r.Get("/kungfu", s.handleGetKungfu)
		r.Get("/season/week", s.handleGetSeasonWeek)
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.config.Address()).Msg("starting HTTP server")

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields at most one error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes {"error": true, "message": "..."}.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, arena.ToErrorResult(err))
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, arena.ErrInvalidInput), errors.Is(err, arena.ErrInvalidWeek):
		return http.StatusBadRequest
	case errors.Is(err, arena.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, arena.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	case errors.Is(err, arena.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, arena.ErrUpstream), errors.Is(err, arena.ErrInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", arena.ErrInvalidInput, key)
	}
	return v, nil
}
