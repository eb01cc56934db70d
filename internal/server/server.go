// Package server is the HTTP API over the turn pipeline and the coach.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/easeaico/project-nudge/internal/agent"
	"github.com/easeaico/project-nudge/internal/metrics"
	"github.com/easeaico/project-nudge/internal/pipeline"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit   float64
	RateBurst   int
	MetricsPath string
	Version     string
}

// Deps are the services the API exposes. Coach and Metrics are optional.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Coach    *agent.Coach
	Metrics  *metrics.Manager
}

// Server routes API requests.
type Server struct {
	pipeline *pipeline.Pipeline
	coach    *agent.Coach
	metrics  *metrics.Manager
	validate *validator.Validate
	limiter  *rateLimiter
	router   chi.Router
	cfg      Config
	started  time.Time
}

// New builds a Server and its routes.
func New(deps Deps, cfg Config) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewManager(false)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		pipeline: deps.Pipeline,
		coach:    deps.Coach,
		metrics:  deps.Metrics,
		validate: validator.New(),
		router:   chi.NewRouter(),
		cfg:      cfg,
		started:  time.Now(),
	}
	s.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(s.recordMetrics)

	if s.metrics.Enabled() {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}
			r.Post("/turns", s.handleTurn)
			r.Post("/chat", s.handleChat)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/memories", s.handleContext)
				r.Delete("/memories", s.handleResetUser)
				r.Get("/history", s.handleHistory)
				r.Get("/traits", s.handleTraits)
				r.Put("/traits/{key}", s.handleSetTrait)
				r.Post("/sessions", s.handleStartSession)
			})

			r.Patch("/memories/{entryID}", s.handleEditMemory)
			r.Delete("/memories/{entryID}", s.handleDeleteMemory)
		})
	})
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to serve http: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return <-errCh
}
