// Package server exposes the job manager over a REST API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/flowsched/internal/backend"
	"github.com/me/flowsched/internal/config"
	"github.com/me/flowsched/internal/manager"
)

// Server is the flowsched REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	startTime time.Time
	manager   *manager.Manager
	backend   backend.Backend
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, m *manager.Manager, b backend.Backend, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		manager:   m,
		backend:   b,
	}
	s.routes()
	return s
}

// StartMonitor begins the manager's monitor loop in a background goroutine.
func (s *Server) StartMonitor(ctx context.Context) {
	go s.manager.Run(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleSubmitJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleEvictJob)
				r.Put("/cancel", s.handleCancelJob)
				r.Get("/wait", s.handleWaitJob)
			})
		})
	})
}
