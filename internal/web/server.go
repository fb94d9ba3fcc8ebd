// Package web provides the HTTP API for the file ingestion pipeline.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filevet/filevet/internal/config"
	"github.com/filevet/filevet/internal/pipeline"
	"github.com/filevet/filevet/internal/record"
	"github.com/filevet/filevet/internal/storage"
	"github.com/filevet/filevet/internal/web/middleware"
)

// Server is the HTTP server in front of the pipeline. Each upload kind
// ("avatar", "photo") maps to a configured Policy; everything else is
// a thin JSON surface over the Processor and the RecordStore.
type Server struct {
	processor *pipeline.Processor
	policies  map[string]*pipeline.Policy
	records   record.Store
	store     storage.Store
	router    *chi.Mux
	server    *http.Server
	cfg       *config.Config
}

// NewServer creates a Server instance.
func NewServer(processor *pipeline.Processor, policies map[string]*pipeline.Policy, records record.Store, store storage.Store, cfg *config.Config) *Server {
	s := &Server{
		processor: processor,
		policies:  policies,
		records:   records,
		store:     store,
		router:    chi.NewRouter(),
		cfg:       cfg,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/files/{kind}", s.handleUpload)
		r.Get("/files/{id}", s.handleGetFile)
		r.Get("/files/hash/{namespace}/{hash}", s.handleGetFileByHash)
		r.Delete("/files/{id}", s.handleDeleteFile)
	})
}

// Handler returns the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
