// Package api provides the HTTP API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/frontier-mc/frontier/internal/config"
	"github.com/frontier-mc/frontier/internal/data"
	"github.com/frontier-mc/frontier/internal/storage"
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *storage.Run) error
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*storage.Run, error)
	DeleteRun(ctx context.Context, id string) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	fetcher    data.Fetcher
	runs       RunStore
	cfg        *config.Config
	log        zerolog.Logger
}

// NewServer creates a server. runs may be nil, in which case analyses are not
// persisted and the run endpoints answer 404.
func NewServer(cfg *config.Config, fetcher data.Fetcher, runs RunStore, log zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		fetcher: fetcher,
		runs:    runs,
		cfg:     cfg,
		log:     log.With().Str("component", "api").Logger(),
	}
	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	limiter := NewRateLimiter(s.cfg.Server.RateLimitRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(RecoveryMiddleware(s.log))
	s.router.Use(CORSMiddleware)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/chart.png", s.handleFrontierChart).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/weights.png", s.handleWeightsChart).Methods(http.MethodGet)

	if s.cfg.Server.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("frontier server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
