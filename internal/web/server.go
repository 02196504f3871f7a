package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/firm-crd-matching/internal/audit"
	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/metrics"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/store"
	"github.com/firm-crd-matching/internal/web/handlers"
	"github.com/firm-crd-matching/internal/web/middleware"
)

// Dependencies are the services the server exposes. DB and Metrics may be
// nil; without a database the run and review endpoints are not mounted.
type Dependencies struct {
	Engine  *match.Engine
	Index   *registry.Index
	DB      *sql.DB
	Metrics *metrics.Collector
}

// Server represents the web server
type Server struct {
	config     *Config
	deps       Dependencies
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance
func NewServer(config *Config, deps Dependencies) (*Server, error) {
	if deps.Engine == nil || deps.Index == nil {
		return nil, fmt.Errorf("web server needs an engine and a reference index")
	}

	server := &Server{
		config: config,
		deps:   deps,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// Router returns the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	handlerConfig := &handlers.Config{BatchLimit: s.config.Server.BatchLimit, Debug: s.config.Debug}
	handlerConfig.Features.ManualOverrideEnabled = s.config.Features.ManualOverrideEnabled
	handlerConfig.Features.PersistBatches = s.config.Features.PersistBatches && s.deps.DB != nil

	matchHandler := &handlers.MatchHandler{
		Engine:     s.deps.Engine,
		Thresholds: s.deps.Engine.Config().Thresholds(),
		Config:     handlerConfig,
	}
	healthHandler := &handlers.HealthHandler{Engine: s.deps.Engine, Firms: s.deps.Index}

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", healthHandler.Health).Methods("GET")
	api.HandleFunc("/match", matchHandler.MatchOne).Methods("POST")
	api.HandleFunc("/match/batch", matchHandler.MatchBatch).Methods("POST")

	if s.deps.DB != nil {
		st := store.New(s.deps.DB)
		tracker := audit.NewTracker(s.deps.DB)
		matchHandler.Store = st
		matchHandler.Audit = tracker
		healthHandler.DB = s.deps.DB

		reviewHandler := &handlers.ReviewHandler{Store: st, Audit: tracker, Firms: s.deps.Index, Config: handlerConfig}

		api.HandleFunc("/runs/{run}/results", matchHandler.ListResults).Methods("GET")
		api.HandleFunc("/review/history", reviewHandler.History).Methods("GET")
		if s.config.Features.ManualOverrideEnabled {
			api.HandleFunc("/review/accept", reviewHandler.Accept).Methods("POST")
			api.HandleFunc("/review/unlock", reviewHandler.Unlock).Methods("POST")
		}
	}

	if s.config.Features.MetricsEnabled && s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	}

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging())

	api.Use(middleware.Authentication(s.config.Auth.APIKey))
}

// Start runs the server until SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		debug.Logger().Info("starting server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	debug.Logger().Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			debug.Logger().Warn("database close error", zap.Error(err))
		}
	}

	debug.Logger().Info("server stopped")
	return nil
}
