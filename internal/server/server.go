package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zsiec/tsingest/internal/config"
	"github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/health"
	"github.com/zsiec/tsingest/internal/ingestion/pipeline"
	"github.com/zsiec/tsingest/internal/ingestion/registry"
	"github.com/zsiec/tsingest/internal/logger"
)

// ProgressSource reports the state of the running pipeline.
type ProgressSource interface {
	Progress() pipeline.Progress
}

// Server is the status server exposing health, version, pipeline progress
// and the chunk ledger over plain HTTP.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	logger       logger.Logger
	healthMgr    *health.Manager
	errorHandler *errors.ErrorHandler
	progress     ProgressSource
	ledger       registry.Registry

	routesOnce bool
}

// New creates a status server. Health checkers are registered by the
// caller through HealthManager.
func New(cfg *config.ServerConfig, log logger.Logger, progress ProgressSource, ledger registry.Registry) *Server {
	log = logger.WithComponent(log, "server")
	return &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		healthMgr:    health.NewManager(log),
		errorHandler: errors.NewErrorHandler(log),
		progress:     progress,
		ledger:       ledger,
	}
}

// HealthManager returns the manager backing /health and /ready.
func (s *Server) HealthManager() *health.Manager {
	return s.healthMgr
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.setupRoutes()

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.healthMgr.StartPeriodicChecks(ctx, 30*time.Second)

	s.logger.WithField("addr", ln.Addr().String()).Info("Starting status server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down status server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() {
	if s.routesOnce {
		return
	}
	s.routesOnce = true

	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.metricsMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/chunks", s.handleListChunks).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/chunks/{offset:[0-9]+}", s.handleGetChunk).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	s.setupRoutes()
	return s.router
}
