package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/SourceBox-LLC/OpenS3-server/internal/api"
	"github.com/SourceBox-LLC/OpenS3-server/internal/audit"
	"github.com/SourceBox-LLC/OpenS3-server/internal/auth"
	"github.com/SourceBox-LLC/OpenS3-server/internal/config"
	"github.com/SourceBox-LLC/OpenS3-server/internal/metrics"
	"github.com/SourceBox-LLC/OpenS3-server/internal/middleware"
	"github.com/SourceBox-LLC/OpenS3-server/internal/stats"
	"github.com/SourceBox-LLC/OpenS3-server/internal/storage"
)

// Server wires configuration, storage, auth and observability into one
// http.Server.
type Server struct {
	config     *config.Config
	httpServer *http.Server

	backend     storage.Backend
	authManager auth.Manager
	collector   *metrics.Collector
	auditLog    audit.Store
	usage       *stats.Tracker
}

// New creates a new OpenS3 server from configuration
func New(cfg *config.Config) (*Server, error) {
	backend, err := storage.NewBackend(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	var auditLog audit.Store
	if cfg.Audit.Enable {
		auditLog, err = audit.NewSQLiteStore(filepath.Join(cfg.DataDir, "audit.db"))
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
	}

	usage, err := stats.NewTracker(filepath.Join(cfg.DataDir, "stats"))
	if err != nil {
		if auditLog != nil {
			auditLog.Close()
		}
		backend.Close()
		return nil, fmt.Errorf("failed to create usage tracker: %w", err)
	}

	authManager := auth.NewManager(cfg.Auth, "/", "/health", "/ready", cfg.Metrics.Path)
	collector := metrics.NewCollector()

	s := &Server{
		config:      cfg,
		backend:     backend,
		authManager: authManager,
		collector:   collector,
		auditLog:    auditLog,
		usage:       usage,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.buildHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// buildHandler assembles the middleware chain. Order matters: recovery is
// outermost, tracing runs before logging so request IDs appear in log lines,
// and auth runs last so rejected requests are still logged and counted.
func (s *Server) buildHandler() http.Handler {
	router := mux.NewRouter()

	router.Use(middleware.Tracing())
	router.Use(middleware.CORS())
	router.Use(middleware.Logging())
	router.Use(s.collector.Middleware())
	router.Use(s.authManager.Middleware())

	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, s.collector.Handler()).Methods(http.MethodGet)
	}

	api.NewHandler(s.backend, s.auditLog, s.usage).RegisterRoutes(router)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(router)
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
		"backend":  s.config.Storage.Backend,
	}).Info("Starting OpenS3 server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.closeStores()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.shutdown()
	}
}

// Handler exposes the assembled handler for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shutdown HTTP server")
	}

	s.closeStores()
	logrus.Info("Server stopped")
	return nil
}

func (s *Server) closeStores() {
	if s.usage != nil {
		if err := s.usage.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close usage tracker")
		}
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close audit store")
		}
	}
	if err := s.backend.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close storage backend")
	}
}
