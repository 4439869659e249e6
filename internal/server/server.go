// Package server exposes the REST API: download job creation and
// inspection, artifact retrieval, URL validation, platform listing, and
// administrative endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/internal/config"
	"github.com/3leaps/mediagrab/pkg/blob"
	"github.com/3leaps/mediagrab/pkg/jobstore"
	"github.com/3leaps/mediagrab/pkg/orchestrator"
	"github.com/3leaps/mediagrab/pkg/platform"
)

// Deps carries the collaborators the API surfaces.
type Deps struct {
	Store        *jobstore.Store
	Orchestrator *orchestrator.Orchestrator
	Registry     *platform.Registry
	Artifacts    blob.Store
	Logger       *zap.Logger

	// AdminToken guards administrative endpoints; empty disables them.
	AdminToken string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	handler http.Handler
	logger  *zap.Logger
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Port returns the configured listen port.
func (s *Server) Port() int { return s.cfg.Port }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/downloads", s.handleCreateDownload)
		r.Get("/downloads", s.handleListDownloads)
		r.Get("/downloads/{id}", s.handleGetDownload)
		r.Delete("/downloads/{id}", s.handleDeleteDownload)
		r.Post("/downloads/{id}/cancel", s.handleCancelDownload)
		r.Get("/downloads/{id}/file", s.handleDownloadFile)

		r.Post("/validate-url", s.handleValidateURL)
		r.Get("/platforms", s.handleListPlatforms)

		r.Post("/webhooks/download-complete", s.handleDownloadComplete)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/platforms/configs", s.handlePlatformConfigs)
			r.Get("/platforms/configs/{platform}", s.handlePlatformConfig)
			r.Get("/stats", s.handleStats)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireAdmin guards administrative endpoints with a bearer token.
// With no token configured the endpoints are effectively disabled.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.AdminToken == "" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.deps.AdminToken {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
