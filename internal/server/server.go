// SPDX-License-Identifier: MIT

// Package server exposes a loaded model over HTTP: prediction from an
// uploaded counts matrix, model metadata, the run registry, health and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tallsorts/tallsorts/internal/annotation"
	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/health"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/server/middleware"
	"github.com/tallsorts/tallsorts/internal/store"
)

const tracerName = "tallsorts/http"

// Server serves the prediction API.
type Server struct {
	cfg    config.AppConfig
	models *ModelHolder
	ann    *annotation.Annotation
	store  *store.SqliteStore
}

// New builds a server around an already loaded model. ann and st may be nil.
func New(cfg config.AppConfig, models *ModelHolder, ann *annotation.Annotation, st *store.SqliteStore) *Server {
	return &Server{cfg: cfg, models: models, ann: ann, store: st}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        tracerName,
		EnableLogging:         true,
	})

	checks := health.NewManager(s.cfg.Version)
	checks.RegisterChecker(health.ModelChecker{Source: s.models})
	if s.store != nil {
		checks.RegisterChecker(health.StoreChecker{DB: s.store.DB})
	}
	r.Get("/healthz", checks.ServeHealth)
	r.Get("/readyz", checks.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.RateLimit > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.Server.RateLimit,
				WindowSize:   time.Minute,
			}))
		}
		r.Post("/predict", s.handlePredict)
		r.Get("/model", s.handleModel)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/calls", s.handleRunCalls)
	})
	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. When
// model watching is enabled the model file is reloaded on change.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := log.WithComponentFromContext(ctx, "server")
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		// in-flight requests finish during shutdown
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", ln.Addr().String()).Msg("prediction API listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if s.cfg.Server.WatchModel {
		g.Go(func() error {
			if err := s.models.Watch(gctx); err != nil {
				logger.Warn().Err(err).Msg("model watching disabled")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		logger.Info().Dur("timeout", timeout).Msg("shutting down prediction API")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
