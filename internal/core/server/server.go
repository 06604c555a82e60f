// Package server runs the inspection HTTP API next to the viewer.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geotwin/internal/core/config"
	"github.com/mohammed-shakir/geotwin/internal/core/health"
	middleware "github.com/mohammed-shakir/geotwin/internal/core/middleware"
	"github.com/mohammed-shakir/geotwin/internal/core/router"
	"github.com/mohammed-shakir/geotwin/internal/expr"
)

// App is what the server needs from the viewer.
type App interface {
	router.Viewer
	health.ReadinessReporter
}

// NewHandler builds the route tree; metrics may be nil to omit /metrics.
func NewHandler(logger *slog.Logger, app App, exprs *expr.Cache, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(app))
	if metrics != nil {
		r.Get("/metrics", metrics.ServeHTTP)
	}
	router.Mount(r, logger, app, exprs)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
