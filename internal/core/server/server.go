// Package server exposes the tile service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/vtile-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/vtile-cache/internal/core/middleware"
	"github.com/mohammed-shakir/vtile-cache/internal/service"
)

type Options struct {
	Service *service.Service
	Logger  *slog.Logger
	// BaseURL overrides the scheme and host derived from each request when
	// building tile URLs.
	BaseURL string
	// MaxAge is sent as Cache-Control max-age on tiles.
	MaxAge  time.Duration
	Ready   health.ReadinessReporter
	Metrics http.Handler
}

// NewRouter wires the discovery, tile, health and metrics routes.
func NewRouter(o Options) http.Handler {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	h := &handlers{svc: o.Service, logger: o.Logger, baseURL: o.BaseURL, maxAge: o.MaxAge}

	r := chi.NewRouter()
	r.Use(middleware.Recover(o.Logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.Logging(o.Logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(o.Ready))
	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics)
	}

	r.Get("/index.json", h.capabilities)
	r.Get("/fontstacks.json", h.fontstacks)
	r.Get("/{doc}", h.tilesetDocument)
	r.Get("/{tileset}/metadata.json", h.mbtilesMetadata)
	r.Get("/{tileset}/{z}/{x}/{tile}", h.tile)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, addr string, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
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
