// Package httpapi serves a read-mostly local HTTP view of the engine:
// status, integrity, risk, history, an emergency panic endpoint and
// Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// NewRouter builds the chi router. gatherer may be nil to omit /metrics.
func NewRouter(eng *engine.Engine, gatherer prometheus.Gatherer, logger *logging.Logger) *chi.Mux {
	logger = orNop(logger)
	h := &Handler{engine: eng}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))

	r.Get("/healthz", h.Healthz)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/integrity", h.Integrity)
		r.Get("/risk", h.Risk)
		r.Get("/history", h.History)
		r.Get("/tasks", h.Tasks)
		r.Get("/tasks/{id}", h.Task)
		r.Post("/panic", h.Panic)
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logging.Logger) error {
	logger = orNop(logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("http server stopped")
		return nil
	}
}
