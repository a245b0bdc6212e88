// Package server wires the HTTP surface: layer API, filter API, viewport
// queries, field-report intake, websocket push, and operational endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelezdev/geolayers/internal/cluster"
	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/health"
	"github.com/avelezdev/geolayers/internal/layers"
	imw "github.com/avelezdev/geolayers/internal/middleware"
	"github.com/avelezdev/geolayers/internal/realtime"
	"github.com/avelezdev/geolayers/internal/refresh"
	"github.com/avelezdev/geolayers/internal/spatial"
	"github.com/avelezdev/geolayers/internal/upstream"
	"github.com/avelezdev/geolayers/internal/ws"
)

// ChangePublisher mirrors locally submitted reports onto the change topic.
// Nil when intake publishing is disabled.
type ChangePublisher interface {
	Publish(ev realtime.ChangeEvent)
}

// Deps carries everything the handlers need. All fields except Publisher and
// Probes are required.
type Deps struct {
	Manager   *layers.Manager
	Refresher *refresh.Refresher
	Spatial   *spatial.Index
	Clusterer *cluster.Clusterer
	Upstream  upstream.Submitter
	Publisher ChangePublisher
	Hub       *ws.Hub
	Probes    []health.Probe
}

// NewRouter builds the full route tree. Split from Run so handler tests can
// exercise it with httptest.
func NewRouter(cfg config.Config, logger *slog.Logger, deps Deps) http.Handler {
	h := &handlers{cfg: cfg, logger: logger, deps: deps}

	r := chi.NewRouter()
	r.Use(imw.Recover(logger))
	r.Use(imw.Logging(logger))
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Probes...))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/layers", h.listLayers)
		r.Post("/layers", h.registerLayer)
		r.Put("/layers/{id}/visibility", h.setVisibility)
		r.Put("/layers/{id}/opacity", h.setOpacity)
		r.Get("/layers/{id}/data", h.layerData)
		r.Get("/layers/{id}/features", h.layerFeatures)
		r.Get("/layers/{id}/clusters", h.layerClusters)
		r.Get("/features", h.combinedFeatures)
		r.Get("/filters", h.getFilters)
		r.Put("/filters", h.putFilters)
		r.Post("/refresh", h.triggerRefresh)
		r.Post("/field-reports", h.submitFieldReport)
	})

	if deps.Hub != nil {
		r.Get("/ws", ws.ServeWS(deps.Hub, logger))
	}

	return r
}

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
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
