package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/geojson"
	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/realtime"
	"github.com/avelezdev/geolayers/internal/router"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	cfg    config.Config
	logger *slog.Logger
	deps   Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) listLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"layers":  h.deps.Manager.Snapshot(),
		"loading": h.deps.Refresher.Loading(),
	})
}

func (h *handlers) registerLayer(w http.ResponseWriter, r *http.Request) {
	var cfg model.LayerConfig
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cfg); err != nil {
		http.Error(w, "invalid layer config: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.deps.Manager.RegisterLayer(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cfg.Visible {
		h.deps.Refresher.Trigger("layer_registered")
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *handlers) setVisibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Manager.Config(id); !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}

	var body struct {
		Visible *bool `json:"visible"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Visible == nil {
		http.Error(w, "body must be {\"visible\": true|false}", http.StatusBadRequest)
		return
	}

	h.deps.Manager.SetLayerVisibility(id, *body.Visible)
	if *body.Visible {
		h.deps.Refresher.Trigger("visibility_change")
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "visible": *body.Visible})
}

func (h *handlers) setOpacity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Manager.Config(id); !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}

	var body struct {
		Opacity *float64 `json:"opacity"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Opacity == nil {
		http.Error(w, "body must be {\"opacity\": 0..1}", http.StatusBadRequest)
		return
	}
	if err := router.ParseOpacity(*body.Opacity); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.deps.Manager.SetLayerOpacity(id, *body.Opacity)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "opacity": *body.Opacity})
}

func (h *handlers) layerData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fc, ok := h.deps.Manager.Data(id)
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *handlers) layerFeatures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Manager.Config(id); !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("bbox"))
	if raw == "" {
		http.Error(w, "missing required parameter: bbox", http.StatusBadRequest)
		return
	}
	bb, err := router.ParseBBox(raw)
	if err != nil {
		http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
		return
	}

	fc, err := h.deps.Spatial.QueryBBox(id, bb)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// combinedFeatures returns the visible layers' data as one collection.
// Layers sharing a source carry the same features, so ids seen once are
// dropped on the later layers.
func (h *handlers) combinedFeatures(w http.ResponseWriter, _ *http.Request) {
	vis := h.deps.Manager.VisibleLayers()
	parts := make([]model.FeatureCollection, 0, len(vis))
	for _, lc := range vis {
		if fc, ok := h.deps.Manager.Data(lc.ID); ok {
			parts = append(parts, fc)
		}
	}
	writeJSON(w, http.StatusOK, geojson.Merge(parts, true))
}

func (h *handlers) layerClusters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fc, ok := h.deps.Manager.Data(id)
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}

	zoom, err := router.ParseZoom(r.URL.Query().Get("zoom"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.deps.Clusterer.Clusters(fc, zoom)
	if err != nil {
		h.logger.Error("clustering failed", "layer", id, "err", err)
		http.Error(w, "clustering failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Refresher.Filters())
}

// putFilters accepts the filter snapshot as JSON and re-validates it through
// the query-string parser so both entry points share one set of rules.
func (h *handlers) putFilters(w http.ResponseWriter, r *http.Request) {
	var f model.FilterSet
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&f); err != nil {
		http.Error(w, "invalid filters: "+err.Error(), http.StatusBadRequest)
		return
	}

	parsed, warn, err := model.ParseFilterSet(f.Values())
	if warn != "" {
		h.logger.Warn(warn)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.deps.Refresher.SetFilters(parsed)
	writeJSON(w, http.StatusAccepted, parsed)
}

func (h *handlers) triggerRefresh(w http.ResponseWriter, _ *http.Request) {
	h.deps.Refresher.Trigger("manual")
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
}

// submitFieldReport forwards the report to the upstream API and, when intake
// publishing is on, mirrors a change event so every replica reloads.
func (h *handlers) submitFieldReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var report struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		http.Error(w, "invalid field report: "+err.Error(), http.StatusBadRequest)
		return
	}
	cat := model.CategoryPlaces
	if report.Category != "" {
		parsed, err := model.ParseCategory(report.Category)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cat = parsed
	}

	resp, err := h.deps.Upstream.Submit(r.Context(), "/api/field-reports", bytes.NewReader(body))
	if err != nil {
		h.logger.Error("field report submit failed", "err", err)
		http.Error(w, "upstream submit failed", http.StatusBadGateway)
		return
	}

	if h.deps.Publisher != nil {
		h.deps.Publisher.Publish(realtime.ChangeEvent{
			Version:  1,
			Op:       "insert",
			Category: cat,
			TS:       time.Now().UTC(),
			Source:   "field-report",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(resp)
}
