// Package layers tracks layer registration and visibility state and mirrors
// it onto a map backend.
package layers

import (
	"fmt"
	"log/slog"

	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/model"
)

// SourceSpec describes the GeoJSON source backing one or more layers.
type SourceSpec struct {
	ID            string                  `json:"id"`
	Cluster       bool                    `json:"cluster,omitempty"`
	ClusterRadius int                     `json:"clusterRadius,omitempty"`
	Data          model.FeatureCollection `json:"data"`
}

// LayerSpec is the rendered-layer definition handed to the backend.
type LayerSpec struct {
	ID       string             `json:"id"`
	SourceID string             `json:"sourceId"`
	Geometry model.GeometryType `json:"geometry"`
	Paint    map[string]any     `json:"paint,omitempty"`
	MinZoom  float64            `json:"minZoom,omitempty"`
	MaxZoom  float64            `json:"maxZoom,omitempty"`
}

// MapBackend is the seam between layer bookkeeping and whatever renders the
// map. AddSource must update data in place when the source already exists
// rather than re-adding.
type MapBackend interface {
	AddSource(s SourceSpec) error
	SetSourceData(id string, fc model.FeatureCollection) error
	AddLayer(l LayerSpec) error
	RemoveLayer(id string) error
	HasLayer(id string) bool
	SetPaintProperty(layerID, prop string, value any) error
}

// Broadcaster pushes layer mutations to subscribed dashboard clients.
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

type Factory func(cfg config.Config, logger *slog.Logger, b Broadcaster) (MapBackend, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

// NewBackend builds the named backend, falling back to noop when the name is
// unknown.
func NewBackend(name string, cfg config.Config, logger *slog.Logger, b Broadcaster) (MapBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if f, ok := reg[name]; ok {
		be, err := f(cfg, logger, b)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", name, err)
		}
		return be, nil
	}
	if f, ok := reg["noop"]; ok {
		logger.Warn("unknown map backend; falling back to noop", "backend", name)
		return f(cfg, logger, b)
	}
	return nil, fmt.Errorf("no factory for backend %q and no noop registered", name)
}
