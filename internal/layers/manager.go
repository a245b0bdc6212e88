package layers

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/observability"
)

// LayerState pairs a layer config with its runtime visibility flag and the
// last GeoJSON payload pushed to the backend.
type LayerState struct {
	Config  model.LayerConfig
	Visible bool
	Data    model.FeatureCollection
}

// LayerView is the read-only snapshot form served over the API.
type LayerView struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Category model.Category     `json:"category"`
	Geometry model.GeometryType `json:"geometry"`
	Visible  bool               `json:"visible"`
	Features int                `json:"features"`
	Children []string           `json:"children,omitempty"`
}

// FeatureSink receives every wholesale data replacement, letting a spatial
// index track the rendered features without coupling the manager to it.
type FeatureSink interface {
	Replace(layerID string, fc model.FeatureCollection)
}

// defaultHierarchy declares child layers toggled together with their parent
// when the registering config does not name its own children.
var defaultHierarchy = map[string][]string{
	"people": {"people-heatmap"},
	"places": {"places-labels"},
	"assets": {"assets-status"},
}

// Manager owns the mapping from logical layer id to state and mirrors it
// onto the backend. Backend failures are logged and absorbed; the manager
// never throws map errors back at its caller.
type Manager struct {
	logger  *slog.Logger
	backend MapBackend
	sink    FeatureSink

	mu        sync.RWMutex
	states    map[string]*LayerState
	hierarchy map[string][]string
}

func New(logger *slog.Logger, backend MapBackend) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		backend:   backend,
		states:    map[string]*LayerState{},
		hierarchy: map[string][]string{},
	}
}

func (m *Manager) SetFeatureSink(s FeatureSink) {
	m.sink = s
}

// RegisterLayer stores layer state and, when the config is marked visible,
// materializes it on the backend. Registering an id twice is a no-op beyond
// refreshing the stored config.
func (m *Manager) RegisterLayer(cfg model.LayerConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("register layer: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, exists := m.states[cfg.ID]
	if exists {
		st.Config = cfg
	} else {
		st = &LayerState{Config: cfg, Visible: cfg.Visible, Data: model.EmptyCollection()}
		m.states[cfg.ID] = st
	}

	if len(cfg.Children) > 0 {
		m.hierarchy[cfg.ID] = append([]string(nil), cfg.Children...)
	} else if ch, ok := defaultHierarchy[cfg.ID]; ok {
		m.hierarchy[cfg.ID] = ch
	}

	if st.Visible {
		m.materializeLocked(st)
	}
	return nil
}

// SetLayerVisibility flips the stored flag, adds or removes the rendered
// layer, and cascades the same visibility to declared children. Visibility
// never cascades upward to parents.
func (m *Manager) SetLayerVisibility(id string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setVisibilityLocked(id, visible, map[string]struct{}{})
}

func (m *Manager) setVisibilityLocked(id string, visible bool, seen map[string]struct{}) {
	if _, dup := seen[id]; dup {
		return
	}
	seen[id] = struct{}{}

	if st, ok := m.states[id]; ok {
		st.Visible = visible
		if visible {
			m.materializeLocked(st)
		} else {
			m.dematerializeLocked(st)
		}
	}

	for _, child := range m.hierarchy[id] {
		m.setVisibilityLocked(child, visible, seen)
	}
}

// SetLayerOpacity applies a paint-property update whose property name depends
// on the layer's geometry type.
func (m *Manager) SetLayerOpacity(id string, opacity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[id]
	if !ok {
		m.logger.Warn("opacity for unknown layer", "layer", id)
		return
	}
	st.Config.Opacity = opacity
	prop := st.Config.Geometry.OpacityProperty()
	m.try("set_paint", id, func() error {
		return m.backend.SetPaintProperty(id, prop, opacity)
	})
}

// UpdateLayerData replaces the backing source's data wholesale. No diffing
// or merging of the previous payload.
func (m *Manager) UpdateLayerData(id string, fc model.FeatureCollection) {
	m.mu.Lock()

	st, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("data for unknown layer", "layer", id)
		return
	}
	if fc.Type == "" {
		fc.Type = "FeatureCollection"
	}
	st.Data = fc
	sink := m.sink
	m.try("set_source_data", id, func() error {
		return m.backend.SetSourceData(st.Config.SourceID, fc)
	})
	m.mu.Unlock()

	if sink != nil {
		sink.Replace(id, fc)
	}
}

// materializeLocked adds the source and paint layer for a visible state.
// Guarded by an existence check so the rendered layer is never duplicated.
func (m *Manager) materializeLocked(st *LayerState) {
	cfg := st.Config
	m.try("add_source", cfg.ID, func() error {
		return m.backend.AddSource(SourceSpec{ID: cfg.SourceID, Data: st.Data})
	})
	if m.backend.HasLayer(cfg.ID) {
		return
	}
	m.try("add_layer", cfg.ID, func() error {
		return m.backend.AddLayer(LayerSpec{
			ID:       cfg.ID,
			SourceID: cfg.SourceID,
			Geometry: cfg.Geometry,
			Paint:    cfg.Paint,
			MinZoom:  cfg.MinZoom,
			MaxZoom:  cfg.MaxZoom,
		})
	})
}

func (m *Manager) dematerializeLocked(st *LayerState) {
	if !m.backend.HasLayer(st.Config.ID) {
		return
	}
	m.try("remove_layer", st.Config.ID, func() error {
		return m.backend.RemoveLayer(st.Config.ID)
	})
}

// try runs a backend mutation, logging and counting failures instead of
// propagating them. Visibility/opacity/data operations degrade silently.
func (m *Manager) try(op, layer string, fn func() error) {
	err := fn()
	observability.IncLayerOp(op, err)
	if err != nil {
		m.logger.Warn("map backend call failed", "op", op, "layer", layer, "err", err)
	}
}

// VisibleLayers returns the configs of all currently visible layers.
func (m *Manager) VisibleLayers() []model.LayerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.LayerConfig, 0, len(m.states))
	for _, st := range m.states {
		if st.Visible {
			out = append(out, st.Config)
		}
	}
	return out
}

// LayersForCategory returns ids of layers fed by the given category.
func (m *Manager) LayersForCategory(cat model.Category) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, st := range m.states {
		if st.Config.Category == cat {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) Visible(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	return ok && st.Visible
}

func (m *Manager) Config(id string) (model.LayerConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return model.LayerConfig{}, false
	}
	return st.Config, true
}

func (m *Manager) Data(id string) (model.FeatureCollection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return model.FeatureCollection{}, false
	}
	return st.Data, true
}

func (m *Manager) Snapshot() []LayerView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LayerView, 0, len(m.states))
	for id, st := range m.states {
		out = append(out, LayerView{
			ID:       id,
			Name:     st.Config.Name,
			Category: st.Config.Category,
			Geometry: st.Config.Geometry,
			Visible:  st.Visible,
			Features: len(st.Data.Features),
			Children: m.hierarchy[id],
		})
	}
	return out
}
