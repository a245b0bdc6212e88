package layers

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/avelezdev/geolayers/internal/config"
	"github.com/avelezdev/geolayers/internal/model"
)

func init() {
	Register("broadcast", newBroadcast)
	Register("noop", newNoop)
}

// broadcastBackend keeps the rendered source/layer set server-side and
// pushes every mutation to subscribed dashboard clients. The connected
// dashboards hold the actual map instance; this backend is its mirror.
type broadcastBackend struct {
	logger *slog.Logger
	b      Broadcaster

	mu      sync.RWMutex
	sources map[string]SourceSpec
	layers  map[string]LayerSpec
}

func newBroadcast(_ config.Config, logger *slog.Logger, b Broadcaster) (MapBackend, error) {
	if b == nil {
		return nil, fmt.Errorf("broadcast backend requires a broadcaster")
	}
	return &broadcastBackend{
		logger:  logger,
		b:       b,
		sources: map[string]SourceSpec{},
		layers:  map[string]LayerSpec{},
	}, nil
}

func (bb *broadcastBackend) AddSource(s SourceSpec) error {
	bb.mu.Lock()
	_, exists := bb.sources[s.ID]
	bb.sources[s.ID] = s
	bb.mu.Unlock()

	// an existing source gets its data replaced, not a second registration
	if exists {
		bb.b.Broadcast("source_data", map[string]any{"sourceId": s.ID, "data": s.Data})
		return nil
	}
	bb.b.Broadcast("source_added", s)
	return nil
}

func (bb *broadcastBackend) SetSourceData(id string, fc model.FeatureCollection) error {
	bb.mu.Lock()
	s, ok := bb.sources[id]
	if ok {
		s.Data = fc
		bb.sources[id] = s
	} else {
		bb.sources[id] = SourceSpec{ID: id, Data: fc}
	}
	bb.mu.Unlock()

	bb.b.Broadcast("source_data", map[string]any{"sourceId": id, "data": fc})
	return nil
}

func (bb *broadcastBackend) AddLayer(l LayerSpec) error {
	bb.mu.Lock()
	if _, dup := bb.layers[l.ID]; dup {
		bb.mu.Unlock()
		return nil
	}
	if _, ok := bb.sources[l.SourceID]; !ok {
		bb.mu.Unlock()
		return fmt.Errorf("layer %q references unknown source %q", l.ID, l.SourceID)
	}
	bb.layers[l.ID] = l
	bb.mu.Unlock()

	bb.b.Broadcast("layer_added", l)
	return nil
}

func (bb *broadcastBackend) RemoveLayer(id string) error {
	bb.mu.Lock()
	_, ok := bb.layers[id]
	delete(bb.layers, id)
	bb.mu.Unlock()

	if !ok {
		return nil
	}
	bb.b.Broadcast("layer_removed", map[string]any{"layerId": id})
	return nil
}

func (bb *broadcastBackend) HasLayer(id string) bool {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	_, ok := bb.layers[id]
	return ok
}

func (bb *broadcastBackend) SetPaintProperty(layerID, prop string, value any) error {
	bb.mu.RLock()
	_, ok := bb.layers[layerID]
	bb.mu.RUnlock()
	if !ok {
		return fmt.Errorf("paint property on unknown layer %q", layerID)
	}
	bb.b.Broadcast("paint_property", map[string]any{
		"layerId": layerID, "property": prop, "value": value,
	})
	return nil
}

// noopBackend satisfies MapBackend for tests and headless runs.
type noopBackend struct {
	mu     sync.RWMutex
	layers map[string]struct{}
}

func newNoop(_ config.Config, _ *slog.Logger, _ Broadcaster) (MapBackend, error) {
	return &noopBackend{layers: map[string]struct{}{}}, nil
}

func (n *noopBackend) AddSource(SourceSpec) error { return nil }

func (n *noopBackend) SetSourceData(string, model.FeatureCollection) error { return nil }

func (n *noopBackend) AddLayer(l LayerSpec) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.layers[l.ID] = struct{}{}
	return nil
}

func (n *noopBackend) RemoveLayer(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.layers, id)
	return nil
}

func (n *noopBackend) HasLayer(id string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.layers[id]
	return ok
}

func (n *noopBackend) SetPaintProperty(string, string, any) error { return nil }
