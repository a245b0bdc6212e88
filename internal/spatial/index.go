// Package spatial keeps an R-tree per layer over the currently rendered
// point features, serving viewport queries without re-scanning whole
// collections.
package spatial

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/avelezdev/geolayers/internal/model"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50
	tolerance   = 1e-6
)

type spatialItem struct {
	feature model.Feature
	rect    *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect { return si.rect }

// Index implements the layer manager's feature sink: every wholesale data
// replacement rebuilds that layer's tree. Queries and replacements may
// interleave freely.
type Index struct {
	logger *slog.Logger

	mu    sync.RWMutex
	trees map[string]*rtreego.Rtree
}

func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{logger: logger, trees: map[string]*rtreego.Rtree{}}
}

// Replace rebuilds the layer's tree from the new collection. Non-point
// geometries are ignored; only transformed point features are indexed.
func (x *Index) Replace(layerID string, fc model.FeatureCollection) {
	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)
	indexed := 0
	for _, f := range fc.Features {
		if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 2 {
			continue
		}
		lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		rect := rtreego.Point{lon, lat}.ToRect(tolerance)
		tree.Insert(&spatialItem{feature: f, rect: rect})
		indexed++
	}

	x.mu.Lock()
	x.trees[layerID] = tree
	x.mu.Unlock()

	x.logger.Debug("spatial index rebuilt", "layer", layerID, "features", indexed)
}

// QueryBBox returns the layer's features intersecting the viewport. An
// unknown layer yields an empty collection, not an error.
func (x *Index) QueryBBox(layerID string, bb model.BBox) (model.FeatureCollection, error) {
	if err := bb.Validate(); err != nil {
		return model.FeatureCollection{}, fmt.Errorf("bbox: %w", err)
	}

	x.mu.RLock()
	tree, ok := x.trees[layerID]
	x.mu.RUnlock()

	out := model.EmptyCollection()
	if !ok {
		return out, nil
	}

	bounds, err := rtreego.NewRect(rtreego.Point{bb.X1, bb.Y1}, []float64{bb.X2 - bb.X1, bb.Y2 - bb.Y1})
	if err != nil {
		return model.FeatureCollection{}, fmt.Errorf("bbox rect: %w", err)
	}

	for _, res := range tree.SearchIntersect(bounds) {
		item, ok := res.(*spatialItem)
		if !ok {
			continue
		}
		lon := item.feature.Geometry.Coordinates[0]
		lat := item.feature.Geometry.Coordinates[1]
		// the rect search pads by tolerance; keep only true containment
		if lon < bb.X1 || lon > bb.X2 || lat < bb.Y1 || lat > bb.Y2 {
			continue
		}
		out.Features = append(out.Features, item.feature)
	}
	return out, nil
}

// Count reports how many features are indexed for the layer.
func (x *Index) Count(layerID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if tree, ok := x.trees[layerID]; ok {
		return tree.Size()
	}
	return 0
}
