// Package cluster aggregates point features into H3 cells for zoomed-out
// map views.
package cluster

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/avelezdev/geolayers/internal/model"
)

// ResForZoom maps a web-map zoom level to an H3 resolution. Roughly every two
// zoom levels one H3 resolution finer, clamped to the configured range.
func ResForZoom(zoom float64, minRes, maxRes int) int {
	res := int(zoom/2) + 1
	if res < minRes {
		res = minRes
	}
	if res > maxRes {
		res = maxRes
	}
	return res
}

type Clusterer struct {
	minRes int
	maxRes int
}

func New(minRes, maxRes int) *Clusterer {
	if minRes < 0 {
		minRes = 0
	}
	if maxRes > 15 || maxRes <= 0 {
		maxRes = 15
	}
	if minRes > maxRes {
		minRes = maxRes
	}
	return &Clusterer{minRes: minRes, maxRes: maxRes}
}

// Clusters buckets the collection's point features by H3 cell at the
// resolution implied by zoom. Each output feature is a Point at the cell
// center carrying point_count and the cell id; sorted by cell for stable
// payloads.
func (c *Clusterer) Clusters(fc model.FeatureCollection, zoom float64) (model.FeatureCollection, error) {
	res := ResForZoom(zoom, c.minRes, c.maxRes)

	counts := map[h3.Cell]int{}
	for _, f := range fc.Features {
		if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 2 {
			continue
		}
		ll := h3.LatLng{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0]}
		cell, err := h3.LatLngToCell(ll, res)
		if err != nil {
			return model.FeatureCollection{}, fmt.Errorf("h3 cell: %w", err)
		}
		counts[cell]++
	}

	cells := make([]h3.Cell, 0, len(counts))
	for cell := range counts {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].String() < cells[j].String() })

	out := model.EmptyCollection()
	for _, cell := range cells {
		center, err := h3.CellToLatLng(cell)
		if err != nil {
			return model.FeatureCollection{}, fmt.Errorf("cell center: %w", err)
		}
		out.Features = append(out.Features, model.Feature{
			Type:     "Feature",
			ID:       cell.String(),
			Geometry: model.NewPoint(center.Lng, center.Lat),
			Properties: map[string]any{
				"cluster":     true,
				"cell":        cell.String(),
				"resolution":  res,
				"point_count": counts[cell],
			},
		})
	}
	return out, nil
}
