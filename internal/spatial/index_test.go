package spatial

import (
	"testing"

	"github.com/avelezdev/geolayers/internal/model"
)

func pointFeature(id int64, lon, lat float64) model.Feature {
	return model.Feature{
		Type:       "Feature",
		ID:         id,
		Geometry:   model.NewPoint(lon, lat),
		Properties: map[string]any{},
	}
}

func TestReplaceAndQueryBBox(t *testing.T) {
	x := NewIndex(nil)
	x.Replace("people", model.FeatureCollection{Features: []model.Feature{
		pointFeature(1, -76.80, 18.01), // Kingston
		pointFeature(2, -77.92, 18.47), // Montego Bay
		pointFeature(3, -76.79, 18.00),
	}})

	if got := x.Count("people"); got != 3 {
		t.Fatalf("Count=%d want 3", got)
	}

	// viewport around Kingston only
	fc, err := x.QueryBBox("people", model.BBox{X1: -77.0, Y1: 17.9, X2: -76.5, Y2: 18.1})
	if err != nil {
		t.Fatalf("QueryBBox: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d want 2", len(fc.Features))
	}
}

func TestReplace_IsWholesale(t *testing.T) {
	x := NewIndex(nil)
	x.Replace("people", model.FeatureCollection{Features: []model.Feature{
		pointFeature(1, -76.80, 18.01),
		pointFeature(2, -77.92, 18.47),
	}})
	x.Replace("people", model.FeatureCollection{Features: []model.Feature{
		pointFeature(3, -76.10, 18.20),
	}})

	if got := x.Count("people"); got != 1 {
		t.Fatalf("Count=%d want 1 after wholesale replace", got)
	}

	fc, err := x.QueryBBox("people", model.BBox{X1: -180, Y1: -90, X2: 180, Y2: 90})
	if err != nil {
		t.Fatalf("QueryBBox: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].ID != int64(3) {
		t.Fatalf("old features must be gone, got %+v", fc.Features)
	}
}

func TestQueryBBox_UnknownLayerEmpty(t *testing.T) {
	x := NewIndex(nil)
	fc, err := x.QueryBBox("ghost", model.BBox{X1: -1, Y1: -1, X2: 1, Y2: 1})
	if err != nil {
		t.Fatalf("QueryBBox: %v", err)
	}
	if len(fc.Features) != 0 {
		t.Fatalf("unknown layer should yield empty collection")
	}
}

func TestQueryBBox_InvalidBBox(t *testing.T) {
	x := NewIndex(nil)
	if _, err := x.QueryBBox("people", model.BBox{X1: 10, Y1: 0, X2: -10, Y2: 1}); err == nil {
		t.Fatalf("expected validation error for inverted bbox")
	}
}

func TestReplace_SkipsNonPointGeometries(t *testing.T) {
	x := NewIndex(nil)
	x.Replace("places", model.FeatureCollection{Features: []model.Feature{
		pointFeature(1, -76.80, 18.01),
		{Type: "Feature", ID: int64(2), Geometry: model.Geometry{Type: "Polygon"}},
	}})
	if got := x.Count("places"); got != 1 {
		t.Fatalf("Count=%d want 1 (polygon skipped)", got)
	}
}
