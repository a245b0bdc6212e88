// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

// Category identifies a tracked entity class fed by one upstream endpoint.
type Category string

const (
	CategoryPeople Category = "people"
	CategoryPlaces Category = "places"
	CategoryAssets Category = "assets"
)

func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPeople:
		return CategoryPeople, nil
	case CategoryPlaces:
		return CategoryPlaces, nil
	case CategoryAssets:
		return CategoryAssets, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Endpoint returns the upstream REST path serving this category.
func (c Category) Endpoint() string {
	return "/api/" + string(c)
}

func (c Category) Valid() bool {
	switch c {
	case CategoryPeople, CategoryPlaces, CategoryAssets:
		return true
	}
	return false
}

// GeometryType selects the rendered layer kind and with it the paint
// property names the map understands.
type GeometryType string

const (
	GeometryCircle  GeometryType = "circle"
	GeometryFill    GeometryType = "fill"
	GeometryHeatmap GeometryType = "heatmap"
)

func (g GeometryType) Valid() bool {
	switch g {
	case GeometryCircle, GeometryFill, GeometryHeatmap:
		return true
	}
	return false
}

// OpacityProperty is the paint property that controls opacity for this
// geometry type.
func (g GeometryType) OpacityProperty() string {
	switch g {
	case GeometryFill:
		return "fill-opacity"
	case GeometryHeatmap:
		return "heatmap-opacity"
	default:
		return "circle-opacity"
	}
}

// LayerConfig describes one togglable visual layer. Created once at
// initialization per entity category and registered with the layer manager.
type LayerConfig struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Geometry GeometryType   `json:"geometry"`
	SourceID string         `json:"sourceId"`
	Category Category       `json:"category"`
	Endpoint string         `json:"endpoint,omitempty"`
	Paint    map[string]any `json:"paint,omitempty"`
	MinZoom  float64        `json:"minZoom,omitempty"`
	MaxZoom  float64        `json:"maxZoom,omitempty"`
	Opacity  float64        `json:"opacity,omitempty"`
	Color    string         `json:"color,omitempty"`
	Icon     string         `json:"icon,omitempty"`
	Children []string       `json:"children,omitempty"`
	Visible  bool           `json:"visible"`
}

func (c LayerConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("layer id is required")
	}
	if !c.Geometry.Valid() {
		return fmt.Errorf("invalid geometry type %q (want circle|fill|heatmap)", c.Geometry)
	}
	if strings.TrimSpace(c.SourceID) == "" {
		return fmt.Errorf("source id is required")
	}
	if !c.Category.Valid() {
		return fmt.Errorf("invalid category %q", c.Category)
	}
	if c.MaxZoom != 0 && c.MinZoom > c.MaxZoom {
		return fmt.Errorf("minZoom %v exceeds maxZoom %v", c.MinZoom, c.MaxZoom)
	}
	for _, ch := range c.Children {
		if ch == c.ID {
			return fmt.Errorf("layer %q lists itself as a child", c.ID)
		}
	}
	return nil
}

// EndpointPath is the upstream path to fetch this layer's data from.
func (c LayerConfig) EndpointPath() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return c.Category.Endpoint()
}

// BBox is a lon/lat viewport rectangle.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
}

func (b BBox) Validate() error {
	if !(b.X1 >= -180 && b.X1 <= 180 && b.X2 >= -180 && b.X2 <= 180) {
		return fmt.Errorf("longitude must be in [-180,180]")
	}
	if !(b.Y1 >= -90 && b.Y1 <= 90 && b.Y2 >= -90 && b.Y2 <= 90) {
		return fmt.Errorf("latitude must be in [-90,90]")
	}
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return fmt.Errorf("coordinates must satisfy x2>x1 and y2>y1")
	}
	return nil
}
