// Package router validates and normalizes user input for the layer API.
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/avelezdev/geolayers/internal/model"
)

// ParseBBox parses the viewport parameter "x1,y1,x2,y2" with an optional
// trailing SRID. Only EPSG:4326 is accepted.
func ParseBBox(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: x1,y1,x2,y2")
	}
	if len(parts) == 5 {
		srid := strings.ToUpper(strings.TrimSpace(parts[4]))
		if srid != "EPSG:4326" {
			return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
		}
	}

	x1, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	y1, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	x2, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	y2, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	bb := model.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if err := bb.Validate(); err != nil {
		return model.BBox{}, err
	}
	return bb, nil
}

// ParseZoom parses the map zoom parameter, clamped to the web-mercator range.
func ParseZoom(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing required parameter: zoom")
	}
	z, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("zoom: %w", err)
	}
	if z < 0 || z > 24 {
		return 0, errors.New("zoom must be in [0,24]")
	}
	return z, nil
}

// ParseOpacity validates the opacity payload value.
func ParseOpacity(v float64) error {
	if v < 0 || v > 1 {
		return errors.New("opacity must be in [0,1]")
	}
	return nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
