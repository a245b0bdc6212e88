// Package geojson converts upstream entity records into GeoJSON
// FeatureCollections and merges collections from multiple sources.
package geojson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/avelezdev/geolayers/internal/model"
)

// Result carries a transform output plus the number of records excluded for
// malformed or missing coordinates. Exclusion is deliberate: a bad record
// must never fail the whole layer.
type Result struct {
	Collection model.FeatureCollection
	Skipped    int
}

// Transform decodes a raw upstream response body for the given category and
// produces one Point feature per well-formed record.
func Transform(cat model.Category, body []byte) (Result, error) {
	switch cat {
	case model.CategoryPeople:
		var recs []model.PersonRecord
		if err := json.Unmarshal(body, &recs); err != nil {
			return Result{}, fmt.Errorf("decode people: %w", err)
		}
		return People(recs), nil
	case model.CategoryPlaces:
		var recs []model.PlaceRecord
		if err := json.Unmarshal(body, &recs); err != nil {
			return Result{}, fmt.Errorf("decode places: %w", err)
		}
		return Places(recs), nil
	case model.CategoryAssets:
		var recs []model.AssetRecord
		if err := json.Unmarshal(body, &recs); err != nil {
			return Result{}, fmt.Errorf("decode assets: %w", err)
		}
		return Assets(recs), nil
	default:
		return Result{}, fmt.Errorf("unknown category %q", cat)
	}
}

func People(recs []model.PersonRecord) Result {
	out := model.EmptyCollection()
	skipped := 0
	for _, r := range recs {
		geom, ok := pointFrom(r.Longitude, r.Latitude)
		if !ok {
			skipped++
			continue
		}
		out.Features = append(out.Features, model.Feature{
			Type:     "Feature",
			ID:       r.ID,
			Geometry: geom,
			Properties: map[string]any{
				"category":    string(model.CategoryPeople),
				"name":        strings.TrimSpace(r.FirstName + " " + r.LastName),
				"status":      r.Status,
				"parishId":    r.ParishID,
				"communityId": r.CommunityID,
				"updatedAt":   r.UpdatedAt,
			},
		})
	}
	return Result{Collection: out, Skipped: skipped}
}

func Places(recs []model.PlaceRecord) Result {
	out := model.EmptyCollection()
	skipped := 0
	for _, r := range recs {
		geom, ok := pointFrom(r.Longitude, r.Latitude)
		if !ok {
			skipped++
			continue
		}
		out.Features = append(out.Features, model.Feature{
			Type:     "Feature",
			ID:       r.ID,
			Geometry: geom,
			Properties: map[string]any{
				"category":    string(model.CategoryPlaces),
				"name":        r.Name,
				"type":        r.Type,
				"capacity":    r.Capacity,
				"occupancy":   r.Occupancy,
				"parishId":    r.ParishID,
				"communityId": r.CommunityID,
				"updatedAt":   r.UpdatedAt,
			},
		})
	}
	return Result{Collection: out, Skipped: skipped}
}

func Assets(recs []model.AssetRecord) Result {
	out := model.EmptyCollection()
	skipped := 0
	for _, r := range recs {
		geom, ok := pointFrom(r.Longitude, r.Latitude)
		if !ok {
			skipped++
			continue
		}
		out.Features = append(out.Features, model.Feature{
			Type:     "Feature",
			ID:       r.ID,
			Geometry: geom,
			Properties: map[string]any{
				"category":    string(model.CategoryAssets),
				"name":        r.Name,
				"type":        r.Type,
				"status":      r.Status,
				"parishId":    r.ParishID,
				"communityId": r.CommunityID,
				"updatedAt":   r.UpdatedAt,
			},
		})
	}
	return Result{Collection: out, Skipped: skipped}
}

// pointFrom parses the upstream string lat/lon pair. Coordinates outside
// valid ranges count as malformed.
func pointFrom(lon, lat string) (model.Geometry, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return model.Geometry{}, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return model.Geometry{}, false
	}
	if x < -180 || x > 180 || y < -90 || y > 90 {
		return model.Geometry{}, false
	}
	return model.NewPoint(x, y), true
}
