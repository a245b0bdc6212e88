package model

// Standard GeoJSON output types. Only Point geometries are produced by the
// transforms; the types stay generic enough to round-trip upstream payloads.

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

func NewPoint(lon, lat float64) Geometry {
	return Geometry{Type: "Point", Coordinates: []float64{lon, lat}}
}

func EmptyCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// PersonRecord mirrors one row of the upstream /api/people response.
// Coordinates arrive as strings and are parsed during transform.
type PersonRecord struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Status      string `json:"status"`
	ParishID    string `json:"parishId"`
	CommunityID string `json:"communityId"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type PlaceRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Capacity    int    `json:"capacity,omitempty"`
	Occupancy   int    `json:"occupancy,omitempty"`
	ParishID    string `json:"parishId"`
	CommunityID string `json:"communityId"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type AssetRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	ParishID    string `json:"parishId"`
	CommunityID string `json:"communityId"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}
