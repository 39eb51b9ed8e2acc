package domain

import "time"

// BoundaryRecord is a single timezone feature from the boundary dataset:
// a zone identifier plus one or more polygons, each an outer ring optionally
// followed by hole rings.
type BoundaryRecord struct {
	ZoneID   string `json:"zone_id"`
	Polygons []PolygonRings
}

// PolygonRings is one polygon's coordinates: outer ring first, holes after.
type PolygonRings []Ring

// DatasetInfo describes the active compiled dataset.
type DatasetInfo struct {
	Version        string    `json:"version"`
	Source         string    `json:"source,omitempty"`
	Zones          int       `json:"zones"`
	Regions        int       `json:"regions"`
	AdjacencyPairs int       `json:"adjacency_pairs"`
	BuiltAt        time.Time `json:"built_at"`
}
