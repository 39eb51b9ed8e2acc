// Package geojson loads timezone boundary data published by the
// timezone-boundary-builder project and converts it into boundary records.
package geojson

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// feature mirrors the subset of a GeoJSON feature this service reads.
type feature struct {
	Properties featureProps `json:"properties"`
	Geometry   *geometry    `json:"geometry"`
}

// featureProps carries the zone identifier. Release files use "tzid";
// hand-built files sometimes use "id" instead. Unmarshalling is
// case-insensitive, so "TZID" is covered as well.
type featureProps struct {
	TZID string `json:"tzid"`
	ID   string `json:"id"`
}

func (p featureProps) zoneID() string {
	if p.TZID != "" {
		return p.TZID
	}
	return p.ID
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Loader reads a GeoJSON FeatureCollection from disk, optionally filtered
// to a named region. It implements ports.BoundarySource.
type Loader struct {
	path   string
	region string
}

func NewLoader(path, region string) *Loader {
	return &Loader{path: path, region: region}
}

// Load parses the boundary file feature by feature. Features with a missing
// zone identifier or an unparseable geometry are skipped with a warning so a
// few bad features cannot take down the whole dataset.
func (l *Loader) Load(ctx context.Context) ([]domain.BoundaryRecord, string, error) {
	prefixes, err := RegionPrefixes(l.region)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, "", fmt.Errorf("open boundary file: %w", err)
	}
	defer f.Close()

	var records []domain.BoundaryRecord
	err = eachFeature(bufio.NewReaderSize(f, 1<<20), func(raw json.RawMessage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ft feature
		if err := json.Unmarshal(raw, &ft); err != nil {
			slog.Warn("skipping malformed boundary feature", "error", err)
			return nil
		}
		zone := ft.Properties.zoneID()
		if zone == "" || ft.Geometry == nil {
			return nil
		}
		if !MatchesRegion(zone, prefixes) {
			return nil
		}
		polygons, err := parseGeometry(ft.Geometry)
		if err != nil {
			slog.Warn("skipping boundary feature", "zone", zone, "error", err)
			return nil
		}
		records = append(records, domain.BoundaryRecord{
			ZoneID:   zone,
			Polygons: polygons,
		})
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", l.path, err)
	}

	desc := l.path
	if l.region != "" && l.region != "all" {
		desc = fmt.Sprintf("%s (region %s)", l.path, l.region)
	}
	return records, desc, nil
}

// eachFeature streams the features array of a FeatureCollection without
// holding the whole document in memory. The boundary file for all timezones
// runs past 100 MB, so this matters on small hosts.
func eachFeature(r io.Reader, fn func(raw json.RawMessage) error) error {
	dec := json.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return errors.New("no features array found")
		}
		if err != nil {
			return err
		}
		if key, ok := tok.(string); ok && key == "features" {
			break
		}
	}

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return errors.New("features is not an array")
	}

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

// parseGeometry converts a GeoJSON Polygon or MultiPolygon into ring form.
// GeoJSON positions are [lon, lat].
func parseGeometry(g *geometry) ([]domain.PolygonRings, error) {
	switch g.Type {
	case "Polygon":
		var coords [][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("polygon coordinates: %w", err)
		}
		rings, err := toRings(coords)
		if err != nil {
			return nil, err
		}
		return []domain.PolygonRings{rings}, nil
	case "MultiPolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		polygons := make([]domain.PolygonRings, 0, len(coords))
		for _, poly := range coords {
			rings, err := toRings(poly)
			if err != nil {
				return nil, err
			}
			polygons = append(polygons, rings)
		}
		return polygons, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func toRings(coords [][][]float64) (domain.PolygonRings, error) {
	rings := make(domain.PolygonRings, 0, len(coords))
	for _, rc := range coords {
		ring := make(domain.Ring, 0, len(rc))
		for _, pos := range rc {
			if len(pos) < 2 {
				return nil, fmt.Errorf("position has %d coordinates, need lon and lat", len(pos))
			}
			ring = append(ring, domain.GeoPoint{Lat: pos[1], Lon: pos[0]})
		}
		rings = append(rings, ring)
	}
	return rings, nil
}
