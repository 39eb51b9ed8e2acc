package boundary

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// DefaultAdjacencyToleranceDeg is the gap, in degrees, below which two
// different-zone boundaries count as touching. Land borders in the upstream
// dataset share exact vertex chains; the tolerance bridges digitization gaps
// without pulling regions across straits into adjacency.
const DefaultAdjacencyToleranceDeg = 0.05

// CompileOptions tunes dataset compilation.
type CompileOptions struct {
	AdjacencyToleranceDeg float64
	Source                string
}

// Dataset is an immutable compiled boundary dataset: regions, spatial index
// and the true-adjacency relation. All lookups are safe for concurrent use;
// a reload builds a fresh Dataset and swaps it in wholesale.
type Dataset struct {
	version string
	source  string
	builtAt time.Time

	regions []Region
	zones   map[string][]int
	index   *SpatialIndex
	adj     *adjacency
}

// Compile validates and compiles boundary records into a Dataset. Any
// malformed record fails the whole build so a previously active dataset
// stays in service.
func Compile(records []domain.BoundaryRecord, version string, opts CompileOptions) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("boundary dataset has no records")
	}

	tol := opts.AdjacencyToleranceDeg
	if tol <= 0 {
		tol = DefaultAdjacencyToleranceDeg
	}

	var regions []Region
	for ri, rec := range records {
		if rec.ZoneID == "" {
			return nil, fmt.Errorf("record %d: empty zone id", ri)
		}
		if len(rec.Polygons) == 0 {
			return nil, fmt.Errorf("zone %q: no polygons", rec.ZoneID)
		}
		for pi, poly := range rec.Polygons {
			region, err := compileRegion(rec.ZoneID, poly)
			if err != nil {
				return nil, fmt.Errorf("zone %q polygon %d: %w", rec.ZoneID, pi, err)
			}
			region.Index = len(regions)
			regions = append(regions, region)
		}
	}

	zones := make(map[string][]int, len(records))
	for i, r := range regions {
		zones[r.ZoneID] = append(zones[r.ZoneID], i)
	}

	d := &Dataset{
		version: version,
		source:  opts.Source,
		builtAt: time.Now().UTC(),
		regions: regions,
		zones:   zones,
		index:   newSpatialIndex(regions),
	}
	d.adj = buildAdjacency(d.regions, d.index, tol)
	return d, nil
}

func compileRegion(zone string, poly domain.PolygonRings) (Region, error) {
	if len(poly) == 0 {
		return Region{}, fmt.Errorf("polygon has no rings")
	}

	rings := make([]domain.Ring, 0, len(poly))
	envs := make([]domain.Envelope, 0, len(poly))
	for i, ring := range poly {
		closed, err := closeRing(ring)
		if err != nil {
			return Region{}, fmt.Errorf("ring %d: %w", i, err)
		}
		rings = append(rings, closed)
		envs = append(envs, ringEnvelope(closed))
	}

	env := envs[0]
	if env.MinLat >= env.MaxLat || env.MinLon >= env.MaxLon {
		return Region{}, fmt.Errorf("degenerate outer ring")
	}

	return Region{ZoneID: zone, Env: env, rings: rings, ringEnvs: envs}, nil
}

// closeRing validates coordinates and returns a ring whose last vertex
// repeats the first, copying when it has to append.
func closeRing(ring domain.Ring) (domain.Ring, error) {
	for _, p := range ring {
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
			return nil, fmt.Errorf("non-finite coordinate")
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return nil, fmt.Errorf("coordinate out of range: (%v, %v)", p.Lat, p.Lon)
		}
	}

	distinct := len(ring)
	if distinct >= 2 && ring[0] == ring[len(ring)-1] {
		distinct--
	}
	if distinct < 3 {
		return nil, fmt.Errorf("ring has %d distinct vertices, need at least 3", distinct)
	}

	if ring[0] != ring[len(ring)-1] {
		closed := make(domain.Ring, 0, len(ring)+1)
		closed = append(closed, ring...)
		closed = append(closed, ring[0])
		return closed, nil
	}
	return ring, nil
}

// Version returns the dataset's version token.
func (d *Dataset) Version() string { return d.version }

// Info summarizes the dataset for diagnostics.
func (d *Dataset) Info() domain.DatasetInfo {
	return domain.DatasetInfo{
		Version:        d.version,
		Source:         d.source,
		Zones:          len(d.zones),
		Regions:        len(d.regions),
		AdjacencyPairs: d.adj.pairs,
		BuiltAt:        d.builtAt,
	}
}

// ZoneIDs returns every zone identifier in the dataset, sorted.
func (d *Dataset) ZoneIDs() []string {
	ids := make([]string, 0, len(d.zones))
	for z := range d.zones {
		ids = append(ids, z)
	}
	sort.Strings(ids)
	return ids
}

// ZoneRegions returns the region indexes making up a zone.
func (d *Dataset) ZoneRegions(zone string) []int {
	return d.zones[zone]
}

// RegionZone returns the zone id for a region index.
func (d *Dataset) RegionZone(idx int) string {
	if idx < 0 || idx >= len(d.regions) {
		return ""
	}
	return d.regions[idx].ZoneID
}

// RegionCount returns the number of compiled regions.
func (d *Dataset) RegionCount() int { return len(d.regions) }
