package boundary

import (
	"sort"

	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/geospatial"
)

// adjacency is the compiled true-adjacency relation: region pairs whose
// boundaries come within tolerance of each other AND whose zone ids differ.
// Same-zone multipolygon seams and coastline edges never appear here, which
// is what keeps distance answers meaningful near oceans.
type adjacency struct {
	neighbors [][]int
	pairs     int
}

// buildAdjacency runs once at compile time. Candidate pairs come from the
// spatial index with envelopes expanded by the tolerance; candidates are then
// confirmed by measuring ring vertices against the other region's segments.
func buildAdjacency(regions []Region, index *SpatialIndex, tolDeg float64) *adjacency {
	adj := &adjacency{neighbors: make([][]int, len(regions))}

	for i := range regions {
		expanded := regions[i].Env.Expand(tolDeg)
		for _, j := range index.Query(expanded) {
			if j <= i {
				continue
			}
			if regions[j].ZoneID == regions[i].ZoneID {
				continue
			}
			if !boundariesTouch(&regions[i], &regions[j], tolDeg) {
				continue
			}
			adj.neighbors[i] = append(adj.neighbors[i], j)
			adj.neighbors[j] = append(adj.neighbors[j], i)
			adj.pairs++
		}
	}

	for i := range adj.neighbors {
		sort.Ints(adj.neighbors[i])
	}
	return adj
}

// boundariesTouch reports whether any boundary vertex of one region lies
// within tolerance of a boundary segment of the other. Shared land borders in
// the upstream dataset repeat the same vertex chain on both sides, so the
// first probe almost always decides; the symmetric pass covers borders whose
// vertex densities differ.
func boundariesTouch(a, b *Region, tolDeg float64) bool {
	// Tolerance compared in planar miles around the candidate area.
	plane := geospatial.NewPlane(
		(centerLat(a.Env)+centerLat(b.Env))/2,
		(centerLon(a.Env)+centerLon(b.Env))/2,
	)
	tolMiles := tolDeg * geospatial.MilesPerDegree

	return verticesNearRings(plane, a, b, tolDeg, tolMiles) ||
		verticesNearRings(plane, b, a, tolDeg, tolMiles)
}

func verticesNearRings(plane geospatial.Plane, src, dst *Region, tolDeg, tolMiles float64) bool {
	for ri, ring := range src.rings {
		if !src.ringEnvs[ri].Expand(tolDeg).Intersects(dst.Env) {
			continue
		}
		for _, v := range ring {
			if !dst.Env.Expand(tolDeg).Contains(v) {
				continue
			}
			vx, vy := plane.XY(v.Lat, v.Lon)
			for di, dring := range dst.rings {
				if !dst.ringEnvs[di].Expand(tolDeg).Contains(v) {
					continue
				}
				for k := 0; k < len(dring)-1; k++ {
					ax, ay := plane.XY(dring[k].Lat, dring[k].Lon)
					bx, by := plane.XY(dring[k+1].Lat, dring[k+1].Lon)
					if geospatial.PointSegmentDistance(vx, vy, ax, ay, bx, by) <= tolMiles {
						return true
					}
				}
			}
		}
	}
	return false
}

// TrueAdjacent reports whether the two regions form a true adjacency.
// The relation is symmetric.
func (d *Dataset) TrueAdjacent(a, b int) bool {
	if a < 0 || a >= len(d.regions) || b < 0 || b >= len(d.regions) {
		return false
	}
	for _, n := range d.adj.neighbors[a] {
		if n == b {
			return true
		}
	}
	return false
}

// NeighborRegions returns the regions true-adjacent to the given region,
// in ascending index order.
func (d *Dataset) NeighborRegions(region int) []int {
	if region < 0 || region >= len(d.regions) {
		return nil
	}
	return d.adj.neighbors[region]
}

// NeighborZones returns the distinct zone ids true-adjacent to any region of
// the given zone, sorted.
func (d *Dataset) NeighborZones(zone string) []string {
	seen := make(map[string]struct{})
	for _, ri := range d.zones[zone] {
		for _, ni := range d.adj.neighbors[ri] {
			seen[d.regions[ni].ZoneID] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for z := range seen {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}
