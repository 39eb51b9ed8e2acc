package boundary

import (
	"math"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/geospatial"
)

// All distance math runs in a local tangent plane centered on the query
// point: longitude scaled by cos(lat), units in miles. Good to a fraction of
// a percent at the search radii this engine uses.

// EdgeDistance returns the minimum distance from a point inside `region` to
// the boundary of any true-adjacent region, together with the far-side zone
// id. ok is false when no true-adjacency boundary lies within radiusMiles:
// deep in a large zone's interior, or on a coastline with no land neighbor
// in range.
func (d *Dataset) EdgeDistance(p domain.GeoPoint, region int, radiusMiles float64) (float64, string, bool) {
	neighbors := d.NeighborRegions(region)
	if len(neighbors) == 0 {
		return 0, "", false
	}

	plane := geospatial.NewPlane(p.Lat, p.Lon)
	dist, ri, ok := d.minDistanceToRegions(plane, p, neighbors, radiusMiles)
	if !ok {
		return 0, "", false
	}
	return dist, d.regions[ri].ZoneID, true
}

// HeadingDistance returns the distance along the heading (degrees clockwise
// from north) to the first true-adjacency boundary intersection, with the
// far-side zone id. ok is false when the ray hits nothing within radiusMiles.
// Equal-distance hits resolve to the lowest region index, then the earliest
// segment.
func (d *Dataset) HeadingDistance(p domain.GeoPoint, headingDeg float64, region int, radiusMiles float64) (float64, string, bool) {
	neighbors := d.NeighborRegions(region)
	if len(neighbors) == 0 {
		return 0, "", false
	}

	plane := geospatial.NewPlane(p.Lat, p.Lon)
	dx, dy := geospatial.HeadingVector(headingDeg)
	dist, ri, ok := d.rayDistanceToRegions(plane, p, dx, dy, neighbors, radiusMiles)
	if !ok {
		return 0, "", false
	}
	return dist, d.regions[ri].ZoneID, true
}

// DistanceToRegion returns the minimum distance from the point to the given
// region's own boundary. Used for unresolved points measured against their
// nearest region.
func (d *Dataset) DistanceToRegion(p domain.GeoPoint, region int, radiusMiles float64) (float64, bool) {
	if region < 0 || region >= len(d.regions) {
		return 0, false
	}
	plane := geospatial.NewPlane(p.Lat, p.Lon)
	dist, _, ok := d.minDistanceToRegions(plane, p, []int{region}, radiusMiles)
	return dist, ok
}

// HeadingToRegion returns the ray distance to the given region's own
// boundary.
func (d *Dataset) HeadingToRegion(p domain.GeoPoint, headingDeg float64, region int, radiusMiles float64) (float64, bool) {
	if region < 0 || region >= len(d.regions) {
		return 0, false
	}
	plane := geospatial.NewPlane(p.Lat, p.Lon)
	dx, dy := geospatial.HeadingVector(headingDeg)
	dist, _, ok := d.rayDistanceToRegions(plane, p, dx, dy, []int{region}, radiusMiles)
	return dist, ok
}

// NearestRegion returns the region whose envelope lies closest to the point,
// searching within radiusMiles. Ties resolve to the lowest region index.
func (d *Dataset) NearestRegion(p domain.GeoPoint, radiusMiles float64) (int, bool) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(p.Lat, p.Lon, radiusMiles)
	cands := d.index.Query(domain.Envelope{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon})
	if len(cands) == 0 {
		return -1, false
	}

	plane := geospatial.NewPlane(p.Lat, p.Lon)
	best := math.MaxFloat64
	bestIdx := -1
	for _, ri := range cands {
		dist := envelopeDistance(plane, p, d.regions[ri].Env)
		if dist <= radiusMiles && dist < best {
			best = dist
			bestIdx = ri
		}
	}
	if bestIdx < 0 {
		return -1, false
	}
	return bestIdx, true
}

// minDistanceToRegions scans candidate regions' ring segments for the
// closest approach to the plane origin, pruning regions and rings whose
// envelopes already lie beyond the best distance found.
func (d *Dataset) minDistanceToRegions(plane geospatial.Plane, p domain.GeoPoint, candidates []int, radiusMiles float64) (float64, int, bool) {
	best := radiusMiles
	bestRegion := -1

	for _, ri := range candidates {
		r := &d.regions[ri]
		if envelopeDistance(plane, p, r.Env) > best {
			continue
		}
		for rj, ring := range r.rings {
			if envelopeDistance(plane, p, r.ringEnvs[rj]) > best {
				continue
			}
			ax, ay := plane.XY(ring[0].Lat, ring[0].Lon)
			for k := 1; k < len(ring); k++ {
				bx, by := plane.XY(ring[k].Lat, ring[k].Lon)
				if dist := geospatial.PointSegmentDistance(0, 0, ax, ay, bx, by); dist < best {
					best = dist
					bestRegion = ri
				}
				ax, ay = bx, by
			}
		}
	}

	if bestRegion < 0 {
		return 0, -1, false
	}
	return best, bestRegion, true
}

// rayDistanceToRegions finds the nearest ray-segment intersection over the
// candidates. The envelope distance lower-bounds any hit, so the same
// pruning applies.
func (d *Dataset) rayDistanceToRegions(plane geospatial.Plane, p domain.GeoPoint, dx, dy float64, candidates []int, radiusMiles float64) (float64, int, bool) {
	best := radiusMiles
	bestRegion := -1

	for _, ri := range candidates {
		r := &d.regions[ri]
		if envelopeDistance(plane, p, r.Env) > best {
			continue
		}
		for rj, ring := range r.rings {
			if envelopeDistance(plane, p, r.ringEnvs[rj]) > best {
				continue
			}
			ax, ay := plane.XY(ring[0].Lat, ring[0].Lon)
			for k := 1; k < len(ring); k++ {
				bx, by := plane.XY(ring[k].Lat, ring[k].Lon)
				if t, hit := geospatial.RaySegment(0, 0, dx, dy, ax, ay, bx, by); hit && t < best {
					best = t
					bestRegion = ri
				}
				ax, ay = bx, by
			}
		}
	}

	if bestRegion < 0 {
		return 0, -1, false
	}
	return best, bestRegion, true
}

// envelopeDistance measures from the plane origin (the query point) to the
// nearest point of an envelope; zero when the point lies inside it.
func envelopeDistance(plane geospatial.Plane, p domain.GeoPoint, env domain.Envelope) float64 {
	lat := p.Lat
	if lat < env.MinLat {
		lat = env.MinLat
	} else if lat > env.MaxLat {
		lat = env.MaxLat
	}

	lon := p.Lon
	if lon < env.MinLon {
		lon = env.MinLon
	} else if lon > env.MaxLon {
		lon = env.MaxLon
	}

	x, y := plane.XY(lat, lon)
	return math.Hypot(x, y)
}
