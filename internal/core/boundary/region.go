package boundary

import (
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// Region is one compiled polygon tagged with its timezone identifier.
// A zone built from several polygons compiles to several regions sharing
// the same ZoneID; the region index is the position in the compiled slice.
type Region struct {
	Index  int
	ZoneID string
	Env    domain.Envelope

	rings    []domain.Ring // outer ring first, holes after
	ringEnvs []domain.Envelope
}

// contains runs the exact even-odd test: inside the outer ring and outside
// every hole.
func (r *Region) contains(p domain.GeoPoint) bool {
	if !r.Env.Contains(p) {
		return false
	}
	if !pointInRing(p, r.rings[0]) {
		return false
	}
	for i := 1; i < len(r.rings); i++ {
		if r.ringEnvs[i].Contains(p) && pointInRing(p, r.rings[i]) {
			return false
		}
	}
	return true
}

// pointInRing implements even-odd ray crossing: a horizontal ray from p
// toward +lon flips in/out at every edge it crosses.
func pointInRing(p domain.GeoPoint, ring domain.Ring) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi := ring[i]
		vj := ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lon < (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
	}
	return inside
}

// ringEnvelope computes the bounding box of a ring.
func ringEnvelope(ring domain.Ring) domain.Envelope {
	env := domain.Envelope{
		MinLat: ring[0].Lat, MaxLat: ring[0].Lat,
		MinLon: ring[0].Lon, MaxLon: ring[0].Lon,
	}
	for _, p := range ring[1:] {
		env = env.Extend(p)
	}
	return env
}
