package boundary

import (
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// Locate returns the zone containing the point and the containing region's
// index. ok is false when no region contains the point (open water, unmapped
// territory): that is an answer, not an error. Candidates are tried in
// ascending region order so overlapping inputs resolve deterministically.
func (d *Dataset) Locate(p domain.GeoPoint) (zone string, region int, ok bool) {
	for _, idx := range d.index.QueryPoint(p) {
		if d.regions[idx].contains(p) {
			return d.regions[idx].ZoneID, idx, true
		}
	}
	return "", -1, false
}

// Contains reports whether the given region contains the point.
func (d *Dataset) Contains(region int, p domain.GeoPoint) bool {
	if region < 0 || region >= len(d.regions) {
		return false
	}
	return d.regions[region].contains(p)
}
