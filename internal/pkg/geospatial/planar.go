package geospatial

import "math"

// Plane is a local tangent-plane approximation centered on an origin point.
// X points east, Y points north, units are miles. Longitude deltas are scaled
// by the cosine of the origin latitude, which holds up within a few hundred
// miles of the origin away from the poles.
type Plane struct {
	originLat float64
	originLon float64
	cosLat    float64
}

// NewPlane creates a local plane centered on (lat, lon).
func NewPlane(lat, lon float64) Plane {
	return Plane{originLat: lat, originLon: lon, cosLat: math.Cos(toRad(lat))}
}

// XY projects a point into the plane.
func (p Plane) XY(lat, lon float64) (x, y float64) {
	x = (lon - p.originLon) * p.cosLat * MilesPerDegree
	y = (lat - p.originLat) * MilesPerDegree
	return x, y
}

// HeadingVector returns the unit direction for a heading in degrees clockwise
// from north, in plane coordinates.
func HeadingVector(headingDeg float64) (dx, dy float64) {
	theta := toRad(headingDeg)
	return math.Sin(theta), math.Cos(theta)
}

// PointSegmentDistance returns the distance from point (px, py) to the
// segment (ax, ay)-(bx, by).
func PointSegmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx := bx - ax
	dy := by - ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px-ax, py-ay)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}

// RaySegment returns the distance along the ray from (ox, oy) in direction
// (dx, dy) to its intersection with the segment (ax, ay)-(bx, by). The second
// return is false when the ray misses the segment or runs parallel to it.
func RaySegment(ox, oy, dx, dy, ax, ay, bx, by float64) (float64, bool) {
	sx := bx - ax
	sy := by - ay

	denom := dx*sy - dy*sx
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}

	t := ((ax-ox)*sy - (ay-oy)*sx) / denom
	u := ((ax-ox)*dy - (ay-oy)*dx) / denom
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}
