package geospatial

import "math"

// EarthRadiusMiles is the mean earth radius used for all great-circle math.
const EarthRadiusMiles = 3958.8

// MilesPerDegree is the length of one degree of latitude.
const MilesPerDegree = EarthRadiusMiles * math.Pi / 180

// Haversine calculates the great-circle distance in miles between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

// BoundingBox returns a bounding box around a point with the given radius in miles.
func BoundingBox(lat, lon, radiusMiles float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMiles / MilesPerDegree
	lonDelta := radiusMiles / (MilesPerDegree * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// Destination returns the point reached by travelling distMiles from
// (lat, lon) along headingDeg, measured clockwise from north.
func Destination(lat, lon, headingDeg, distMiles float64) (float64, float64) {
	delta := distMiles / EarthRadiusMiles
	theta := toRad(headingDeg)
	phi1 := toRad(lat)
	lambda1 := toRad(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return toDeg(phi2), toDeg(lambda2)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
