package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Ring is an ordered sequence of coordinates forming a closed loop.
// Compilation closes rings whose last vertex differs from the first.
type Ring []GeoPoint

// Envelope represents a geographic bounding box.
type Envelope struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point lies inside or on the envelope.
func (e Envelope) Contains(p GeoPoint) bool {
	return p.Lat >= e.MinLat && p.Lat <= e.MaxLat &&
		p.Lon >= e.MinLon && p.Lon <= e.MaxLon
}

// Intersects reports whether the two envelopes overlap.
func (e Envelope) Intersects(o Envelope) bool {
	return e.MinLat <= o.MaxLat && e.MaxLat >= o.MinLat &&
		e.MinLon <= o.MaxLon && e.MaxLon >= o.MinLon
}

// Expand grows the envelope by deg degrees on every side.
func (e Envelope) Expand(deg float64) Envelope {
	return Envelope{
		MinLat: e.MinLat - deg,
		MinLon: e.MinLon - deg,
		MaxLat: e.MaxLat + deg,
		MaxLon: e.MaxLon + deg,
	}
}

// Extend returns the envelope grown to cover the point.
func (e Envelope) Extend(p GeoPoint) Envelope {
	if p.Lat < e.MinLat {
		e.MinLat = p.Lat
	}
	if p.Lat > e.MaxLat {
		e.MaxLat = p.Lat
	}
	if p.Lon < e.MinLon {
		e.MinLon = p.Lon
	}
	if p.Lon > e.MaxLon {
		e.MaxLon = p.Lon
	}
	return e
}
