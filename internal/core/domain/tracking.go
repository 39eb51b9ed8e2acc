package domain

import (
	"time"
)

// PositionSample is a single GPS reading for a tracked entity.
// Heading is degrees clockwise from north; speed is mph. Both are optional
// because consumer-grade trackers frequently omit them.
type PositionSample struct {
	EntityID string    `json:"entity_id,omitempty"`
	Location GeoPoint  `json:"location"`
	Heading  *float64  `json:"heading,omitempty"`
	Speed    *float64  `json:"speed,omitempty"`
	Time     time.Time `json:"time"`
}

// TimezoneState holds the per-entity confirmation state. Confirmed is the
// zone currently considered authoritative; Pending tracks a candidate change
// until it has been observed enough consecutive times to commit.
type TimezoneState struct {
	EntityID     string    `json:"entity_id"`
	Confirmed    string    `json:"confirmed,omitempty"`
	Pending      string    `json:"pending,omitempty"`
	PendingCount int       `json:"pending_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Evaluation is the engine's full answer for one position sample.
// Zone fields are empty strings when there is no answer; distance fields are
// nil when nothing lies within the search radius. Distances are miles,
// NextInterval is seconds.
type Evaluation struct {
	EntityID         string    `json:"entity_id"`
	DetectedZone     string    `json:"detected_zone,omitempty"`
	ConfirmedZone    string    `json:"confirmed_zone,omitempty"`
	PendingZone      string    `json:"pending_zone,omitempty"`
	PendingCount     int       `json:"pending_count"`
	EdgeDistance     *float64  `json:"edge_distance,omitempty"`
	HeadingDistance  *float64  `json:"heading_distance,omitempty"`
	NearestZone      string    `json:"nearest_zone,omitempty"`
	DistanceCategory string    `json:"distance_category"`
	SpeedCategory    string    `json:"speed_category"`
	NextInterval     int       `json:"next_interval_seconds"`
	ZoneChanged      bool      `json:"zone_changed,omitempty"`
	DatasetVersion   string    `json:"dataset_version,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// ZoneTransition records one confirmed timezone change.
type ZoneTransition struct {
	ID       string    `json:"id"`
	EntityID string    `json:"entity_id"`
	FromZone string    `json:"from_zone,omitempty"`
	ToZone   string    `json:"to_zone"`
	Location GeoPoint  `json:"location"`
	Time     time.Time `json:"time"`
}
