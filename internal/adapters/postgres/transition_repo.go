package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// TransitionRepo implements ports.TransitionJournal.
type TransitionRepo struct {
	db *DB
}

func NewTransitionRepo(db *DB) *TransitionRepo {
	return &TransitionRepo{db: db}
}

// Record appends one confirmed transition. Re-recording the same transition
// ID is a no-op so broker redeliveries cannot duplicate journal rows.
func (r *TransitionRepo) Record(ctx context.Context, t *domain.ZoneTransition) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO zone_transitions (id, time, entity_id, from_zone, to_zone, location)
		VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography)
		ON CONFLICT (id) DO NOTHING
	`, t.ID, t.Time, t.EntityID, nilIfEmpty(t.FromZone), t.ToZone,
		t.Location.Lon, t.Location.Lat)
	return err
}

// Recent returns the newest transitions first. An empty entityID returns
// transitions for all entities.
func (r *TransitionRepo) Recent(ctx context.Context, entityID string, limit int) ([]domain.ZoneTransition, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, time, entity_id, from_zone, to_zone,
			ST_Y(location::geometry) as lat,
			ST_X(location::geometry) as lon
		FROM zone_transitions
		WHERE ($1 = '' OR entity_id = $1)
		ORDER BY time DESC
		LIMIT $2
	`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []domain.ZoneTransition
	for rows.Next() {
		var t domain.ZoneTransition
		var fromZone sql.NullString
		if err := rows.Scan(
			&t.ID, &t.Time, &t.EntityID, &fromZone, &t.ToZone,
			&t.Location.Lat, &t.Location.Lon,
		); err != nil {
			return nil, err
		}
		t.FromZone = fromZone.String
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// CountByZone tallies confirmed transitions per destination zone since the
// given time.
func (r *TransitionRepo) CountByZone(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT to_zone, COUNT(*)
		FROM zone_transitions
		WHERE time >= $1
		GROUP BY to_zone
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var zone string
		var n int
		if err := rows.Scan(&zone, &n); err != nil {
			return nil, err
		}
		counts[zone] = n
	}
	return counts, rows.Err()
}

// nilIfEmpty converts empty strings to nil so the column stays NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
