package ports

import (
	"context"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// TransitionJournal persists confirmed zone transitions.
type TransitionJournal interface {
	Record(ctx context.Context, tr *domain.ZoneTransition) error
	Recent(ctx context.Context, entityID string, limit int) ([]domain.ZoneTransition, error)
	CountByZone(ctx context.Context, since time.Time) (map[string]int, error)
}

// StateStore persists per-entity tracking state so confirmed and pending
// zones survive a restart.
type StateStore interface {
	Load(ctx context.Context, entityID string) (*domain.TimezoneState, error)
	Save(ctx context.Context, state *domain.TimezoneState) error
}
