package ports

import (
	"context"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishPositionSample(ctx context.Context, sample *domain.PositionSample) error
	PublishEvaluation(ctx context.Context, ev *domain.Evaluation) error
	PublishZoneChange(ctx context.Context, tr *domain.ZoneTransition) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePositionSamples(ctx context.Context, handler func(ctx context.Context, sample *domain.PositionSample) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// PositionProvider fetches the current position of a tracked entity from
// the home automation side.
type PositionProvider interface {
	FetchSample(ctx context.Context, entityID string) (*domain.PositionSample, error)
}

// ZoneNotifier pushes a confirmed zone change back to the home automation
// side.
type ZoneNotifier interface {
	NotifyZoneChange(ctx context.Context, tr *domain.ZoneTransition) error
}

// BoundarySource loads raw boundary records for dataset compilation. The
// second return value describes where the records came from.
type BoundarySource interface {
	Load(ctx context.Context) ([]domain.BoundaryRecord, string, error)
}

// BoundaryFetcher downloads a fresh copy of the upstream boundary archive
// and returns the local path it was written to.
type BoundaryFetcher interface {
	Fetch(ctx context.Context) (string, error)
}
