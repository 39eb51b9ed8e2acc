package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

const stateKeyPrefix = "tztracker:state:"

// StateStore persists per-entity confirmation state in Valkey so the engine
// survives restarts without losing hysteresis progress. It implements
// ports.StateStore.
type StateStore struct {
	client valkey.Client
}

// NewStateStore shares the cache's underlying client.
func NewStateStore(c *Cache) *StateStore {
	return &StateStore{client: c.client}
}

// Load returns the saved state for an entity, or nil when none exists.
func (s *StateStore) Load(ctx context.Context, entityID string) (*domain.TimezoneState, error) {
	cmd := s.client.Do(ctx, s.client.B().Get().Key(stateKeyPrefix+entityID).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state %s: %w", entityID, err)
	}

	b, err := cmd.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", entityID, err)
	}

	var st domain.TimezoneState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", entityID, err)
	}
	return &st, nil
}

// Save writes the state without expiry; it stays until overwritten.
func (s *StateStore) Save(ctx context.Context, st *domain.TimezoneState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.EntityID, err)
	}

	cmd := s.client.Do(ctx,
		s.client.B().Set().Key(stateKeyPrefix+st.EntityID).Value(string(b)).Build(),
	)
	if err := cmd.Error(); err != nil {
		return fmt.Errorf("save state %s: %w", st.EntityID, err)
	}
	return nil
}
