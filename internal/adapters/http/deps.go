package http

import (
	"github.com/nats-io/nats.go"

	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/postgres"
	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/valkey"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/ports"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
// Journal, Publisher, NATS, DB and Cache are optional; handlers that need a
// missing one respond 503 instead of failing at startup.
type Dependencies struct {
	Tracker   *usecases.TrackerService
	Datasets  *usecases.DatasetService
	Journal   ports.TransitionJournal
	Publisher ports.EventPublisher
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
