package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "TZTRACKER_POSITIONS",
			Subjects:  []string{"tztracker.position.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "TZTRACKER_EVENTS",
			Subjects:  []string{"tztracker.evaluation.>", "tztracker.zone.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishPositionSample feeds a sample into the work queue consumed by the
// evaluation engine. Samples without an entity ID ride a fixed token; the
// engine applies its configured default entity when it evaluates them.
func (p *Publisher) PublishPositionSample(ctx context.Context, sample *domain.PositionSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	subject := "tztracker.position.default"
	if sample.EntityID != "" {
		subject = "tztracker.position." + sample.EntityID
	}
	_, err = p.js.Publish(subject, data)
	return err
}

func (p *Publisher) PublishEvaluation(ctx context.Context, ev *domain.Evaluation) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("tztracker.evaluation."+ev.EntityID, data)
	return err
}

func (p *Publisher) PublishZoneChange(ctx context.Context, t *domain.ZoneTransition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("tztracker.zone.changed."+t.EntityID, data)
	return err
}

func (p *Publisher) PublishBroadcast(ctx context.Context, data []byte) error {
	return p.conn.Publish("tztracker.updates.broadcast", data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
