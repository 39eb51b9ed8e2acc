package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/metrics"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing a NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePositionSamples consumes the position work queue. Transient
// handler failures are NAKed for redelivery up to the MaxDeliver limit;
// undecodable payloads and invalid samples are terminated so a poison
// message cannot cycle through the queue.
func (s *Subscriber) SubscribePositionSamples(ctx context.Context, handler func(ctx context.Context, sample *domain.PositionSample) error) error {
	sub, err := s.js.Subscribe("tztracker.position.>", func(msg *nats.Msg) {
		var sample domain.PositionSample
		if err := json.Unmarshal(msg.Data, &sample); err != nil {
			slog.Warn("dropping undecodable position sample", "subject", msg.Subject, "error", err)
			metrics.SamplesConsumed.WithLabelValues("bad_payload").Inc()
			_ = msg.Term()
			return
		}
		if sample.EntityID == "" {
			// Producers may rely on the subject to carry the entity id.
			// The "default" token means none was given; the engine then
			// applies its configured default entity.
			if tok := strings.TrimPrefix(msg.Subject, "tztracker.position."); tok != "default" {
				sample.EntityID = tok
			}
		}
		if err := handler(ctx, &sample); err != nil {
			if errors.Is(err, domain.ErrInvalidSample) {
				slog.Warn("dropping invalid position sample", "entity", sample.EntityID, "error", err)
				metrics.SamplesConsumed.WithLabelValues("invalid").Inc()
				_ = msg.Term()
				return
			}
			metrics.SamplesConsumed.WithLabelValues("error").Inc()
			_ = msg.Nak()
			return
		}
		metrics.SamplesConsumed.WithLabelValues("ok").Inc()
		_ = msg.Ack()
	},
		nats.Durable("tracker-engine"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
