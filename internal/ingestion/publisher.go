// Package ingestion handles the daemon's NATS surface: publishing committed
// engine events for downstream consumers.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"FarmLedger/internal/event"
	"FarmLedger/internal/observability"
)

// OutboundPublisher publishes committed events to NATS. Publishing happens
// after the engine commits; a failed publish is non-fatal because consumers
// can always re-read the Postgres event log.
// Subjects follow the pattern farm.ledger.events.{event_type}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.Envelope
	metrics   *observability.Metrics
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan *event.Envelope, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run drains the publish channel until the context is cancelled.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, env); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", env.Sequence, err)
				if op.metrics != nil {
					op.metrics.PublishErrors.Inc()
				}
				continue
			}
			if op.metrics != nil {
				op.metrics.EventsPublished.WithLabelValues(env.Type.String()).Inc()
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("farm.ledger.events.%s", env.Type)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "FARM_LEDGER_EVENTS",
		Subjects:  []string{"farm.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream FARM_LEDGER_EVENTS")
	return nil
}
