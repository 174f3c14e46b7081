package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Producer is the subset of the Kafka producer the audit publisher needs.
// Defined here so the audit package does not depend on a concrete client.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Publisher forwards audit events to a Kafka topic keyed by tenant ID so all
// events for one tenant land in the same partition, preserving their order.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// NewPublisher creates a Kafka-backed audit publisher.
func NewPublisher(producer Producer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// Emit serializes the event and publishes it. Emission failures are reported
// to the caller; callers treat audit delivery as best-effort and log instead
// of failing the business operation.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	if err := p.producer.Produce(ctx, p.topic, []byte(event.TenantID), value); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "audit event published",
			"action", event.Action,
			"tenant_id", event.TenantID,
		)
	}
	return nil
}
