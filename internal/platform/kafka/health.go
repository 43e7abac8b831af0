// Package kafka holds Kafka helpers shared by the producer and health checks.
package kafka

import (
	"context"
	"fmt"
)

// Pinger is satisfied by the producer; franz-go pings the seed brokers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports the audit sink as down when no broker answers.
// Verification keeps working either way; audit events are buffered.
type HealthChecker struct {
	client Pinger
	topic  string
}

func NewHealthChecker(client Pinger, topic string) *HealthChecker {
	return &HealthChecker{client: client, topic: topic}
}

func (h *HealthChecker) Check(ctx context.Context) error {
	if err := h.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka (topic %s): %w", h.topic, err)
	}
	return nil
}

func (h *HealthChecker) Name() string {
	return "kafka"
}
