package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"attest/internal/platform/kafka/producer"
)

// Producer is the subset of the Kafka producer used here.
type Producer interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaStore streams events to a topic keyed by credential id, so all events
// for one credential land on one partition in order.
type KafkaStore struct {
	producer Producer
	topic    string
}

func NewKafkaStore(p Producer, topic string) *KafkaStore {
	return &KafkaStore{producer: p, topic: topic}
}

// Append encodes e as JSON and enqueues it without waiting for the broker.
func (s *KafkaStore) Append(_ context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(e.CredentialID),
		Value: value,
		Headers: map[string]string{
			"action": string(e.Action),
		},
	})
}
