package saga

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is the topic-bound producer side of the bus.
// *kafka.Producer satisfies it; tests use a recording stub.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Dedup tracks already-processed event ids per consumer. At-least-once
// delivery means every handler checks Seen before applying and Marks after.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Emit builds the envelope for payload and hands it to p with the standard headers.
func Emit(p Publisher, eventType, aggregateID, sagaID, producer, traceID string, payload any) {
	env := NewEnvelope(eventType, aggregateID, sagaID, producer, traceID, payload)
	p.Publish(PartitionKey(sagaID), MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Unwrap decodes the event-specific payload of an envelope.
func Unwrap[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
