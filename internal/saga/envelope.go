package saga

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every event on the bus. Payload is the event-specific body,
// SagaID correlates all events of one order's fulfillment attempt.
type Envelope struct {
	EventID      string          `json:"event_id"`      // uuid, dedup key
	EventType    string          `json:"event_type"`    // one of the Event* consts
	AggregateID  string          `json:"aggregate_id"`  // order / reservation / payment id
	SagaID       string          `json:"saga_id"`       // one saga <-> one order
	EventVersion int             `json:"event_version"` // 1
	OccurredAt   time.Time       `json:"occurred_at"`   // RFC3339
	Producer     string          `json:"producer"`      // e.g. "order-api"
	TraceID      string          `json:"trace_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, aggregateID, sagaID, producer, traceID string, payload any) Envelope {
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		AggregateID:  aggregateID,
		SagaID:       sagaID,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     producer,
		TraceID:      traceID,
		Payload:      MustMarshal(payload),
	}
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Partition key = saga_id, so all events of one saga stay ordered within a topic.
func PartitionKey(sagaID string) []byte { return []byte(sagaID) }
