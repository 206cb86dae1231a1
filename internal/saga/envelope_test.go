package saga

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelopeStampsMetadata(t *testing.T) {
	env := NewEnvelope(EventOrderCreated, "order-1", "saga-1", "order-api", "trace-1",
		OrderCreatedPayload{OrderID: "order-1", CustomerID: "cust-1", TotalCents: 2500, Currency: "EUR"})

	if env.EventID == "" {
		t.Fatal("missing event id")
	}
	if env.EventVersion != 1 {
		t.Fatalf("version = %d", env.EventVersion)
	}
	if env.OccurredAt.IsZero() {
		t.Fatal("missing timestamp")
	}
	if env.SagaID != "saga-1" || env.AggregateID != "order-1" {
		t.Fatalf("correlation = %s / %s", env.SagaID, env.AggregateID)
	}

	// round-trips through the wire format
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var back Envelope
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	p, err := Unwrap[OrderCreatedPayload](back.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.OrderID != "order-1" || p.TotalCents != 2500 {
		t.Fatalf("payload = %+v", p)
	}
}

func TestUnwrapRejectsGarbage(t *testing.T) {
	if _, err := Unwrap[OrderCreatedPayload]([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
