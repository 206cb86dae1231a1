package orders

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-order-saga.git/internal/saga"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Saga holds the order-service side of the choreography: it reacts to
// inventory and payment events and drives the order state machine. Every
// handler is idempotent (dedup on event_id) and re-checks the current order
// status before transitioning, since events may arrive out of order.
type Saga struct {
	Store    Store
	Progress Progress
	Dedup    saga.Dedup

	PubConfirmed        saga.Publisher // order.confirmed.v1
	PubFailed           saga.Publisher // order.failed.v1
	PubPaymentRequest   saga.Publisher // payment.requested.v1
	PubInventoryRelease saga.Publisher // inventory.release.v1
	PubPaymentRefund    saga.Publisher // payment.refund.v1

	Source string
}

func (s *Saga) HandleInventoryReserved(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventInventoryReserved)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.InventoryReservedPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}

	o, err := s.Store.FindByID(ctx, p.OrderID)
	if err != nil {
		return err
	}

	switch o.Status {
	case StatusCancelled:
		// Late reservation for a dead order: hand the stock back.
		saga.Emit(s.PubInventoryRelease, saga.EventInventoryRelease, o.ID, o.SagaID, s.Source, env.TraceID,
			saga.InventoryReleasePayload{OrderID: o.ID, ReservationID: p.ReservationID, Reason: "order cancelled"})
		log.Warn().Str("order_id", o.ID).Str("reservation_id", p.ReservationID).
			Msg("late reservation for cancelled order, release requested")
		return s.Dedup.Mark(ctx, env.EventID)
	case StatusPending:
		// fall through
	default:
		return s.Dedup.Mark(ctx, env.EventID) // already past reservation
	}

	// keyed on the reservation id: one per line item, stable across
	// redeliveries, and distinct when two lines carry the same product
	n, err := s.Progress.MarkReserved(ctx, o.SagaID, p.ReservationID)
	if err != nil {
		return err
	}
	if n >= len(o.Items) {
		first, err := s.Progress.RequestPaymentOnce(ctx, o.SagaID)
		if err != nil {
			return err
		}
		if first {
			saga.Emit(s.PubPaymentRequest, saga.EventPaymentRequested, o.ID, o.SagaID, s.Source, env.TraceID,
				saga.PaymentRequestedPayload{OrderID: o.ID, CustomerID: o.CustomerID, AmountCents: o.TotalCents, Currency: o.Currency})
			log.Info().Str("order_id", o.ID).Int64("amount_cents", o.TotalCents).Msg("all items reserved, payment requested")
		}
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

func (s *Saga) HandleOutOfStock(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventOutOfStock)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.OutOfStockPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}
	reason := "insufficient stock for product " + p.ProductID
	if err := s.fail(ctx, p.OrderID, reason, saga.StageInventoryCheck, false, env.TraceID); err != nil {
		return err
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

// HandleInventoryReleased watches for TTL expiry: an expired reservation means
// the saga was abandoned mid-flight, so the order is resolved as failed.
func (s *Saga) HandleInventoryReleased(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventInventoryReleased)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.InventoryReleasedPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}
	if p.Reason != "expired" {
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err := s.fail(ctx, p.OrderID, "reservation expired", saga.StagePaymentProcessing, false, env.TraceID); err != nil {
		return err
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

func (s *Saga) HandlePaymentSucceeded(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventPaymentSucceeded)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.PaymentSucceededPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}

	o, err := s.Store.FindByID(ctx, p.OrderID)
	if err != nil {
		return err
	}

	switch o.Status {
	case StatusPending:
		if err := o.ConfirmPayment(); err != nil {
			return err
		}
		if err := s.Store.UpdateStatus(ctx, o); err != nil {
			return err
		}
		saga.Emit(s.PubConfirmed, saga.EventOrderConfirmed, o.ID, o.SagaID, s.Source, env.TraceID,
			saga.OrderConfirmedPayload{OrderID: o.ID, PaymentID: p.PaymentID})
		log.Info().Str("order_id", o.ID).Str("payment_id", p.PaymentID).Msg("order confirmed")
	case StatusCancelled:
		// Payment landed after the order died (e.g. expiry won the race):
		// refund and make sure no stock stays held.
		saga.Emit(s.PubPaymentRefund, saga.EventPaymentRefund, o.ID, o.SagaID, s.Source, env.TraceID,
			saga.PaymentRefundPayload{OrderID: o.ID, PaymentID: p.PaymentID, Reason: "order already cancelled"})
		saga.Emit(s.PubInventoryRelease, saga.EventInventoryRelease, o.ID, o.SagaID, s.Source, env.TraceID,
			saga.InventoryReleasePayload{OrderID: o.ID, Reason: "order already cancelled"})
		log.Warn().Str("order_id", o.ID).Str("payment_id", p.PaymentID).Msg("payment succeeded for cancelled order, refund requested")
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

func (s *Saga) HandlePaymentFailed(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventPaymentFailed)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.PaymentFailedPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}
	if err := s.fail(ctx, p.OrderID, "payment failed: "+p.Reason, saga.StagePaymentProcessing, true, env.TraceID); err != nil {
		return err
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

// fail cancels a still-PENDING order and publishes order.failed.v1.
// Orders that already moved on (confirmed or terminal) are left alone.
func (s *Saga) fail(ctx context.Context, orderID, reason, stage string, compensate bool, traceID string) error {
	o, err := s.Store.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != StatusPending {
		return nil
	}
	if err := o.Cancel(reason); err != nil {
		return err
	}
	if err := s.Store.UpdateStatus(ctx, o); err != nil {
		return err
	}
	saga.Emit(s.PubFailed, saga.EventOrderFailed, o.ID, o.SagaID, s.Source, traceID,
		saga.OrderFailedPayload{OrderID: o.ID, Reason: reason, FailureStage: stage, CompensationRequired: compensate})
	log.Info().Str("order_id", o.ID).Str("stage", stage).Str("reason", reason).Msg("order cancelled")
	return nil
}

// drop commits an envelope whose payload cannot be decoded; retrying it
// would block the partition for good.
func (s *Saga) drop(ctx context.Context, env saga.Envelope, err error) error {
	log.Error().Err(err).Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("undecodable payload dropped")
	return s.Dedup.Mark(ctx, env.EventID)
}

// decode unmarshals the envelope and filters by type and dedup.
// ok=false means the message should be committed without further work.
func (s *Saga) decode(ctx context.Context, m kafkago.Message, wantType string) (saga.Envelope, bool, error) {
	var env saga.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error().Err(err).Str("topic", m.Topic).Msg("malformed envelope dropped")
		return env, false, nil
	}
	if env.EventType != wantType {
		return env, false, nil
	}
	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return env, false, err
	}
	if seen {
		return env, false, nil
	}
	return env, true, nil
}
