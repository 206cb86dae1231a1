package payment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ariefcatur/go-order-saga.git/internal/saga"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Service charges orders once their stock is fully reserved and reports the
// outcome on the bus. One charge attempt per PROCESSING transition.
type Service struct {
	Store   Store
	Gateway Gateway
	Dedup   saga.Dedup

	PubSucceeded saga.Publisher // payment.succeeded.v1
	PubFailed    saga.Publisher // payment.failed.v1

	Source string
}

func (s *Service) HandlePaymentRequested(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventPaymentRequested)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.PaymentRequestedPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}

	// redelivery: if an attempt already ran to the end, re-announce its
	// outcome instead of charging twice. An attempt stuck in
	// PENDING/PROCESSING (crash before the charge settled) is resumed, not
	// recreated, so the order keeps a single payment row.
	existing, err := s.Store.FindByOrderID(ctx, p.OrderID)
	switch {
	case err == nil:
		switch existing.Status {
		case StatusSucceeded:
			s.publishSucceeded(existing, env.SagaID, env.TraceID)
			return s.Dedup.Mark(ctx, env.EventID)
		case StatusFailed:
			s.publishFailed(existing, env.SagaID, env.TraceID, "card_declined")
			return s.Dedup.Mark(ctx, env.EventID)
		case StatusRefunded:
			// charged and already compensated, nothing left to announce
			return s.Dedup.Mark(ctx, env.EventID)
		default:
			log.Warn().Str("order_id", p.OrderID).Str("payment_id", existing.ID).Msg("resuming stalled payment attempt")
			return s.charge(ctx, existing, env)
		}
	case errors.Is(err, ErrNotFound):
		// first attempt
	default:
		return err
	}

	pay, err := New(p.OrderID, p.CustomerID, p.AmountCents, p.Currency)
	if err != nil {
		log.Error().Err(err).Str("order_id", p.OrderID).Msg("invalid payment request dropped")
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err := s.Store.Create(ctx, pay); err != nil {
		return err
	}
	return s.charge(ctx, pay, env)
}

// charge moves pay to PROCESSING (a no-op when already there), runs the
// gateway once and persists and publishes the outcome.
func (s *Service) charge(ctx context.Context, pay *Payment, env saga.Envelope) error {
	if err := pay.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	if err := s.Store.Update(ctx, pay); err != nil {
		return err
	}

	ref, err := s.Gateway.Charge(ctx, pay.AmountCents, pay.Currency)
	var declined *DeclinedError
	switch {
	case err == nil:
		if err := pay.MarkSucceeded(ref); err != nil {
			return err
		}
		if err := s.Store.Update(ctx, pay); err != nil {
			return err
		}
		s.publishSucceeded(pay, env.SagaID, env.TraceID)
		log.Info().Str("order_id", pay.OrderID).Str("payment_id", pay.ID).Msg("payment succeeded")
	case errors.As(err, &declined):
		if err := pay.MarkFailed(declined.Reason); err != nil {
			return err
		}
		if err := s.Store.Update(ctx, pay); err != nil {
			return err
		}
		s.publishFailed(pay, env.SagaID, env.TraceID, declined.Code)
		log.Info().Str("order_id", pay.OrderID).Str("code", declined.Code).Msg("payment declined")
	default:
		// gateway unreachable: leave PROCESSING, let the bus redeliver
		return err
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

// HandleRefund serves the payment.refund.v1 compensation command.
func (s *Service) HandleRefund(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventPaymentRefund)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.PaymentRefundPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}
	pay, err := s.Store.FindByOrderID(ctx, p.OrderID)
	if errors.Is(err, ErrNotFound) {
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err != nil {
		return err
	}
	if pay.Status == StatusRefunded { // redelivery
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err := pay.Refund(p.Reason); err != nil {
		log.Warn().Err(err).Str("order_id", p.OrderID).Msg("refund skipped")
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err := s.Store.Update(ctx, pay); err != nil {
		return err
	}
	log.Info().Str("order_id", p.OrderID).Str("payment_id", pay.ID).Msg("payment refunded")
	return s.Dedup.Mark(ctx, env.EventID)
}

func (s *Service) publishSucceeded(p *Payment, sagaID, traceID string) {
	saga.Emit(s.PubSucceeded, saga.EventPaymentSucceeded, p.ID, sagaID, s.Source, traceID,
		saga.PaymentSucceededPayload{PaymentID: p.ID, OrderID: p.OrderID, AmountCents: p.AmountCents})
}

func (s *Service) publishFailed(p *Payment, sagaID, traceID, code string) {
	saga.Emit(s.PubFailed, saga.EventPaymentFailed, p.ID, sagaID, s.Source, traceID,
		saga.PaymentFailedPayload{PaymentID: p.ID, OrderID: p.OrderID, Reason: p.Reason, ErrorCode: code})
}

// drop commits an envelope whose payload cannot be decoded; retrying it
// would block the partition for good.
func (s *Service) drop(ctx context.Context, env saga.Envelope, err error) error {
	log.Error().Err(err).Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("undecodable payload dropped")
	return s.Dedup.Mark(ctx, env.EventID)
}

func (s *Service) decode(ctx context.Context, m kafkago.Message, wantType string) (saga.Envelope, bool, error) {
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
