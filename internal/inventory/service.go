package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/go-order-saga.git/internal/saga"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Service is the inventory side of the choreography: it reserves stock for
// new orders, consumes it on payment success and gives it back on every
// compensation path.
type Service struct {
	Store Store
	Dedup saga.Dedup

	PubReserved   saga.Publisher // inventory.reserved.v1
	PubReleased   saga.Publisher // inventory.released.v1
	PubOutOfStock saga.Publisher // inventory.out_of_stock.v1

	ReservationTTL time.Duration
	Source         string
}

// HandleOrderCreated attempts an all-or-nothing reservation for every line
// item and answers with inventory.reserved.v1 per line, or with a single
// inventory.out_of_stock.v1 naming the line that fell short.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventOrderCreated)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.OrderCreatedPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}

	// redelivery short-circuit: if this saga already holds reservations,
	// re-announce them instead of reserving twice
	existing, err := s.Store.FindBySaga(ctx, env.SagaID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		for _, r := range existing {
			if r.Status != ReservationReleased {
				s.publishReserved(r, env.TraceID)
			}
		}
		return s.Dedup.Mark(ctx, env.EventID)
	}

	lines := make([]Line, 0, len(p.Items))
	for _, it := range p.Items {
		lines = append(lines, Line{ProductID: it.ProductID, Qty: it.Qty})
	}

	rs, err := s.Store.ReserveAll(ctx, p.OrderID, env.SagaID, lines, s.ReservationTTL)
	var oos *OutOfStockError
	if errors.As(err, &oos) {
		// the tx made nothing, but a stale earlier attempt might have:
		// release whatever this saga still holds before reporting upstream
		released, rerr := s.Store.ReleaseSaga(ctx, env.SagaID, "reservation shortfall")
		if rerr != nil {
			return rerr
		}
		for _, r := range released {
			s.publishReleased(r, "reservation shortfall", env.TraceID)
		}
		saga.Emit(s.PubOutOfStock, saga.EventOutOfStock, p.OrderID, env.SagaID, s.Source, env.TraceID,
			saga.OutOfStockPayload{
				OrderID:        p.OrderID,
				ProductID:      oos.ProductID,
				RequestedQty:   oos.Requested,
				AvailableStock: oos.Available,
			})
		log.Info().Str("order_id", p.OrderID).Str("product_id", oos.ProductID).
			Int("requested", oos.Requested).Int("available", oos.Available).Msg("reservation rejected")
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err != nil {
		return err
	}

	for _, r := range rs {
		s.publishReserved(r, env.TraceID)
	}
	log.Info().Str("order_id", p.OrderID).Int("lines", len(rs)).Msg("stock reserved")
	return s.Dedup.Mark(ctx, env.EventID)
}

// HandlePaymentSucceeded consumes the saga's reservations: stock leaves for
// good. Reservations that already expired away are skipped, not errors.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventPaymentSucceeded)
	if !ok || err != nil {
		return err
	}
	n, err := s.Store.ConsumeSaga(ctx, env.SagaID)
	if err != nil {
		return err
	}
	log.Info().Str("saga_id", env.SagaID).Int("consumed", n).Msg("reservations consumed")
	return s.Dedup.Mark(ctx, env.EventID)
}

// HandleOrderFailed compensates a failed saga by releasing whatever it holds.
func (s *Service) HandleOrderFailed(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventOrderFailed)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.OrderFailedPayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}
	if !p.CompensationRequired {
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err := s.releaseSaga(ctx, env.SagaID, p.Reason, env.TraceID); err != nil {
		return err
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

// HandleRelease serves the explicit inventory.release.v1 command.
func (s *Service) HandleRelease(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.decode(ctx, m, saga.EventInventoryRelease)
	if !ok || err != nil {
		return err
	}
	p, err := saga.Unwrap[saga.InventoryReleasePayload](env.Payload)
	if err != nil {
		return s.drop(ctx, env, err)
	}
	if p.ReservationID != "" {
		r, released, err := s.Store.Release(ctx, p.ReservationID, p.Reason)
		if err != nil && !errors.Is(err, ErrReservationNotFound) {
			return err
		}
		if released {
			s.publishReleased(*r, p.Reason, env.TraceID)
		}
		return s.Dedup.Mark(ctx, env.EventID)
	}
	if err := s.releaseSaga(ctx, env.SagaID, p.Reason, env.TraceID); err != nil {
		return err
	}
	return s.Dedup.Mark(ctx, env.EventID)
}

func (s *Service) releaseSaga(ctx context.Context, sagaID, reason, traceID string) error {
	released, err := s.Store.ReleaseSaga(ctx, sagaID, reason)
	if err != nil {
		return err
	}
	for _, r := range released {
		s.publishReleased(r, reason, traceID)
	}
	if len(released) > 0 {
		log.Info().Str("saga_id", sagaID).Int("released", len(released)).Str("reason", reason).Msg("reservations released")
	}
	return nil
}

func (s *Service) publishReserved(r Reservation, traceID string) {
	saga.Emit(s.PubReserved, saga.EventInventoryReserved, r.ID, r.SagaID, s.Source, traceID,
		saga.InventoryReservedPayload{
			ReservationID: r.ID,
			OrderID:       r.OrderID,
			ProductID:     r.ProductID,
			Qty:           r.Qty,
		})
}

func (s *Service) publishReleased(r Reservation, reason, traceID string) {
	saga.Emit(s.PubReleased, saga.EventInventoryReleased, r.ID, r.SagaID, s.Source, traceID,
		saga.InventoryReleasedPayload{
			ReservationID: r.ID,
			OrderID:       r.OrderID,
			ProductID:     r.ProductID,
			Qty:           r.Qty,
			Reason:        reason,
		})
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
