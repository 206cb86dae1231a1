package inventory

import (
	"context"
	"time"
)

// Store is the reservation engine port. Implementations must serialize the
// check-and-reserve step per product: the sum of RESERVED quantities for a
// product never exceeds its current stock, under concurrent callers.
type Store interface {
	// Reserve holds qty units of one product for an order until ttl elapses.
	// On shortfall it returns *OutOfStockError and leaves no trace.
	Reserve(ctx context.Context, orderID, sagaID, productID string, qty int, ttl time.Duration) (*Reservation, error)

	// ReserveAll reserves every line or none: a shortfall on any line rolls
	// the whole attempt back and returns *OutOfStockError for that line.
	ReserveAll(ctx context.Context, orderID, sagaID string, lines []Line, ttl time.Duration) ([]Reservation, error)

	// Release moves a RESERVED reservation to RELEASED and returns its
	// capacity to the pool. Releasing an already-RELEASED reservation is a
	// no-op (released=false), not an error.
	Release(ctx context.Context, reservationID, reason string) (r *Reservation, released bool, err error)

	// ReleaseSaga releases every still-RESERVED reservation of a saga and
	// returns the ones it actually released. Safe to run repeatedly.
	ReleaseSaga(ctx context.Context, sagaID, reason string) ([]Reservation, error)

	// Consume moves a RESERVED reservation to CONSUMED, permanently
	// decrementing current stock. Re-consuming a CONSUMED reservation is a
	// no-op (consumed=false).
	Consume(ctx context.Context, reservationID string) (consumed bool, err error)

	// ConsumeSaga consumes every still-RESERVED reservation of a saga.
	ConsumeSaga(ctx context.Context, sagaID string) (int, error)

	// ExpireDue releases every RESERVED reservation whose expires_at has
	// passed and returns them so the caller can emit released events.
	ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error)

	// FindBySaga returns all reservations of a saga, any status.
	FindBySaga(ctx context.Context, sagaID string) ([]Reservation, error)

	Product(ctx context.Context, productID string) (Product, error)
}

func validateReserve(qty int, ttl time.Duration) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
