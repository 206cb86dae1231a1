package orders

import "context"

// Store is the persistence port for the order aggregate.
type Store interface {
	// Create persists a new order and its items. If an order with the same
	// external id already exists it is returned instead (existed=true).
	Create(ctx context.Context, o *Order) (existing *Order, existed bool, err error)
	FindByID(ctx context.Context, orderID string) (*Order, error)
	// UpdateStatus persists the current status and updated_at of o.
	UpdateStatus(ctx context.Context, o *Order) error
}

// Progress tracks how far a saga's reservation fan-out has come. Backed by
// Redis in production, a map in tests.
type Progress interface {
	// MarkReserved records a reservation for the saga and returns how many
	// distinct reservations are known so far.
	MarkReserved(ctx context.Context, sagaID, reservationID string) (int, error)
	// RequestPaymentOnce returns true exactly once per saga.
	RequestPaymentOnce(ctx context.Context, sagaID string) (bool, error)
}
