package inventory

import (
	"errors"
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// Reservation holds stock for one order line until it is consumed, released
// or expires. RESERVED is the only non-terminal status.
type Reservation struct {
	ID        string
	OrderID   string
	SagaID    string
	ProductID string
	Qty       int
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product carries the stock counters. Reserved is always the sum of RESERVED
// reservation quantities, so Available never goes negative.
type Product struct {
	ID       string
	Stock    int
	Reserved int
}

func (p Product) Available() int { return p.Stock - p.Reserved }

type Line struct {
	ProductID string
	Qty       int
}

var (
	ErrInvalidQuantity     = errors.New("reservation quantity must be positive")
	ErrInvalidTTL          = errors.New("reservation ttl must be positive")
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
