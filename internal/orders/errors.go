package orders

import (
	"errors"
	"fmt"
)

var ErrEmptyOrder = errors.New("order must have at least one item")

var ErrNotFound = errors.New("order not found")

type InvalidItemError struct {
	Index          int
	Qty            int
	UnitPriceCents int64
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid order item %d: qty=%d unit_price_cents=%d", e.Index, e.Qty, e.UnitPriceCents)
}

type CurrencyMismatchError struct {
	Want string
	Got  string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: order is %s, item is %s", e.Want, e.Got)
}

// InvalidTransitionError names the offending source status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: cannot move to %s from %s", e.To, e.From)
}
