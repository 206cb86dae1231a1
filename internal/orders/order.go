package orders

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ProductID      string
	Qty            int
	UnitPriceCents int64
	Currency       string
}

// StatusChange is the domain event appended on every transition.
type StatusChange struct {
	OrderID    string
	SagaID     string
	Status     Status
	Reason     string
	OccurredAt time.Time
}

type Order struct {
	ID         string
	ExternalID string
	CustomerID string
	SagaID     string
	Items      []Item
	Currency   string
	TotalCents int64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time

	changes []StatusChange
}

// New validates the line items, computes the total and starts the order PENDING.
// All items must share one currency; the total is always derived, never set.
func New(customerID, externalID string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	currency := items[0].Currency
	var total int64
	for i, it := range items {
		if it.Qty <= 0 || it.UnitPriceCents < 0 || it.ProductID == "" {
			return nil, &InvalidItemError{Index: i, Qty: it.Qty, UnitPriceCents: it.UnitPriceCents}
		}
		if it.Currency != currency {
			return nil, &CurrencyMismatchError{Want: currency, Got: it.Currency}
		}
		total += int64(it.Qty) * it.UnitPriceCents
	}

	now := time.Now().UTC()
	o := &Order{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		CustomerID: customerID,
		SagaID:     uuid.NewString(),
		Items:      items,
		Currency:   currency,
		TotalCents: total,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.record("")
	return o, nil
}

// ConfirmPayment moves PENDING -> CONFIRMED. Any other source status is rejected.
func (o *Order) ConfirmPayment() error {
	return o.transition(StatusConfirmed, "")
}

func (o *Order) MarkAsShipped() error {
	return o.transition(StatusShipped, "")
}

func (o *Order) MarkAsDelivered() error {
	return o.transition(StatusDelivered, "")
}

func (o *Order) Cancel(reason string) error {
	return o.transition(StatusCancelled, reason)
}

func (o *Order) transition(to Status, reason string) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	o.record(reason)
	return nil
}

func (o *Order) record(reason string) {
	o.changes = append(o.changes, StatusChange{
		OrderID:    o.ID,
		SagaID:     o.SagaID,
		Status:     o.Status,
		Reason:     reason,
		OccurredAt: o.UpdatedAt,
	})
}

// Changes returns the status changes recorded since construction or the last Flush.
func (o *Order) Changes() []StatusChange { return o.changes }

func (o *Order) Flush() { o.changes = nil }
