package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusSucceeded: true, StatusFailed: true},
	StatusSucceeded:  {StatusRefunded: true},
	StatusFailed:     {},
	StatusRefunded:   {},
}

var ErrNotFound = errors.New("payment not found")

// InvalidTransitionError names both ends of the rejected edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment transition: %s -> %s", e.From, e.To)
}

// Payment is the charge attempt of one order. Amount is immutable after
// creation; status only moves along the graph above.
type Payment struct {
	ID          string
	OrderID     string
	CustomerID  string
	AmountCents int64
	Currency    string
	Status      Status
	GatewayRef  string
	Reason      string // failure or refund reason
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(orderID, customerID string, amountCents int64, currency string) (*Payment, error) {
	if orderID == "" || customerID == "" {
		return nil, errors.New("payment requires order and customer ids")
	}
	if amountCents < 0 {
		return nil, fmt.Errorf("negative payment amount: %d", amountCents)
	}
	now := time.Now().UTC()
	return &Payment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		CustomerID:  customerID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TransitionTo validates the move against the graph. A transition to the
// current status is a no-op, which absorbs redelivered events.
func (p *Payment) TransitionTo(next Status) error {
	if next == p.Status {
		return nil
	}
	if !validNext[p.Status][next] {
		return &InvalidTransitionError{From: p.Status, To: next}
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *Payment) MarkSucceeded(gatewayRef string) error {
	if err := p.TransitionTo(StatusSucceeded); err != nil {
		return err
	}
	p.GatewayRef = gatewayRef
	return nil
}

func (p *Payment) MarkFailed(reason string) error {
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.Reason = reason
	return nil
}

func (p *Payment) Refund(reason string) error {
	if err := p.TransitionTo(StatusRefunded); err != nil {
		return err
	}
	p.Reason = reason
	return nil
}
