package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Gateway is the external charging port. A successful charge returns the
// gateway's reference for the transaction.
type Gateway interface {
	Charge(ctx context.Context, amountCents int64, currency string) (ref string, err error)
}

// DeclinedError is a business decline, not an infrastructure failure: the
// handler turns it into payment.failed.v1 instead of retrying.
type DeclinedError struct {
	Code   string
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Reason)
}

// SimulatedGateway approves everything below DeclineOverCents and declines
// the rest. Zero means approve all. Good enough for local runs and tests;
// a real processor plugs in behind the same interface.
type SimulatedGateway struct {
	DeclineOverCents int64
}

func (g *SimulatedGateway) Charge(_ context.Context, amountCents int64, currency string) (string, error) {
	if g.DeclineOverCents > 0 && amountCents > g.DeclineOverCents {
		return "", &DeclinedError{Code: "card_declined", Reason: "amount over simulated limit"}
	}
	return "sim_" + uuid.NewString(), nil
}
