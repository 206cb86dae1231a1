package payment

import (
	"context"
	"errors"
	"testing"
)

func pending(t *testing.T) *Payment {
	t.Helper()
	p, err := New("order-1", "cust-1", 2500, "EUR")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewStartsPending(t *testing.T) {
	p := pending(t)
	if p.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", p.Status)
	}
	if p.AmountCents != 2500 || p.Currency != "EUR" {
		t.Fatalf("amount = %d %s", p.AmountCents, p.Currency)
	}
}

func TestSameStatusIsNoOp(t *testing.T) {
	p := pending(t)
	if err := p.TransitionTo(StatusPending); err != nil {
		t.Fatalf("PENDING -> PENDING: %v", err)
	}
	if p.Status != StatusPending {
		t.Fatalf("status = %s", p.Status)
	}
}

func TestAllowedTransitions(t *testing.T) {
	p := pending(t)
	for _, next := range []Status{StatusProcessing, StatusSucceeded, StatusRefunded} {
		if err := p.TransitionTo(next); err != nil {
			t.Fatalf("-> %s: %v", next, err)
		}
	}
}

func TestSucceededHasNoEdgeBackToProcessing(t *testing.T) {
	p := pending(t)
	_ = p.TransitionTo(StatusProcessing)
	_ = p.TransitionTo(StatusSucceeded)

	err := p.TransitionTo(StatusProcessing)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != StatusSucceeded || invalid.To != StatusProcessing {
		t.Fatalf("edge = %s -> %s", invalid.From, invalid.To)
	}
}

func TestTerminalStatuses(t *testing.T) {
	p := pending(t)
	_ = p.TransitionTo(StatusFailed)
	for _, next := range []Status{StatusPending, StatusProcessing, StatusSucceeded, StatusRefunded} {
		if err := p.TransitionTo(next); err == nil {
			t.Fatalf("FAILED -> %s accepted", next)
		}
	}
}

func TestMarkHelpers(t *testing.T) {
	p := pending(t)
	_ = p.TransitionTo(StatusProcessing)
	if err := p.MarkSucceeded("sim_abc"); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	if p.GatewayRef != "sim_abc" {
		t.Fatalf("gateway ref = %q", p.GatewayRef)
	}
	if err := p.Refund("order cancelled"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if p.Status != StatusRefunded {
		t.Fatalf("status = %s", p.Status)
	}

	p2 := pending(t)
	_ = p2.TransitionTo(StatusProcessing)
	if err := p2.MarkFailed("card declined"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if p2.Reason != "card declined" {
		t.Fatalf("reason = %q", p2.Reason)
	}
}

func TestSimulatedGateway(t *testing.T) {
	g := &SimulatedGateway{DeclineOverCents: 1000}

	ref, err := g.Charge(context.Background(), 999, "EUR")
	if err != nil || ref == "" {
		t.Fatalf("charge under limit: ref=%q err=%v", ref, err)
	}

	_, err = g.Charge(context.Background(), 1001, "EUR")
	var declined *DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("err = %v, want DeclinedError", err)
	}
	if declined.Code != "card_declined" {
		t.Fatalf("code = %q", declined.Code)
	}

	open := &SimulatedGateway{}
	if _, err := open.Charge(context.Background(), 1_000_000, "EUR"); err != nil {
		t.Fatalf("zero limit should approve all: %v", err)
	}
}
