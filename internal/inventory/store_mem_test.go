package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const ttl = time.Minute

func seeded(products map[string]int) *MemStore {
	s := NewMemStore()
	for id, stock := range products {
		s.AddProduct(id, stock)
	}
	return s
}

func available(t *testing.T, s Store, productID string) int {
	t.Helper()
	p, err := s.Product(context.Background(), productID)
	if err != nil {
		t.Fatalf("Product(%s): %v", productID, err)
	}
	return p.Available()
}

func TestReserveHoldsStock(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 5})

	r, err := s.Reserve(ctx, "o1", "s1", "p1", 3, ttl)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if r.Status != ReservationReserved {
		t.Fatalf("status = %s", r.Status)
	}
	if got := available(t, s, "p1"); got != 2 {
		t.Fatalf("available = %d, want 2", got)
	}
	// current stock untouched until consumption
	p, _ := s.Product(ctx, "p1")
	if p.Stock != 5 || p.Reserved != 3 {
		t.Fatalf("counters = %+v", p)
	}
}

func TestReserveShortfallLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 3})

	_, err := s.Reserve(ctx, "o1", "s1", "p1", 5, ttl)
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("err = %v, want OutOfStockError", err)
	}
	if oos.Requested != 5 || oos.Available != 3 {
		t.Fatalf("oos = %+v", oos)
	}
	if got := available(t, s, "p1"); got != 3 {
		t.Fatalf("available = %d, want 3", got)
	}
	rs, _ := s.FindBySaga(ctx, "s1")
	if len(rs) != 0 {
		t.Fatalf("reservations leaked: %+v", rs)
	}
}

func TestReserveValidation(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 3})
	if _, err := s.Reserve(ctx, "o1", "s1", "p1", 0, ttl); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("qty=0: %v", err)
	}
	if _, err := s.Reserve(ctx, "o1", "s1", "p1", 1, 0); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("ttl=0: %v", err)
	}
	if _, err := s.Reserve(ctx, "o1", "s1", "nope", 1, ttl); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
}

func TestReserveAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 5, "p2": 1})

	_, err := s.ReserveAll(ctx, "o1", "s1", []Line{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 3},
	}, ttl)
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("err = %v, want OutOfStockError", err)
	}
	if oos.ProductID != "p2" {
		t.Fatalf("shortfall product = %s", oos.ProductID)
	}
	// the first line must not stay reserved
	if got := available(t, s, "p1"); got != 5 {
		t.Fatalf("p1 available = %d, want 5", got)
	}
}

// Two lines for the same product must be checked against their combined
// demand, never each against the untouched counter.
func TestReserveAllSumsRepeatedProductLines(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 3, "p2": 4})

	_, err := s.ReserveAll(ctx, "o1", "s1", []Line{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p1", Qty: 2},
	}, ttl)
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("err = %v, want OutOfStockError", err)
	}
	if oos.Requested != 4 || oos.Available != 3 {
		t.Fatalf("oos = %+v, want requested=4 available=3", oos)
	}
	p, _ := s.Product(ctx, "p1")
	if p.Stock != 3 || p.Reserved != 0 {
		t.Fatalf("counters = %+v, want untouched", p)
	}

	// exactly enough stock for both lines together
	rs, err := s.ReserveAll(ctx, "o2", "s2", []Line{
		{ProductID: "p2", Qty: 2},
		{ProductID: "p2", Qty: 2},
	}, ttl)
	if err != nil || len(rs) != 2 {
		t.Fatalf("ReserveAll: %+v %v", rs, err)
	}
	p, _ = s.Product(ctx, "p2")
	if p.Reserved != 4 || p.Available() != 0 {
		t.Fatalf("counters = %+v, want reserved=4 available=0", p)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 5})
	r, _ := s.Reserve(ctx, "o1", "s1", "p1", 3, ttl)

	_, released, err := s.Release(ctx, r.ID, "test")
	if err != nil || !released {
		t.Fatalf("first release: released=%v err=%v", released, err)
	}
	if got := available(t, s, "p1"); got != 5 {
		t.Fatalf("available = %d, want 5", got)
	}

	_, released, err = s.Release(ctx, r.ID, "test")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released {
		t.Fatal("second release reported as applied")
	}
	// no double stock return
	if got := available(t, s, "p1"); got != 5 {
		t.Fatalf("available = %d after double release, want 5", got)
	}
}

func TestConsumeDecrementsStock(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 5})
	r, _ := s.Reserve(ctx, "o1", "s1", "p1", 3, ttl)

	consumed, err := s.Consume(ctx, r.ID)
	if err != nil || !consumed {
		t.Fatalf("consume: %v %v", consumed, err)
	}
	p, _ := s.Product(ctx, "p1")
	if p.Stock != 2 || p.Reserved != 0 {
		t.Fatalf("counters = %+v, want stock=2 reserved=0", p)
	}

	// redelivered consume is a no-op
	consumed, err = s.Consume(ctx, r.ID)
	if err != nil || consumed {
		t.Fatalf("second consume: %v %v", consumed, err)
	}
	p, _ = s.Product(ctx, "p1")
	if p.Stock != 2 {
		t.Fatalf("stock = %d after double consume", p.Stock)
	}
}

func TestReleaseSagaSkipsTerminal(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 5, "p2": 5})
	r1, _ := s.Reserve(ctx, "o1", "s1", "p1", 2, ttl)
	_, _ = s.Reserve(ctx, "o1", "s1", "p2", 2, ttl)
	_, _, _ = s.Release(ctx, r1.ID, "early")

	released, err := s.ReleaseSaga(ctx, "s1", "compensation")
	if err != nil {
		t.Fatalf("ReleaseSaga: %v", err)
	}
	if len(released) != 1 || released[0].ProductID != "p2" {
		t.Fatalf("released = %+v, want just p2", released)
	}
	// run it again: nothing left to do
	released, err = s.ReleaseSaga(ctx, "s1", "compensation")
	if err != nil || len(released) != 0 {
		t.Fatalf("second ReleaseSaga: %v %v", released, err)
	}
	if available(t, s, "p1") != 5 || available(t, s, "p2") != 5 {
		t.Fatal("stock not fully returned")
	}
}

func TestExpireDueReleasesLapsed(t *testing.T) {
	ctx := context.Background()
	s := seeded(map[string]int{"p1": 5})
	r, _ := s.Reserve(ctx, "o1", "s1", "p1", 3, time.Second)

	expired, err := s.ExpireDue(ctx, time.Now().UTC().Add(2*time.Second))
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != r.ID {
		t.Fatalf("expired = %+v", expired)
	}
	if got := available(t, s, "p1"); got != 5 {
		t.Fatalf("available = %d, want 5", got)
	}
	// consuming an expired reservation must be refused
	consumed, err := s.Consume(ctx, r.ID)
	if err != nil || consumed {
		t.Fatalf("consume after expiry: %v %v", consumed, err)
	}
}

// Hammer one product from many goroutines asking for more than exists in
// total: the invariant available + reserved == stock must hold throughout and
// the grants must never oversell.
func TestConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	const stock = 50
	s := seeded(map[string]int{"p1": stock})

	var wg sync.WaitGroup
	granted := make(chan int, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			qty := n%3 + 1
			if _, err := s.Reserve(ctx, "o", "s", "p1", qty, ttl); err == nil {
				granted <- qty
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	total := 0
	for q := range granted {
		total += q
	}
	if total > stock {
		t.Fatalf("oversold: granted %d of %d", total, stock)
	}
	p, _ := s.Product(ctx, "p1")
	if p.Reserved != total {
		t.Fatalf("reserved = %d, granted = %d", p.Reserved, total)
	}
	if p.Available() != stock-total {
		t.Fatalf("available = %d, want %d", p.Available(), stock-total)
	}
}
