package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and local runs without
// postgres. A single mutex guards the maps; the critical sections are tiny,
// which keeps the per-product invariant while staying trivially correct.
type MemStore struct {
	mu           sync.Mutex
	products     map[string]*Product
	reservations map[string]*Reservation
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:     map[string]*Product{},
		reservations: map[string]*Reservation{},
	}
}

// AddProduct seeds a product with the given current stock.
func (s *MemStore) AddProduct(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID] = &Product{ID: productID, Stock: stock}
}

func (s *MemStore) Reserve(ctx context.Context, orderID, sagaID, productID string, qty int, ttl time.Duration) (*Reservation, error) {
	rs, err := s.ReserveAll(ctx, orderID, sagaID, []Line{{ProductID: productID, Qty: qty}}, ttl)
	if err != nil {
		return nil, err
	}
	return &rs[0], nil
}

func (s *MemStore) ReserveAll(_ context.Context, orderID, sagaID string, lines []Line, ttl time.Duration) ([]Reservation, error) {
	for _, l := range lines {
		if err := validateReserve(l.Qty, ttl); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// check every line before touching anything: all or nothing. Demand is
	// summed per product so repeated lines for the same product count
	// against each other, not each against the untouched counter.
	want := map[string]int{}
	for _, l := range lines {
		p, ok := s.products[l.ProductID]
		if !ok {
			return nil, ErrProductNotFound
		}
		want[l.ProductID] += l.Qty
		if p.Available() < want[l.ProductID] {
			return nil, &OutOfStockError{ProductID: l.ProductID, Requested: want[l.ProductID], Available: p.Available()}
		}
	}

	now := time.Now().UTC()
	out := make([]Reservation, 0, len(lines))
	for _, l := range lines {
		s.products[l.ProductID].Reserved += l.Qty
		r := &Reservation{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			SagaID:    sagaID,
			ProductID: l.ProductID,
			Qty:       l.Qty,
			Status:    ReservationReserved,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.reservations[r.ID] = r
		out = append(out, *r)
	}
	return out, nil
}

func (s *MemStore) Release(_ context.Context, reservationID, reason string) (*Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(reservationID)
}

func (s *MemStore) releaseLocked(reservationID string) (*Reservation, bool, error) {
	r, ok := s.reservations[reservationID]
	if !ok {
		return nil, false, ErrReservationNotFound
	}
	if r.Status != ReservationReserved {
		cp := *r
		return &cp, false, nil
	}
	r.Status = ReservationReleased
	r.UpdatedAt = time.Now().UTC()
	s.products[r.ProductID].Reserved -= r.Qty
	cp := *r
	return &cp, true, nil
}

func (s *MemStore) ReleaseSaga(_ context.Context, sagaID, reason string) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, id := range s.sagaIDsLocked(sagaID) {
		r, released, err := s.releaseLocked(id)
		if err != nil {
			return out, err
		}
		if released {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *MemStore) Consume(_ context.Context, reservationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeLocked(reservationID)
}

func (s *MemStore) consumeLocked(reservationID string) (bool, error) {
	r, ok := s.reservations[reservationID]
	if !ok {
		return false, ErrReservationNotFound
	}
	if r.Status != ReservationReserved {
		return false, nil
	}
	r.Status = ReservationConsumed
	r.UpdatedAt = time.Now().UTC()
	p := s.products[r.ProductID]
	p.Stock -= r.Qty
	p.Reserved -= r.Qty
	return true, nil
}

func (s *MemStore) ConsumeSaga(_ context.Context, sagaID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.sagaIDsLocked(sagaID) {
		consumed, err := s.consumeLocked(id)
		if err != nil {
			return n, err
		}
		if consumed {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) ExpireDue(_ context.Context, now time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for id, r := range s.reservations {
		if r.Status == ReservationReserved && !r.ExpiresAt.After(now) {
			rr, released, err := s.releaseLocked(id)
			if err != nil {
				return out, err
			}
			if released {
				out = append(out, *rr)
			}
		}
	}
	return out, nil
}

func (s *MemStore) FindBySaga(_ context.Context, sagaID string) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reservation
	for _, r := range s.reservations {
		if r.SagaID == sagaID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) Product(_ context.Context, productID string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (s *MemStore) sagaIDsLocked(sagaID string) []string {
	var ids []string
	for id, r := range s.reservations {
		if r.SagaID == sagaID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
