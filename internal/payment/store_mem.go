package payment

import (
	"context"
	"sync"
)

// MemStore backs tests and local runs without postgres.
type MemStore struct {
	mu      sync.Mutex
	byOrder map[string]*Payment
}

func NewMemStore() *MemStore {
	return &MemStore{byOrder: map[string]*Payment{}}
}

func (s *MemStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.byOrder[p.OrderID] = &cp
	return nil
}

func (s *MemStore) FindByOrderID(_ context.Context, orderID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) Update(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byOrder[p.OrderID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.byOrder[p.OrderID] = &cp
	return nil
}
