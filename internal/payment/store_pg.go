package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	Create(ctx context.Context, p *Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}

// PGStore persists payments in postgres (table: payments, one active attempt
// per order enforced by a unique index on order_id).
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Create(ctx context.Context, p *Payment) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, customer_id, amount_cents, currency, status, gateway_ref, reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.OrderID, p.CustomerID, p.AmountCents, p.Currency, string(p.Status), p.GatewayRef, p.Reason, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *PGStore) FindByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, order_id, customer_id, amount_cents, currency, status, gateway_ref, reason, created_at, updated_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.AmountCents, &p.Currency, &status, &p.GatewayRef, &p.Reason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

func (s *PGStore) Update(ctx context.Context, p *Payment) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payments SET status=$2, gateway_ref=$3, reason=$4, updated_at=$5 WHERE id=$1`,
		p.ID, string(p.Status), p.GatewayRef, p.Reason, p.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
