package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists orders in postgres (tables: orders, order_items).
type PGStore struct{ DB *pgxpool.Pool }

// Create is idempotent via external_id: a repeated request returns the order
// created the first time instead of inserting a duplicate.
func (s *PGStore) Create(ctx context.Context, o *Order) (*Order, bool, error) {
	if o.ExternalID != "" {
		existing, err := s.findBy(ctx, `external_id=$1`, o.ExternalID)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, customer_id, saga_id, currency, status, total_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.ExternalID, o.CustomerID, o.SagaID, o.Currency, string(o.Status), o.TotalCents, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, it.ProductID, it.Qty, it.UnitPriceCents)
		if err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return o, false, nil
}

func (s *PGStore) FindByID(ctx context.Context, orderID string) (*Order, error) {
	return s.findBy(ctx, `id=$1`, orderID)
}

func (s *PGStore) findBy(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, external_id, customer_id, saga_id, currency, status, total_cents, created_at, updated_at
		FROM orders WHERE `+where, arg).
		Scan(&o.ID, &o.ExternalID, &o.CustomerID, &o.SagaID, &o.Currency, &status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)

	rows, err := s.DB.Query(ctx, `
		SELECT product_id, qty, unit_price_cents FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it := Item{Currency: o.Currency}
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (s *PGStore) UpdateStatus(ctx context.Context, o *Order) error {
	ct, err := s.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`,
		o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
