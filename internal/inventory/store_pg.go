package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store over postgres. Per-product serialization comes
// from row locks: every stock mutation selects the product FOR UPDATE first,
// so concurrent reserves on one product queue up while other products
// proceed in parallel.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Reserve(ctx context.Context, orderID, sagaID, productID string, qty int, ttl time.Duration) (*Reservation, error) {
	rs, err := s.ReserveAll(ctx, orderID, sagaID, []Line{{ProductID: productID, Qty: qty}}, ttl)
	if err != nil {
		return nil, err
	}
	return &rs[0], nil
}

func (s *PGStore) ReserveAll(ctx context.Context, orderID, sagaID string, lines []Line, ttl time.Duration) ([]Reservation, error) {
	for _, l := range lines {
		if err := validateReserve(l.Qty, ttl); err != nil {
			return nil, err
		}
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	out := make([]Reservation, 0, len(lines))
	for _, l := range lines {
		var stock, reserved int
		err := tx.QueryRow(ctx, `SELECT stock, reserved FROM products WHERE id=$1 FOR UPDATE`, l.ProductID).
			Scan(&stock, &reserved)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		if err != nil {
			return nil, err
		}
		if stock-reserved < l.Qty {
			// rollback via defer: all-or-nothing
			return nil, &OutOfStockError{ProductID: l.ProductID, Requested: l.Qty, Available: stock - reserved}
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET reserved = reserved + $2, updated_at=$3 WHERE id=$1`,
			l.ProductID, l.Qty, now); err != nil {
			return nil, err
		}

		r := Reservation{
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
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_reservations(id, order_id, saga_id, product_id, qty, status, expires_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			r.ID, r.OrderID, r.SagaID, r.ProductID, r.Qty, string(r.Status), r.ExpiresAt, r.CreatedAt, r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) Release(ctx context.Context, reservationID, reason string) (*Reservation, bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, released, err := releaseInTx(ctx, tx, reservationID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return r, released, nil
}

func (s *PGStore) ReleaseSaga(ctx context.Context, sagaID, reason string) ([]Reservation, error) {
	ids, err := s.reservedIDs(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	var out []Reservation
	for _, id := range ids {
		r, released, err := s.Release(ctx, id, reason)
		if err != nil {
			return out, err
		}
		if released {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *PGStore) Consume(ctx context.Context, reservationID string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, ok, err := lockReservation(ctx, tx, reservationID)
	if err != nil || !ok {
		return false, err
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE stock_reservations SET status='CONSUMED', updated_at=$2 WHERE id=$1`,
		reservationID, now); err != nil {
		return false, err
	}
	// consumption is when stock actually leaves the building
	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, reserved = reserved - $2, updated_at=$3 WHERE id=$1`,
		r.ProductID, r.Qty, now); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *PGStore) ConsumeSaga(ctx context.Context, sagaID string) (int, error) {
	ids, err := s.reservedIDs(ctx, sagaID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		consumed, err := s.Consume(ctx, id)
		if err != nil {
			return n, err
		}
		if consumed {
			n++
		}
	}
	return n, nil
}

func (s *PGStore) ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM stock_reservations WHERE status='RESERVED' AND expires_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	var out []Reservation
	for _, id := range ids {
		r, released, err := s.Release(ctx, id, "expired")
		if err != nil {
			return out, err
		}
		if released {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *PGStore) FindBySaga(ctx context.Context, sagaID string) ([]Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, saga_id, product_id, qty, status, expires_at, created_at, updated_at
		FROM stock_reservations WHERE saga_id=$1 ORDER BY created_at`, sagaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		var status string
		if err := rows.Scan(&r.ID, &r.OrderID, &r.SagaID, &r.ProductID, &r.Qty, &status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = ReservationStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Product(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `SELECT id, stock, reserved FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Stock, &p.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrProductNotFound
	}
	return p, err
}

func (s *PGStore) reservedIDs(ctx context.Context, sagaID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM stock_reservations WHERE saga_id=$1 AND status='RESERVED'`, sagaID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lockReservation locks the reservation row and the owning product row, in
// that order. ok=false means the reservation is not RESERVED anymore.
func lockReservation(ctx context.Context, tx pgx.Tx, reservationID string) (Reservation, bool, error) {
	var r Reservation
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, order_id, saga_id, product_id, qty, status, expires_at
		FROM stock_reservations WHERE id=$1 FOR UPDATE`, reservationID).
		Scan(&r.ID, &r.OrderID, &r.SagaID, &r.ProductID, &r.Qty, &status, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, false, ErrReservationNotFound
	}
	if err != nil {
		return r, false, err
	}
	r.Status = ReservationStatus(status)
	if r.Status != ReservationReserved {
		return r, false, nil
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM products WHERE id=$1 FOR UPDATE`, r.ProductID); err != nil {
		return r, false, err
	}
	return r, true, nil
}

func releaseInTx(ctx context.Context, tx pgx.Tx, reservationID string) (*Reservation, bool, error) {
	r, ok, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &r, false, nil // already terminal: idempotent no-op
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE stock_reservations SET status='RELEASED', updated_at=$2 WHERE id=$1`,
		reservationID, now); err != nil {
		return nil, false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET reserved = reserved - $2, updated_at=$3 WHERE id=$1`,
		r.ProductID, r.Qty, now); err != nil {
		return nil, false, err
	}
	r.Status = ReservationReleased
	r.UpdatedAt = now
	return &r, true, nil
}
