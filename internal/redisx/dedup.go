package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup implements saga.Dedup: one key per (consumer, event_id) with TTL.
type Dedup struct {
	RDB      *redis.Client
	Consumer string
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.RDB.Exists(ctx, fmt.Sprintf(KeyDedup, d.Consumer, eventID)).Result()
	return n > 0, err
}

func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, d.Consumer, eventID), "1", TTLDedup).Err()
}

// Progress implements orders.Progress on Redis: a set of reservation ids per
// saga plus a SETNX once-guard for the payment request.
type Progress struct {
	RDB *redis.Client
}

func (p *Progress) MarkReserved(ctx context.Context, sagaID, reservationID string) (int, error) {
	key := fmt.Sprintf(KeySagaReserved, sagaID)
	pipe := p.RDB.TxPipeline()
	pipe.SAdd(ctx, key, reservationID)
	pipe.Expire(ctx, key, TTLSaga)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (p *Progress) RequestPaymentOnce(ctx context.Context, sagaID string) (bool, error) {
	return p.RDB.SetNX(ctx, fmt.Sprintf(KeySagaPayReq, sagaID), "1", TTLSaga).Result()
}
