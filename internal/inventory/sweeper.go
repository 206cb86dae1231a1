package inventory

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper releases RESERVED reservations past their TTL. It is the only
// timeout in the saga: an abandoned order resolves once its reservations
// expire and the released events reach the order service.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
}

func (w *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if err := w.sweep(ctx, now.UTC()); err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context, now time.Time) error {
	expired, err := w.Service.Store.ExpireDue(ctx, now)
	if err != nil {
		return err
	}
	for _, r := range expired {
		w.Service.publishReleased(r, "expired", "")
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Msg("expired reservations released")
	}
	return nil
}
