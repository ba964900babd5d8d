package fulfillment

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor fails orders that have sat in AWAITING_PAYMENT longer than the
// TTL, so abandoned checkouts do not linger forever.
type Processor struct {
	db       *Database
	interval time.Duration
	ttl      time.Duration
}

func NewProcessor(db *Database, interval, ttl time.Duration) *Processor {
	return &Processor{
		db:       db,
		interval: interval,
		ttl:      ttl,
	}
}

// Start begins the order expiry loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_expiry_processor").Logger()
	logger.Info().Dur("interval", p.interval).Dur("ttl", p.ttl).Msg("starting order expiry processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order expiry processor")
			return
		case <-ticker.C:
			if err := p.expireStaleOrders(); err != nil {
				logger.Error().Err(err).Msg("failed to expire stale orders")
			}
		}
	}
}

func (p *Processor) expireStaleOrders() error {
	logger := log.With().Str("component", "order_expiry_processor").Logger()

	cutoff := time.Now().Add(-p.ttl)
	stale, err := p.db.ListStaleAwaitingPayment(cutoff)
	if err != nil {
		return err
	}

	if len(stale) == 0 {
		return nil
	}

	logger.Info().Int("stale_count", len(stale)).Msg("expiring unpaid orders")

	for i := range stale {
		order := &stale[i]
		expired, err := p.db.ExpireOrder(order.OrderID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("order_id", order.OrderID).
				Msg("failed to expire order")
			continue
		}
		if !expired {
			// Paid or failed since the listing; nothing to do.
			logger.Debug().
				Str("order_id", order.OrderID).
				Msg("order state changed since listing, skipping expiry")
			continue
		}

		logger.Info().
			Str("order_id", order.OrderID).
			Time("created_at", order.CreatedAt).
			Msg("order expired without payment")
	}

	return nil
}
