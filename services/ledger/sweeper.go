package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired tokens. Expired rows are already
// rejected on lookup, so sweeping only reclaims space.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a Sweeper. An interval of zero or less disables it.
func NewSweeper(l *Ledger, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		ledger:   l,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is cancelled. It returns nil immediately
// when disabled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("token sweeper disabled")
		return nil
	}

	s.logger.Info("token sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("token sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.ledger.SweepExpired(ctx, s.ledger.now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("token sweep failed", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		s.logger.Info("expired tokens swept", zap.Int64("count", removed))
	}
}
