package service

import (
	"context"
	"time"

	"voucher-trade-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// SweepResult counts what one maintenance pass changed.
type SweepResult struct {
	Expired     int
	Reconciled  int
	Redelivered int
}

// Sweeper periodically expires overdue vouchers, settles trades stuck in
// accepted and retries match notifications that never went out.
type Sweeper struct {
	inventory       ports.InventoryService
	trades          ports.TradeService
	matcher         ports.WishlistMatcher
	interval        time.Duration
	reconcileAfter  time.Duration
	redeliverWindow time.Duration
	batch           int
	now             func() time.Time
	log             zerolog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(inventory ports.InventoryService, trades ports.TradeService, interval, reconcileAfter time.Duration, batch int, log zerolog.Logger) *Sweeper {
	if batch < 1 {
		batch = 1
	}
	return &Sweeper{
		inventory:      inventory,
		trades:         trades,
		interval:       interval,
		reconcileAfter: reconcileAfter,
		batch:          batch,
		now:            time.Now,
		log:            log,
	}
}

// WithRedelivery makes each pass retry undelivered match events created
// within window. A zero window leaves redelivery off.
func (s *Sweeper) WithRedelivery(matcher ports.WishlistMatcher, window time.Duration) *Sweeper {
	s.matcher = matcher
	s.redeliverWindow = window
	return s
}

// Run sweeps every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunOnce performs a single maintenance pass. Every step runs even if an
// earlier one fails; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var firstErr error

	expired, err := s.inventory.ExpireOverdue(ctx, s.batch)
	res.Expired = expired
	if err != nil {
		firstErr = err
	}

	reconciled, err := s.trades.ReconcileAccepted(ctx, s.reconcileAfter, s.batch)
	res.Reconciled = reconciled
	if err != nil && firstErr == nil {
		firstErr = err
	}

	if s.matcher != nil && s.redeliverWindow > 0 {
		since := s.now().UTC().Add(-s.redeliverWindow)
		redelivered, err := s.matcher.RedeliverPending(ctx, since, s.batch)
		res.Redelivered = redelivered
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if res.Expired > 0 || res.Reconciled > 0 || res.Redelivered > 0 {
		s.log.Info().
			Int("expired", res.Expired).
			Int("reconciled", res.Reconciled).
			Int("redelivered", res.Redelivered).
			Msg("sweep completed")
	}
	return res, firstErr
}
