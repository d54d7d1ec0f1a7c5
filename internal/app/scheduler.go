package app

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/services/session"
)

// startPriceScheduler refreshes holding prices for every open session on a
// fixed interval.
func startPriceScheduler(ctx context.Context, sessions *session.Manager, logger *common.Logger, interval, freshness time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Price scheduler: stopped")
			return
		case <-ticker.C:
			refreshPrices(ctx, sessions, logger, freshness)
		}
	}
}

// refreshPrices syncs each session that has a stale holding and no sync
// already running. Returns the number of sessions synced.
func refreshPrices(ctx context.Context, sessions *session.Manager, logger *common.Logger, freshness time.Duration) int {
	start := time.Now()
	synced := 0

	for _, s := range sessions.Sessions() {
		if ctx.Err() != nil {
			break
		}
		if !hasStaleHolding(s, freshness) {
			continue
		}

		result, err := s.Prices.TrySync(ctx)
		if errors.Is(err, models.ErrSyncBusy) {
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Str("user_id", s.User.ID).Msg("Price refresh: sync failed")
			continue
		}
		synced++
		if result.OracleError != "" {
			logger.Warn().Str("user_id", s.User.ID).Str("oracle_error", result.OracleError).Msg("Price refresh: oracle failed")
		}
	}

	if synced > 0 {
		logger.Info().
			Int("sessions", synced).
			Dur("elapsed", time.Since(start)).
			Msg("Price refresh: complete")
	}
	return synced
}

func hasStaleHolding(s *session.Session, freshness time.Duration) bool {
	holdings, err := s.Ledger.Holdings()
	if err != nil {
		return false
	}
	for _, h := range holdings {
		if h.LastUpdated == nil || !common.IsFresh(*h.LastUpdated, freshness) {
			return true
		}
	}
	return false
}

// startSessionReaper closes sessions idle longer than maxIdle.
func startSessionReaper(ctx context.Context, sessions *session.Manager, logger *common.Logger, maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Reap(maxIdle); n > 0 {
				logger.Debug().Int("closed", n).Msg("Session reaper: closed idle sessions")
			}
		}
	}
}
