// Package pricesync refreshes holding prices from the price oracle.
package pricesync

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Compile-time interface check
var _ interfaces.PriceSyncService = (*Service)(nil)

// Service implements PriceSyncService.
type Service struct {
	docs   interfaces.DocumentStore
	ledger interfaces.LedgerReader
	oracle interfaces.PriceOracle
	logger *common.Logger
	now    func() time.Time

	inFlight atomic.Int32
}

// Option configures the service
type Option func(*Service)

// WithClock overrides the clock used for lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a price sync service for the user signed in to ledger.
func NewService(docs interfaces.DocumentStore, ledger interfaces.LedgerReader, oracle interfaces.PriceOracle, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		docs:   docs,
		ledger: ledger,
		oracle: oracle,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether any sync is in flight.
func (s *Service) Busy() bool {
	return s.inFlight.Load() > 0
}

// Sync asks the oracle for every held symbol in one request and writes the
// matched prices back. Oracle failures are logged and reported in the
// result; the returned error covers only missing ledger state.
func (s *Service) Sync(ctx context.Context) (*models.PriceSyncResult, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	return s.sync(ctx)
}

// TrySync runs a sync only when none is in flight. Otherwise it returns
// models.ErrSyncBusy without contacting the oracle.
func (s *Service) TrySync(ctx context.Context) (*models.PriceSyncResult, error) {
	if !s.inFlight.CompareAndSwap(0, 1) {
		return nil, models.ErrSyncBusy
	}
	defer s.inFlight.Add(-1)
	return s.sync(ctx)
}

func (s *Service) sync(ctx context.Context) (*models.PriceSyncResult, error) {
	result := &models.PriceSyncResult{StartedAt: s.now()}
	defer func() { result.Duration = s.now().Sub(result.StartedAt) }()

	userID := s.ledger.UserID()
	if userID == "" {
		return nil, models.ErrNotSignedIn
	}
	holdings, err := s.ledger.Holdings()
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		s.logger.Debug().Str("user_id", userID).Msg("No holdings to sync")
		return result, nil
	}

	symbols := uniqueSymbols(holdings)
	result.Requested = len(symbols)

	quotes, err := s.oracle.FetchQuotes(ctx, symbols)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Int("symbols", len(symbols)).Msg("Price oracle failed, no prices updated")
		result.OracleError = err.Error()
		return result, nil
	}
	result.Quoted = len(quotes)

	prices := indexQuotes(quotes)
	stamp := s.now().UTC()

	var (
		wg      sync.WaitGroup
		updated atomic.Int32
		failed  atomic.Int32
	)
	for _, h := range holdings {
		q, ok := prices[symbolKey(h.Symbol)]
		if !ok {
			result.Unmatched = append(result.Unmatched, h.Symbol)
			continue
		}
		wg.Add(1)
		go func(h models.Holding, q models.PriceQuote) {
			defer wg.Done()
			err := s.docs.Update(ctx, userID, models.CollectionHoldings, h.ID, map[string]any{
				"current_price": q.Price.String(),
				"last_updated":  stamp,
			})
			if err != nil {
				failed.Add(1)
				s.logger.Warn().Err(err).Str("holding_id", h.ID).Str("symbol", h.Symbol).Msg("Failed to write price")
				return
			}
			updated.Add(1)
		}(h, q)
	}
	wg.Wait()

	result.Updated = int(updated.Load())
	result.Failed = int(failed.Load())

	s.logger.Info().
		Str("user_id", userID).
		Int("requested", result.Requested).
		Int("quoted", result.Quoted).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("unmatched", len(result.Unmatched)).
		Msg("Price sync complete")
	return result, nil
}

func symbolKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// uniqueSymbols returns the holdings' symbols, trimmed, with
// case-insensitive duplicates removed.
func uniqueSymbols(holdings []models.Holding) []string {
	seen := make(map[string]bool, len(holdings))
	out := make([]string, 0, len(holdings))
	for _, h := range holdings {
		key := symbolKey(h.Symbol)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(h.Symbol))
	}
	return out
}

// indexQuotes keys quotes by normalised symbol. Non-positive prices are
// dropped; the first usable quote for a symbol wins.
func indexQuotes(quotes []models.PriceQuote) map[string]models.PriceQuote {
	out := make(map[string]models.PriceQuote, len(quotes))
	for _, q := range quotes {
		key := symbolKey(q.Symbol)
		if key == "" || !q.Price.IsPositive() {
			continue
		}
		if _, ok := out[key]; !ok {
			out[key] = q
		}
	}
	return out
}
