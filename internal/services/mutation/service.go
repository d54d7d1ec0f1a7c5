// Package mutation writes ledger changes to the document store and keeps
// account balances in step with transaction creates and deletes.
package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Compile-time interface check
var _ interfaces.MutationService = (*Service)(nil)

// Service implements MutationService. Transaction writes are two sequential
// document writes (record, then balance) with no atomicity; compensate mode
// tries to undo the first write when the second fails.
type Service struct {
	docs       interfaces.DocumentStore
	ledger     interfaces.LedgerReader
	compensate bool
	logger     *common.Logger
}

// Option configures the service
type Option func(*Service)

// WithCompensation enables compensating writes on partial failure.
func WithCompensation(enabled bool) Option {
	return func(s *Service) {
		s.compensate = enabled
	}
}

// NewService creates a mutation service for the user signed in to ledger.
func NewService(docs interfaces.DocumentStore, ledger interfaces.LedgerReader, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		docs:   docs,
		ledger: ledger,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) userID() (string, error) {
	id := s.ledger.UserID()
	if id == "" {
		return "", models.ErrNotSignedIn
	}
	return id, nil
}

func (s *Service) add(ctx context.Context, userID, collection, sortKey string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	return s.docs.Add(ctx, &models.Document{
		UserID:     userID,
		Collection: collection,
		SortKey:    sortKey,
		Data:       string(data),
	})
}

// AddTransaction writes the transaction, then moves its account balance by
// the transaction's delta. Transfers have a zero delta and skip the second
// write.
func (s *Service) AddTransaction(ctx context.Context, tx models.Transaction) (string, error) {
	userID, err := s.userID()
	if err != nil {
		return "", err
	}
	if err := tx.Validate(); err != nil {
		return "", err
	}

	accounts, err := s.ledger.Accounts()
	if err != nil {
		return "", err
	}
	if !hasAccount(accounts, tx.AccountID) {
		return "", fmt.Errorf("%w '%s'", models.ErrUnknownAccount, tx.AccountID)
	}

	tx.ID = ""
	id, err := s.add(ctx, userID, models.CollectionTransactions, tx.Date, tx)
	if err != nil {
		return "", fmt.Errorf("failed to write transaction: %w", err)
	}

	delta := tx.Delta()
	if delta.IsZero() {
		s.logger.Info().Str("tx_id", id).Str("type", string(tx.Type)).Msg("Transaction added")
		return id, nil
	}

	if err := s.applyDelta(ctx, userID, tx.AccountID, delta); err != nil {
		if s.compensate {
			if cerr := s.docs.Delete(ctx, userID, models.CollectionTransactions, id); cerr != nil {
				s.logger.Error().
					Err(cerr).
					Str("tx_id", id).
					Str("account_id", tx.AccountID).
					Msg("Compensation failed: transaction recorded without balance update")
			} else {
				s.logger.Warn().Str("tx_id", id).Msg("Balance update failed, transaction removed")
				return "", fmt.Errorf("failed to update balance of account '%s': %w", tx.AccountID, err)
			}
		}
		return id, fmt.Errorf("transaction '%s' written but balance update of account '%s' failed: %w", id, tx.AccountID, err)
	}

	s.logger.Info().
		Str("tx_id", id).
		Str("account_id", tx.AccountID).
		Str("delta", delta.String()).
		Msg("Transaction added")
	return id, nil
}

// DeleteTransaction reverses the transaction's effect on its account, then
// deletes it. Unknown ids are a silent no-op. The reversal is skipped when
// the owning account no longer exists.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	userID, err := s.userID()
	if err != nil {
		return err
	}

	txs, err := s.ledger.Transactions()
	if err != nil {
		return err
	}
	tx, ok := findTransaction(txs, id)
	if !ok {
		s.logger.Debug().Str("tx_id", id).Msg("Delete of unknown transaction ignored")
		return nil
	}

	delta := tx.Delta()
	reversed := false
	if !delta.IsZero() {
		accounts, err := s.ledger.Accounts()
		if err != nil {
			return err
		}
		if hasAccount(accounts, tx.AccountID) {
			err := s.applyDelta(ctx, userID, tx.AccountID, delta.Neg())
			switch {
			case err == nil:
				reversed = true
			case errors.Is(err, models.ErrNotFound):
				s.logger.Warn().Str("tx_id", id).Str("account_id", tx.AccountID).Msg("Account gone, reversal skipped")
			default:
				return fmt.Errorf("failed to reverse balance of account '%s': %w", tx.AccountID, err)
			}
		} else {
			s.logger.Warn().Str("tx_id", id).Str("account_id", tx.AccountID).Msg("Orphaned transaction, reversal skipped")
		}
	}

	if err := s.docs.Delete(ctx, userID, models.CollectionTransactions, id); err != nil {
		if s.compensate && reversed {
			if cerr := s.applyDelta(ctx, userID, tx.AccountID, delta); cerr != nil {
				s.logger.Error().
					Err(cerr).
					Str("tx_id", id).
					Str("account_id", tx.AccountID).
					Msg("Compensation failed: balance reversed but transaction kept")
			} else {
				s.logger.Warn().Str("tx_id", id).Msg("Delete failed, balance restored")
			}
		}
		return fmt.Errorf("failed to delete transaction '%s': %w", id, err)
	}

	s.logger.Info().Str("tx_id", id).Str("account_id", tx.AccountID).Msg("Transaction deleted")
	return nil
}

// applyDelta adds delta to the account's stored balance in one atomic
// read-modify-write.
func (s *Service) applyDelta(ctx context.Context, userID, accountID string, delta decimal.Decimal) error {
	return s.docs.Modify(ctx, userID, models.CollectionAccounts, accountID, func(doc *models.Document) (map[string]any, error) {
		var account models.Account
		if err := json.Unmarshal([]byte(doc.Data), &account); err != nil {
			return nil, fmt.Errorf("failed to decode account '%s': %w", accountID, err)
		}
		return map[string]any{"balance": account.Balance.Add(delta).String()}, nil
	})
}

// AddAccount creates an account.
func (s *Service) AddAccount(ctx context.Context, account models.Account) (string, error) {
	userID, err := s.userID()
	if err != nil {
		return "", err
	}
	account.Name = strings.TrimSpace(account.Name)
	if account.Name == "" {
		return "", models.Validationf("account name is required")
	}
	if !account.Type.Valid() {
		return "", models.Validationf("unknown account type %q", account.Type)
	}

	account.ID = ""
	id, err := s.add(ctx, userID, models.CollectionAccounts, "", account)
	if err != nil {
		return "", fmt.Errorf("failed to write account: %w", err)
	}
	s.logger.Info().Str("account_id", id).Str("name", account.Name).Msg("Account added")
	return id, nil
}

// DeleteAccount removes an account. Its transactions are left in place.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	userID, err := s.userID()
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, userID, models.CollectionAccounts, id); err != nil {
		return fmt.Errorf("failed to delete account '%s': %w", id, err)
	}
	s.logger.Info().Str("account_id", id).Msg("Account deleted")
	return nil
}

// AddHolding creates a holding. Without a current price it starts at its
// average cost.
func (s *Service) AddHolding(ctx context.Context, holding models.Holding) (string, error) {
	userID, err := s.userID()
	if err != nil {
		return "", err
	}
	holding.Symbol = strings.TrimSpace(holding.Symbol)
	if err := holding.Validate(); err != nil {
		return "", err
	}
	if holding.CurrentPrice.IsZero() {
		holding.CurrentPrice = holding.AvgCost
	}

	holding.ID = ""
	id, err := s.add(ctx, userID, models.CollectionHoldings, "", holding)
	if err != nil {
		return "", fmt.Errorf("failed to write holding: %w", err)
	}
	s.logger.Info().Str("holding_id", id).Str("symbol", holding.Symbol).Msg("Holding added")
	return id, nil
}

// DeleteHolding removes a holding.
func (s *Service) DeleteHolding(ctx context.Context, id string) error {
	userID, err := s.userID()
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, userID, models.CollectionHoldings, id); err != nil {
		return fmt.Errorf("failed to delete holding '%s': %w", id, err)
	}
	s.logger.Info().Str("holding_id", id).Msg("Holding deleted")
	return nil
}

// UpsertHolding replaces the holding with holding.ID, creating it if absent.
func (s *Service) UpsertHolding(ctx context.Context, holding models.Holding) error {
	userID, err := s.userID()
	if err != nil {
		return err
	}
	if strings.TrimSpace(holding.ID) == "" {
		return models.Validationf("holding id is required")
	}
	holding.Symbol = strings.TrimSpace(holding.Symbol)
	if err := holding.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(holding)
	if err != nil {
		return fmt.Errorf("failed to encode holding: %w", err)
	}
	if err := s.docs.Set(ctx, &models.Document{
		UserID:     userID,
		Collection: models.CollectionHoldings,
		ID:         holding.ID,
		Data:       string(data),
	}); err != nil {
		return fmt.Errorf("failed to write holding '%s': %w", holding.ID, err)
	}
	s.logger.Info().Str("holding_id", holding.ID).Str("symbol", holding.Symbol).Msg("Holding upserted")
	return nil
}

func hasAccount(accounts []models.Account, id string) bool {
	for _, a := range accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func findTransaction(txs []models.Transaction, id string) (models.Transaction, bool) {
	for _, tx := range txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return models.Transaction{}, false
}
