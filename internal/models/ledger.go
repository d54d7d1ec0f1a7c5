// Package models defines data structures for fintrack
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for transaction dates.
const DateLayout = "2006-01-02"

// Collection names, one of each per user.
const (
	CollectionAccounts     = "accounts"
	CollectionTransactions = "transactions"
	CollectionHoldings     = "holdings"
)

// Collections lists every per-user collection.
var Collections = []string{CollectionAccounts, CollectionTransactions, CollectionHoldings}

// AccountType classifies an account
type AccountType string

const (
	AccountTypeBank       AccountType = "Bank"
	AccountTypeCash       AccountType = "Cash"
	AccountTypeInvestment AccountType = "Investment"
	AccountTypeCreditCard AccountType = "Credit Card"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeBank, AccountTypeCash, AccountTypeInvestment, AccountTypeCreditCard:
		return true
	}
	return false
}

// ParseAccountType matches an account type case-insensitively.
func ParseAccountType(s string) (AccountType, error) {
	for _, t := range []AccountType{AccountTypeBank, AccountTypeCash, AccountTypeInvestment, AccountTypeCreditCard} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", Validationf("unknown account type %q", s)
}

// Account is a money container. Balance is a running sum of applied
// transaction effects and is never recomputed from history.
type Account struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     AccountType     `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// TransactionType is the direction of a transaction
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "Income"
	TransactionTypeExpense  TransactionType = "Expense"
	TransactionTypeTransfer TransactionType = "Transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return true
	}
	return false
}

// ParseTransactionType matches a transaction type case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	for _, t := range []TransactionType{TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", Validationf("unknown transaction type %q", s)
}

// Delta returns the signed balance effect of amount for this type:
// +amount for income, -amount for expense and zero for transfer.
func (t TransactionType) Delta(amount decimal.Decimal) decimal.Decimal {
	switch t {
	case TransactionTypeIncome:
		return amount
	case TransactionTypeExpense:
		return amount.Neg()
	default:
		return decimal.Zero
	}
}

// Transaction is a single dated money movement on one account.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Date      string          `json:"date"` // YYYY-MM-DD
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"type"`
	Category  string          `json:"category"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"-"`
}

// Delta returns the balance effect of the transaction on its account.
func (t Transaction) Delta() decimal.Decimal {
	return t.Type.Delta(t.Amount)
}

// Validate checks everything about the transaction that does not need the ledger.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.AccountID) == "" {
		return Validationf("account_id is required")
	}
	if !t.Type.Valid() {
		return Validationf("unknown transaction type %q", t.Type)
	}
	if t.Amount.IsNegative() {
		return Validationf("amount must not be negative")
	}
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return Validationf("date %q is not YYYY-MM-DD", t.Date)
	}
	return nil
}

// Holding is a stock position.
type Holding struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Currency     string          `json:"currency"`
	LastUpdated  *time.Time      `json:"last_updated,omitempty"`
}

// CostBasis is avgCost x quantity.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AvgCost.Mul(h.Quantity)
}

// MarketValue is currentPrice x quantity.
func (h Holding) MarketValue() decimal.Decimal {
	return h.CurrentPrice.Mul(h.Quantity)
}

// UnrealizedReturn is (currentPrice - avgCost) x quantity.
func (h Holding) UnrealizedReturn() decimal.Decimal {
	return h.CurrentPrice.Sub(h.AvgCost).Mul(h.Quantity)
}

// ReturnPercent is the unrealized return over cost basis in percent, or
// zero when the cost basis is zero.
func (h Holding) ReturnPercent() decimal.Decimal {
	cost := h.CostBasis()
	if cost.IsZero() {
		return decimal.Zero
	}
	return h.UnrealizedReturn().Div(cost).Mul(decimal.NewFromInt(100))
}

// Validate checks the holding fields a caller must supply.
func (h Holding) Validate() error {
	if strings.TrimSpace(h.Symbol) == "" {
		return Validationf("symbol is required")
	}
	if h.Quantity.IsNegative() {
		return Validationf("quantity must not be negative")
	}
	if h.AvgCost.IsNegative() {
		return Validationf("avg_cost must not be negative")
	}
	if h.CurrentPrice.IsNegative() {
		return Validationf("current_price must not be negative")
	}
	return nil
}

// String renders a holding for logs.
func (h Holding) String() string {
	return fmt.Sprintf("%s x%s @ %s", h.Symbol, h.Quantity.String(), h.CurrentPrice.String())
}
