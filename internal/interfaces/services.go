// Package interfaces defines service contracts for fintrack
package interfaces

import (
	"context"

	"github.com/bobmcallan/fintrack/internal/models"
)

// LedgerReader is read access to one signed-in user's ledger snapshot.
// Accessors return models.ErrLoading before the first sign-in check and
// models.ErrNotSignedIn after sign-out.
type LedgerReader interface {
	UserID() string
	Accounts() ([]models.Account, error)
	Transactions() ([]models.Transaction, error) // date desc
	Holdings() ([]models.Holding, error)
	Snapshot() (models.LedgerSnapshot, error)
}

// LedgerStore keeps the in-memory snapshot synchronised with the document store.
type LedgerStore interface {
	LedgerReader

	// SetUser switches the store to user, or signs out when user is nil.
	// Existing subscriptions are torn down before new ones are opened.
	SetUser(ctx context.Context, user *models.User) error

	// Ready reports whether every collection has delivered its first snapshot.
	Ready() bool

	// WaitReady blocks until Ready or ctx is done.
	WaitReady(ctx context.Context) error

	// Subscribe returns a coalescing feed of snapshots and a cancel func.
	Subscribe() (<-chan models.LedgerSnapshot, func())

	Close() error
}

// MutationService writes ledger changes to the document store. It never
// touches the local snapshot; changes arrive back through the subscriptions.
type MutationService interface {
	AddTransaction(ctx context.Context, tx models.Transaction) (string, error)
	DeleteTransaction(ctx context.Context, id string) error
	AddAccount(ctx context.Context, account models.Account) (string, error)
	DeleteAccount(ctx context.Context, id string) error
	AddHolding(ctx context.Context, holding models.Holding) (string, error)
	DeleteHolding(ctx context.Context, id string) error
	UpsertHolding(ctx context.Context, holding models.Holding) error
}

// PriceOracle returns the latest prices for a batch of symbols.
type PriceOracle interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]models.PriceQuote, error)
}

// PriceSyncService refreshes holding prices from the oracle.
type PriceSyncService interface {
	// Sync runs one refresh. Oracle failures are reported in the result,
	// not as an error.
	Sync(ctx context.Context) (*models.PriceSyncResult, error)

	// TrySync is Sync that fails with models.ErrSyncBusy when a sync is
	// already in flight.
	TrySync(ctx context.Context) (*models.PriceSyncResult, error)

	// Busy is true while any Sync is in flight.
	Busy() bool
}

// AuthService signs users in, registering unknown emails.
type AuthService interface {
	// SignIn returns the user and a bearer token. Unknown emails are registered.
	SignIn(ctx context.Context, email, password, displayName string) (*models.User, string, error)

	// ValidateToken resolves a bearer token to its user.
	ValidateToken(ctx context.Context, token string) (*models.User, error)

	// Revoke makes token invalid for the rest of its lifetime.
	Revoke(ctx context.Context, token string) error
}

// ReportService derives dashboard and report figures from a snapshot.
type ReportService interface {
	Dashboard(snap models.LedgerSnapshot) models.Dashboard
	Report(snap models.LedgerSnapshot) models.Report
	ExpenseChart(snap models.LedgerSnapshot) ([]byte, error)
	Markdown(snap models.LedgerSnapshot) string
	HTML(snap models.LedgerSnapshot) ([]byte, error)
}
