// Package interfaces defines service contracts for fintrack
package interfaces

import (
	"context"

	"github.com/bobmcallan/fintrack/internal/models"
)

// StorageManager coordinates the storage backend
type StorageManager interface {
	DocumentStore() DocumentStore
	UserStore() UserStore

	// Lifecycle
	Close() error
}

// UserStore persists identities.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

// DocumentStore is the per-user document database holding the accounts,
// transactions and holdings collections. It is the source of truth; every
// write is visible to Watch subscribers of the same backing store.
type DocumentStore interface {
	// Add creates a document with a generated id and returns the id.
	Add(ctx context.Context, doc *models.Document) (string, error)

	// Set creates or replaces the document with doc.ID.
	Set(ctx context.Context, doc *models.Document) error

	// Update merges fields into the JSON data of an existing document.
	// Returns models.ErrNotFound when the document does not exist.
	Update(ctx context.Context, userID, collection, id string, fields map[string]any) error

	// Modify atomically reads a document, passes it to fn and merges the
	// returned fields into it. No other write to the document lands in
	// between. fn may be called more than once and must not have side
	// effects; an error from fn aborts the write and is returned as is.
	// Returns models.ErrNotFound when the document does not exist.
	Modify(ctx context.Context, userID, collection, id string, fn ModifyFunc) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, userID, collection, id string) error

	// Get returns one document or models.ErrNotFound.
	Get(ctx context.Context, userID, collection, id string) (*models.Document, error)

	// List returns every document of a collection in opts order.
	List(ctx context.Context, userID, collection string, opts QueryOptions) ([]*models.Document, error)

	// Watch subscribes to full snapshots of a collection. The first snapshot
	// is delivered immediately; every later change triggers a new one.
	Watch(ctx context.Context, userID, collection string, opts QueryOptions) (Subscription, error)

	Close() error
}

// ModifyFunc computes the fields to merge from the current document.
type ModifyFunc func(doc *models.Document) (map[string]any, error)

// Subscription is a live feed of collection snapshots.
type Subscription interface {
	// C delivers full snapshots, oldest first. It is closed after Close
	// or when the watch fails.
	C() <-chan []*models.Document

	// Err reports why the feed ended, nil after a clean Close.
	Err() error

	Close() error
}

// QueryOptions configures ordering for List and Watch.
type QueryOptions struct {
	Limit   int
	OrderBy string // OrderCreatedAsc (default) or OrderSortKeyDesc
}

// Document orderings.
const (
	OrderCreatedAsc  = "created_asc"
	OrderSortKeyDesc = "sort_key_desc" // sort_key desc, then created_at desc
)
