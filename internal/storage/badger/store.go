// Package badger provides the embedded BadgerHold storage backend. Change
// notifications are delivered in-process, so only writers sharing this
// Store are seen by its subscribers.
package badger

import (
	"errors"
	"fmt"
	"os"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/storage/feed"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// Store wraps a BadgerHold database connection and implements
// interfaces.StorageManager.
type Store struct {
	db     *badgerhold.Store
	hub    *feed.Hub
	logger *common.Logger

	documents *documentStorage
	users     *userStorage
}

// NewStore creates a new BadgerHold store at the given directory path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info().Str("path", path).Msg("BadgerHold store opened")

	s := &Store{
		db:     db,
		hub:    feed.NewHub(),
		logger: logger,
	}
	s.documents = newDocumentStorage(s)
	s.users = newUserStorage(s)
	return s, nil
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *Store) update(fn func(tx *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnRetries; attempt++ {
		err = s.db.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// DB returns the underlying badgerhold store.
func (s *Store) DB() *badgerhold.Store {
	return s.db
}

func (s *Store) DocumentStore() interfaces.DocumentStore {
	return s.documents
}

func (s *Store) UserStore() interfaces.UserStore {
	return s.users
}

// Close closes the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ interfaces.StorageManager = (*Store)(nil)
