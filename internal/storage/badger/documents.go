package badger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/storage/feed"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

// keySep is the composite key separator. A null byte cannot appear in ids,
// so user, collection and document id never collide.
const keySep = "\x00"

// compositeKey builds the storage key: user_id + \x00 + collection + \x00 + id
func compositeKey(userID, collection, id string) string {
	return userID + keySep + collection + keySep + id
}

// maxTxnRetries bounds retries of read-modify-write transactions that lose
// a conflict to a concurrent writer.
const maxTxnRetries = 16

// keyLockStripes is the number of mutexes serialising read-modify-write
// transactions on the same key.
const keyLockStripes = 64

type documentStorage struct {
	store *Store
	locks [keyLockStripes]sync.Mutex
}

// lock returns the stripe guarding ck.
func (s *documentStorage) lock(ck string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ck))
	return &s.locks[h.Sum32()%keyLockStripes]
}

func newDocumentStorage(store *Store) *documentStorage {
	return &documentStorage{store: store}
}

func (s *documentStorage) Add(ctx context.Context, doc *models.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	ck := compositeKey(doc.UserID, doc.Collection, doc.ID)
	if err := s.store.db.Insert(ck, doc); err != nil {
		return "", fmt.Errorf("failed to add %s document: %w", doc.Collection, err)
	}
	s.store.hub.Notify(doc.UserID, doc.Collection)
	return doc.ID, nil
}

func (s *documentStorage) Set(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return models.Validationf("document id is required")
	}
	ck := compositeKey(doc.UserID, doc.Collection, doc.ID)
	now := time.Now()

	mu := s.lock(ck)
	mu.Lock()
	defer mu.Unlock()

	err := s.store.update(func(tx *badger.Txn) error {
		var existing models.Document
		switch err := s.store.db.TxGet(tx, ck, &existing); {
		case err == nil:
			doc.CreatedAt = existing.CreatedAt
		case errors.Is(err, badgerhold.ErrNotFound):
			doc.CreatedAt = now
		default:
			return err
		}
		doc.UpdatedAt = now
		return s.store.db.TxUpsert(tx, ck, doc)
	})
	if err != nil {
		return fmt.Errorf("failed to set %s document '%s': %w", doc.Collection, doc.ID, err)
	}
	s.store.hub.Notify(doc.UserID, doc.Collection)
	return nil
}

func (s *documentStorage) Update(ctx context.Context, userID, collection, id string, fields map[string]any) error {
	return s.Modify(ctx, userID, collection, id, func(*models.Document) (map[string]any, error) {
		return fields, nil
	})
}

func (s *documentStorage) Modify(ctx context.Context, userID, collection, id string, fn interfaces.ModifyFunc) error {
	ck := compositeKey(userID, collection, id)

	mu := s.lock(ck)
	mu.Lock()
	defer mu.Unlock()

	var fnErr error
	err := s.store.update(func(tx *badger.Txn) error {
		var doc models.Document
		if err := s.store.db.TxGet(tx, ck, &doc); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("%s '%s': %w", collection, id, models.ErrNotFound)
			}
			return err
		}
		fields, err := fn(&doc)
		if err != nil {
			fnErr = err
			return err
		}
		merged, err := feed.MergeData(doc.Data, fields)
		if err != nil {
			return err
		}
		doc.Data = merged
		doc.UpdatedAt = time.Now()
		return s.store.db.TxUpdate(tx, ck, &doc)
	})
	if err != nil {
		if fnErr != nil || errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update %s document '%s': %w", collection, id, err)
	}
	s.store.hub.Notify(userID, collection)
	return nil
}

func (s *documentStorage) Delete(ctx context.Context, userID, collection, id string) error {
	ck := compositeKey(userID, collection, id)
	if err := s.store.db.Delete(ck, models.Document{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete %s document '%s': %w", collection, id, err)
	}
	s.store.hub.Notify(userID, collection)
	return nil
}

func (s *documentStorage) Get(ctx context.Context, userID, collection, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.store.db.Get(compositeKey(userID, collection, id), &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%s '%s': %w", collection, id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s document '%s': %w", collection, id, err)
	}
	return &doc, nil
}

func (s *documentStorage) List(ctx context.Context, userID, collection string, opts interfaces.QueryOptions) ([]*models.Document, error) {
	var all []models.Document
	query := badgerhold.Where("UserID").Eq(userID).And("Collection").Eq(collection)
	if err := s.store.db.Find(&all, query); err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", collection, err)
	}

	docs := make([]*models.Document, len(all))
	for i := range all {
		docs[i] = &all[i]
	}
	return feed.Sort(docs, opts), nil
}

func (s *documentStorage) Watch(ctx context.Context, userID, collection string, opts interfaces.QueryOptions) (interfaces.Subscription, error) {
	sub := s.store.hub.Subscribe(ctx, userID, collection, func(ctx context.Context) ([]*models.Document, error) {
		return s.List(ctx, userID, collection, opts)
	}, s.store.logger)

	s.store.logger.Debug().
		Str("user_id", userID).
		Str("collection", collection).
		Msg("Watch opened")
	return sub, nil
}

func (s *documentStorage) Close() error {
	return nil
}

var _ interfaces.DocumentStore = (*documentStorage)(nil)
