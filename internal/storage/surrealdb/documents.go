package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/storage/feed"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const documentTable = "ledger_doc"

// documentSelectFields aliases doc_id to id for struct mapping.
const documentSelectFields = "doc_id as id, user_id, collection, data, sort_key, created_at, updated_at"

// DocumentStore implements interfaces.DocumentStore using SurrealDB.
type DocumentStore struct {
	db     *surrealdb.DB
	logger *common.Logger

	mu   sync.Mutex
	subs map[*feed.Subscription]struct{}
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(db *surrealdb.DB, logger *common.Logger) *DocumentStore {
	return &DocumentStore{db: db, logger: logger, subs: make(map[*feed.Subscription]struct{})}
}

func documentRecordID(userID, collection, id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(documentTable, userID+"_"+collection+"_"+id)
}

// write runs an upsert-style statement with the same retry policy as the other stores.
func (s *DocumentStore) write(ctx context.Context, sql string, vars map[string]any) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[any](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (s *DocumentStore) Add(ctx context.Context, doc *models.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	sql := `CREATE $rid SET
		doc_id = $doc_id, user_id = $user_id, collection = $collection,
		data = $data, sort_key = $sort_key, created_at = $created_at, updated_at = $updated_at`
	if err := s.write(ctx, sql, documentVars(doc)); err != nil {
		return "", fmt.Errorf("failed to add %s document: %w", doc.Collection, err)
	}
	return doc.ID, nil
}

func (s *DocumentStore) Set(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return models.Validationf("document id is required")
	}
	now := time.Now()
	doc.CreatedAt = now
	existing, err := s.Get(ctx, doc.UserID, doc.Collection, doc.ID)
	switch {
	case err == nil:
		doc.CreatedAt = existing.CreatedAt
	case !errors.Is(err, models.ErrNotFound):
		return err
	}
	doc.UpdatedAt = now

	sql := `UPSERT $rid SET
		doc_id = $doc_id, user_id = $user_id, collection = $collection,
		data = $data, sort_key = $sort_key, created_at = $created_at, updated_at = $updated_at`
	if err := s.write(ctx, sql, documentVars(doc)); err != nil {
		return fmt.Errorf("failed to set %s document '%s': %w", doc.Collection, doc.ID, err)
	}
	return nil
}

func documentVars(doc *models.Document) map[string]any {
	return map[string]any{
		"rid":        documentRecordID(doc.UserID, doc.Collection, doc.ID),
		"doc_id":     doc.ID,
		"user_id":    doc.UserID,
		"collection": doc.Collection,
		"data":       doc.Data,
		"sort_key":   doc.SortKey,
		"created_at": doc.CreatedAt,
		"updated_at": doc.UpdatedAt,
	}
}

func (s *DocumentStore) Update(ctx context.Context, userID, collection, id string, fields map[string]any) error {
	return s.Modify(ctx, userID, collection, id, func(*models.Document) (map[string]any, error) {
		return fields, nil
	})
}

// maxModifyAttempts bounds how often Modify re-reads a document that a
// concurrent writer changed under it.
const maxModifyAttempts = 16

// Modify reads the document, then writes the merged data only if the stored
// data is still what was read. A lost race re-reads and calls fn again.
func (s *DocumentStore) Modify(ctx context.Context, userID, collection, id string, fn interfaces.ModifyFunc) error {
	sql := "UPDATE $rid SET data = $data, updated_at = $updated_at WHERE data = $prev RETURN VALUE doc_id"

	for attempt := 1; attempt <= maxModifyAttempts; attempt++ {
		doc, err := s.Get(ctx, userID, collection, id)
		if err != nil {
			return err
		}
		fields, err := fn(doc)
		if err != nil {
			return err
		}
		merged, err := feed.MergeData(doc.Data, fields)
		if err != nil {
			return err
		}

		vars := map[string]any{
			"rid":        documentRecordID(userID, collection, id),
			"data":       merged,
			"prev":       doc.Data,
			"updated_at": time.Now(),
		}
		results, err := surrealdb.Query[[]string](ctx, s.db, sql, vars)
		if err != nil {
			return fmt.Errorf("failed to update %s document '%s': %w", collection, id, err)
		}
		if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed to update %s document '%s': still contended after %d attempts", collection, id, maxModifyAttempts)
}

func (s *DocumentStore) Delete(ctx context.Context, userID, collection, id string) error {
	vars := map[string]any{"rid": documentRecordID(userID, collection, id)}
	if err := s.write(ctx, "DELETE $rid", vars); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete %s document '%s': %w", collection, id, err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, userID, collection, id string) (*models.Document, error) {
	sql := "SELECT " + documentSelectFields + " FROM $rid"
	vars := map[string]any{"rid": documentRecordID(userID, collection, id)}

	results, err := surrealdb.Query[[]models.Document](ctx, s.db, sql, vars)
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("failed to get %s document '%s': %w", collection, id, err)
	}
	if err != nil || results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%s '%s': %w", collection, id, models.ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

func (s *DocumentStore) List(ctx context.Context, userID, collection string, opts interfaces.QueryOptions) ([]*models.Document, error) {
	sql := "SELECT " + documentSelectFields + " FROM " + documentTable + " WHERE user_id = $user_id AND collection = $collection"
	if opts.OrderBy == interfaces.OrderSortKeyDesc {
		sql += " ORDER BY sort_key DESC, created_at DESC"
	} else {
		sql += " ORDER BY created_at ASC"
	}
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	vars := map[string]any{
		"user_id":    userID,
		"collection": collection,
	}

	results, err := surrealdb.Query[[]models.Document](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", collection, err)
	}

	var docs []*models.Document
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			docs = append(docs, &(*results)[0].Result[i])
		}
	}
	return docs, nil
}

// Watch opens a LIVE query on the document table before the first list,
// so no change between the two is missed. Notifications for other users
// or collections are dropped; anything unrecognisable triggers a re-list.
func (s *DocumentStore) Watch(ctx context.Context, userID, collection string, opts interfaces.QueryOptions) (interfaces.Subscription, error) {
	liveID, err := surrealdb.Live(ctx, s.db, surrealmodels.Table(documentTable), false)
	if err != nil {
		return nil, fmt.Errorf("failed to start live query on %s: %w", documentTable, err)
	}
	queryID := liveID.String()

	notifications, err := s.db.LiveNotifications(queryID)
	if err != nil {
		_ = surrealdb.Kill(ctx, s.db, queryID)
		return nil, fmt.Errorf("failed to subscribe to live query: %w", err)
	}

	sub := feed.NewSubscription(ctx, func(ctx context.Context) ([]*models.Document, error) {
		return s.List(ctx, userID, collection, opts)
	}, s.logger)

	go func() {
		for {
			select {
			case <-sub.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					sub.Fail(errors.New("live query notifications closed"))
					return
				}
				if notificationMatches(n.Result, userID, collection) {
					sub.Trigger()
				}
			}
		}
	}()

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.OnClose(func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()

		killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := surrealdb.Kill(killCtx, s.db, queryID); err != nil {
			s.logger.Warn().Err(err).Str("live_id", queryID).Msg("Failed to kill live query")
		}
	})

	s.logger.Debug().
		Str("user_id", userID).
		Str("collection", collection).
		Str("live_id", queryID).
		Msg("Live query opened")
	return sub, nil
}

// notificationMatches reports whether a live notification may concern the
// watched pair. Results that do not carry the owner fields always match.
func notificationMatches(result any, userID, collection string) bool {
	var user, coll any
	switch r := result.(type) {
	case map[string]any:
		user, coll = r["user_id"], r["collection"]
	case map[any]any:
		user, coll = r["user_id"], r["collection"]
	default:
		return true
	}

	u, uok := user.(string)
	c, cok := coll.(string)
	if !uok || !cok {
		return true
	}
	return u == userID && c == collection
}

// Close ends every open subscription.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	subs := make([]*feed.Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

var _ interfaces.DocumentStore = (*DocumentStore)(nil)
