package badger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(testLogger(), filepath.Join(dir, "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

func accountDoc(userID, name string, balance int) *models.Document {
	data, _ := json.Marshal(map[string]any{"name": name, "balance": balance})
	return &models.Document{UserID: userID, Collection: models.CollectionAccounts, Data: string(data)}
}

func nextSnapshot(t *testing.T, sub interfaces.Subscription) []*models.Document {
	t.Helper()
	select {
	case docs, ok := <-sub.C():
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return docs
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

// --- Store tests ---

func TestStore_OpenClose(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(testLogger(), filepath.Join(dir, "badger"))
	require.NoError(t, err)
	assert.NotNil(t, store.DB())
	assert.NotNil(t, store.DocumentStore())
	assert.NotNil(t, store.UserStore())
	require.NoError(t, store.Close())
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{}
	assert.NoError(t, store.Close())
}

// --- Document tests ---

func TestDocuments_CRUD(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	id, err := docs.Add(ctx, accountDoc("alice", "CTBC Bank", 1000))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := docs.Get(ctx, "alice", models.CollectionAccounts, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"CTBC Bank","balance":1000}`, got.Data)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, docs.Update(ctx, "alice", models.CollectionAccounts, id, map[string]any{"balance": "800"}))
	got, err = docs.Get(ctx, "alice", models.CollectionAccounts, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"CTBC Bank","balance":"800"}`, got.Data)

	require.NoError(t, docs.Delete(ctx, "alice", models.CollectionAccounts, id))
	_, err = docs.Get(ctx, "alice", models.CollectionAccounts, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDocuments_UpdateMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.DocumentStore().Update(context.Background(), "alice", models.CollectionAccounts, "nope", map[string]any{"balance": "1"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDocuments_DeleteMissingIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.DocumentStore().Delete(context.Background(), "alice", models.CollectionAccounts, "nope"))
}

func TestDocuments_SetPreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := &models.Document{UserID: "alice", Collection: models.CollectionHoldings, ID: "h1", Data: `{"symbol":"AAPL"}`}
	require.NoError(t, docs.Set(ctx, doc))
	first, err := docs.Get(ctx, "alice", models.CollectionHoldings, "h1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, docs.Set(ctx, &models.Document{UserID: "alice", Collection: models.CollectionHoldings, ID: "h1", Data: `{"symbol":"MSFT"}`}))
	second, err := docs.Get(ctx, "alice", models.CollectionHoldings, "h1")
	require.NoError(t, err)

	assert.JSONEq(t, `{"symbol":"MSFT"}`, second.Data)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestDocuments_ListScopedAndOrdered(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	for _, d := range []struct{ user, date string }{
		{"alice", "2025-01-01"},
		{"alice", "2025-03-01"},
		{"bob", "2025-02-01"},
		{"alice", "2025-02-01"},
	} {
		_, err := docs.Add(ctx, &models.Document{UserID: d.user, Collection: models.CollectionTransactions, SortKey: d.date, Data: "{}"})
		require.NoError(t, err)
	}

	list, err := docs.List(ctx, "alice", models.CollectionTransactions, interfaces.QueryOptions{OrderBy: interfaces.OrderSortKeyDesc})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-03-01", list[0].SortKey)
	assert.Equal(t, "2025-02-01", list[1].SortKey)
	assert.Equal(t, "2025-01-01", list[2].SortKey)

	accounts, err := docs.List(ctx, "alice", models.CollectionAccounts, interfaces.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestDocuments_WatchDeliversChanges(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	sub, err := docs.Watch(ctx, "alice", models.CollectionAccounts, interfaces.QueryOptions{})
	require.NoError(t, err)
	defer sub.Close()

	assert.Empty(t, nextSnapshot(t, sub))

	id, err := docs.Add(ctx, accountDoc("alice", "Wallet", 10))
	require.NoError(t, err)
	snap := nextSnapshot(t, sub)
	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].ID)

	// Another user's write does not reach alice's feed.
	_, err = docs.Add(ctx, accountDoc("bob", "Other", 1))
	require.NoError(t, err)

	require.NoError(t, docs.Delete(ctx, "alice", models.CollectionAccounts, id))
	assert.Empty(t, nextSnapshot(t, sub))
}

func TestDocuments_WatchCloseDetaches(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	sub, err := docs.Watch(ctx, "alice", models.CollectionHoldings, interfaces.QueryOptions{})
	require.NoError(t, err)
	nextSnapshot(t, sub)
	assert.Equal(t, 1, store.hub.Count("alice", models.CollectionHoldings))

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, store.hub.Count("alice", models.CollectionHoldings))

	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestDocuments_ConcurrentUpdates(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	id, err := docs.Add(ctx, &models.Document{UserID: "alice", Collection: models.CollectionHoldings, Data: `{}`})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			field := string(rune('a' + i))
			assert.NoError(t, docs.Update(ctx, "alice", models.CollectionHoldings, id, map[string]any{field: i}))
		}(i)
	}
	wg.Wait()

	got, err := docs.Get(ctx, "alice", models.CollectionHoldings, id)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Data), &fields))
	assert.Len(t, fields, 10)
}

func incrementCounter(doc *models.Document) (map[string]any, error) {
	var c struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal([]byte(doc.Data), &c); err != nil {
		return nil, err
	}
	return map[string]any{"n": c.N + 1}, nil
}

func TestDocuments_ModifyIsAtomic(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	id, err := docs.Add(ctx, &models.Document{UserID: "alice", Collection: models.CollectionAccounts, Data: `{"n":0}`})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, docs.Modify(ctx, "alice", models.CollectionAccounts, id, incrementCounter))
		}()
	}
	wg.Wait()

	got, err := docs.Get(ctx, "alice", models.CollectionAccounts, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":25}`, got.Data)
}

func TestDocuments_ModifyErrors(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	err := docs.Modify(ctx, "alice", models.CollectionAccounts, "missing", incrementCounter)
	assert.ErrorIs(t, err, models.ErrNotFound)

	id, err := docs.Add(ctx, &models.Document{UserID: "alice", Collection: models.CollectionAccounts, Data: `{"n":3}`})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = docs.Modify(ctx, "alice", models.CollectionAccounts, id, func(*models.Document) (map[string]any, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)

	got, err := docs.Get(ctx, "alice", models.CollectionAccounts, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3}`, got.Data)
}

// --- User storage tests ---

func TestUserStorage_SaveAndLookup(t *testing.T) {
	store := newTestStore(t)
	users := store.UserStore()
	ctx := context.Background()

	user := &models.User{ID: "u1", Email: " Amy@Example.com ", DisplayName: "amy", PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, users.SaveUser(ctx, user))

	got, err := users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "amy@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)

	byEmail, err := users.GetUserByEmail(ctx, "AMY@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = users.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = users.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
