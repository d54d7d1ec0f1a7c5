package common

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/storage/badger"
)

// NewBadgerStorage opens an embedded store in a temp dir, closed on cleanup.
func NewBadgerStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	store, err := badger.NewStore(common.NewSilentLogger(), filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open badger store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Write is one recorded document store mutation.
type Write struct {
	Op         string // add, set, update, delete
	Collection string
	ID         string
	Fields     map[string]any
}

// RecordingStore wraps a DocumentStore, recording every write and
// optionally failing selected ones.
type RecordingStore struct {
	interfaces.DocumentStore

	mu     sync.Mutex
	writes []Write
	faults []fault
}

type fault struct {
	op         string
	collection string
	err        error
	remaining  int // <0 means forever
}

// NewRecordingStore wraps inner.
func NewRecordingStore(inner interfaces.DocumentStore) *RecordingStore {
	return &RecordingStore{DocumentStore: inner}
}

// FailNext makes the next n writes of op on collection return err.
// n < 0 fails every matching write.
func (r *RecordingStore) FailNext(op, collection string, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, fault{op: op, collection: collection, err: err, remaining: n})
}

// Writes returns a copy of the recorded writes.
func (r *RecordingStore) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.writes...)
}

// Reset clears recorded writes.
func (r *RecordingStore) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

func (r *RecordingStore) check(op, collection, id string, fields map[string]any) error {
	if err := r.fault(op, collection); err != nil {
		return err
	}
	r.record(Write{Op: op, Collection: collection, ID: id, Fields: fields})
	return nil
}

func (r *RecordingStore) fault(op, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.faults {
		f := &r.faults[i]
		if f.op != op || f.collection != collection || f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return f.err
	}
	return nil
}

func (r *RecordingStore) record(w Write) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, w)
}

func (r *RecordingStore) Add(ctx context.Context, doc *models.Document) (string, error) {
	if err := r.check("add", doc.Collection, doc.ID, nil); err != nil {
		return "", err
	}
	return r.DocumentStore.Add(ctx, doc)
}

func (r *RecordingStore) Set(ctx context.Context, doc *models.Document) error {
	if err := r.check("set", doc.Collection, doc.ID, nil); err != nil {
		return err
	}
	return r.DocumentStore.Set(ctx, doc)
}

func (r *RecordingStore) Update(ctx context.Context, userID, collection, id string, fields map[string]any) error {
	if err := r.check("update", collection, id, fields); err != nil {
		return err
	}
	return r.DocumentStore.Update(ctx, userID, collection, id, fields)
}

// Modify counts as an "update" and records the fields of the attempt
// that landed.
func (r *RecordingStore) Modify(ctx context.Context, userID, collection, id string, fn interfaces.ModifyFunc) error {
	if err := r.fault("update", collection); err != nil {
		return err
	}
	var applied map[string]any
	err := r.DocumentStore.Modify(ctx, userID, collection, id, func(doc *models.Document) (map[string]any, error) {
		fields, err := fn(doc)
		applied = fields
		return fields, err
	})
	if err != nil {
		return err
	}
	r.record(Write{Op: "update", Collection: collection, ID: id, Fields: applied})
	return nil
}

func (r *RecordingStore) Delete(ctx context.Context, userID, collection, id string) error {
	if err := r.check("delete", collection, id, nil); err != nil {
		return err
	}
	return r.DocumentStore.Delete(ctx, userID, collection, id)
}

// DirectLedger is a LedgerReader that lists straight from a document
// store, so each write is visible without waiting on a subscription.
type DirectLedger struct {
	docs interfaces.DocumentStore

	mu     sync.Mutex
	userID string
}

// NewDirectLedger reads userID's collections from docs.
func NewDirectLedger(docs interfaces.DocumentStore, userID string) *DirectLedger {
	return &DirectLedger{docs: docs, userID: userID}
}

// SetUserID switches the reader; empty means signed out.
func (l *DirectLedger) SetUserID(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userID = userID
}

func (l *DirectLedger) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

func listDecoded[T any](l *DirectLedger, collection string, opts interfaces.QueryOptions, setID func(*T, *models.Document)) ([]T, error) {
	userID := l.UserID()
	if userID == "" {
		return nil, models.ErrNotSignedIn
	}
	docs, err := l.docs.List(context.Background(), userID, collection, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal([]byte(d.Data), &v); err != nil {
			return nil, err
		}
		setID(&v, d)
		out = append(out, v)
	}
	return out, nil
}

func (l *DirectLedger) Accounts() ([]models.Account, error) {
	return listDecoded(l, models.CollectionAccounts, interfaces.QueryOptions{}, func(a *models.Account, d *models.Document) { a.ID = d.ID })
}

func (l *DirectLedger) Transactions() ([]models.Transaction, error) {
	return listDecoded(l, models.CollectionTransactions, interfaces.QueryOptions{OrderBy: interfaces.OrderSortKeyDesc}, func(t *models.Transaction, d *models.Document) {
		t.ID = d.ID
		t.CreatedAt = d.CreatedAt
	})
}

func (l *DirectLedger) Holdings() ([]models.Holding, error) {
	return listDecoded(l, models.CollectionHoldings, interfaces.QueryOptions{}, func(h *models.Holding, d *models.Document) { h.ID = d.ID })
}

func (l *DirectLedger) Snapshot() (models.LedgerSnapshot, error) {
	accounts, err := l.Accounts()
	if err != nil {
		return models.LedgerSnapshot{}, err
	}
	txs, err := l.Transactions()
	if err != nil {
		return models.LedgerSnapshot{}, err
	}
	holdings, err := l.Holdings()
	if err != nil {
		return models.LedgerSnapshot{}, err
	}
	return models.LedgerSnapshot{UserID: l.UserID(), Accounts: accounts, Transactions: txs, Holdings: holdings, Ready: true}, nil
}
