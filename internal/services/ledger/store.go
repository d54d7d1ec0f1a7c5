// Package ledger keeps an in-memory snapshot of the signed-in user's
// accounts, transactions and holdings, fed by document store subscriptions.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Compile-time interface check
var _ interfaces.LedgerStore = (*Store)(nil)

type authState int

const (
	stateLoading authState = iota
	stateSignedOut
	stateSignedIn
)

// Store implements interfaces.LedgerStore. Its data is written only by the
// subscription goroutines; callers read copies.
type Store struct {
	docs   interfaces.DocumentStore
	logger *common.Logger

	// switchMu serialises SetUser and Close.
	switchMu sync.Mutex
	subs     []interfaces.Subscription
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu           sync.RWMutex
	state        authState
	user         *models.User
	generation   uint64
	accounts     []models.Account
	transactions []models.Transaction
	holdings     []models.Holding
	received     map[string]bool
	ready        chan struct{}

	listenersMu sync.Mutex
	listeners   map[uint64]chan models.LedgerSnapshot
	nextID      uint64
}

// NewStore creates a ledger store in the loading state.
func NewStore(docs interfaces.DocumentStore, logger *common.Logger) *Store {
	return &Store{
		docs:      docs,
		logger:    logger,
		state:     stateLoading,
		received:  make(map[string]bool),
		ready:     make(chan struct{}),
		listeners: make(map[uint64]chan models.LedgerSnapshot),
	}
}

// SetUser tears down the current subscriptions and, for a non-nil user,
// subscribes to that user's three collections. Snapshots still in flight
// from the old subscriptions are discarded.
func (s *Store) SetUser(ctx context.Context, user *models.User) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.teardown()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.accounts, s.transactions, s.holdings = nil, nil, nil
	s.received = make(map[string]bool)
	s.ready = make(chan struct{})
	if user == nil {
		s.state = stateSignedOut
		s.user = nil
	} else {
		s.state = stateSignedIn
		u := *user
		s.user = &u
	}
	s.mu.Unlock()

	if user == nil {
		s.logger.Info().Msg("Ledger signed out")
		return nil
	}

	// Subscriptions outlive the request that opened them.
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for _, collection := range models.Collections {
		opts := interfaces.QueryOptions{}
		if collection == models.CollectionTransactions {
			opts.OrderBy = interfaces.OrderSortKeyDesc
		}
		sub, err := s.docs.Watch(watchCtx, user.ID, collection, opts)
		if err != nil {
			s.teardown()
			s.mu.Lock()
			s.state = stateSignedOut
			s.user = nil
			s.mu.Unlock()
			return fmt.Errorf("failed to watch %s: %w", collection, err)
		}
		s.subs = append(s.subs, sub)

		s.wg.Add(1)
		go s.consume(gen, collection, sub)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Ledger subscriptions opened")
	return nil
}

// teardown closes every subscription and waits for the consumers to exit.
// Callers hold switchMu.
func (s *Store) teardown() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for _, sub := range s.subs {
		if err := sub.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close subscription")
		}
	}
	s.subs = nil
	s.wg.Wait()
}

func (s *Store) consume(gen uint64, collection string, sub interfaces.Subscription) {
	defer s.wg.Done()
	for docs := range sub.C() {
		s.apply(gen, collection, docs)
	}
	if err := sub.Err(); err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Msg("Ledger subscription ended")
	}
}

func (s *Store) apply(gen uint64, collection string, docs []*models.Document) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Str("collection", collection).Msg("Discarding snapshot from stale subscription")
		return
	}

	switch collection {
	case models.CollectionAccounts:
		s.accounts = decodeAccounts(docs, s.logger)
	case models.CollectionTransactions:
		s.transactions = decodeTransactions(docs, s.logger)
	case models.CollectionHoldings:
		s.holdings = decodeHoldings(docs, s.logger)
	}

	s.received[collection] = true
	if !s.isReadyLocked() && len(s.received) == len(models.Collections) {
		close(s.ready)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.broadcast(snap)
}

func (s *Store) isReadyLocked() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *Store) snapshotLocked() models.LedgerSnapshot {
	snap := models.LedgerSnapshot{
		Accounts:     append([]models.Account{}, s.accounts...),
		Transactions: append([]models.Transaction{}, s.transactions...),
		Holdings:     append([]models.Holding{}, s.holdings...),
		Ready:        s.isReadyLocked(),
	}
	if s.user != nil {
		snap.UserID = s.user.ID
	}
	return snap
}

// checkLocked maps the auth state to the accessor error.
func (s *Store) checkLocked() error {
	switch s.state {
	case stateLoading:
		return models.ErrLoading
	case stateSignedOut:
		return models.ErrNotSignedIn
	}
	return nil
}

// UserID returns the signed-in user's id, or "" when nobody is signed in.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Accounts() ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	return append([]models.Account{}, s.accounts...), nil
}

func (s *Store) Transactions() ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	return append([]models.Transaction{}, s.transactions...), nil
}

func (s *Store) Holdings() ([]models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	return append([]models.Holding{}, s.holdings...), nil
}

func (s *Store) Snapshot() (models.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(); err != nil {
		return models.LedgerSnapshot{}, err
	}
	return s.snapshotLocked(), nil
}

func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateSignedIn && s.isReadyLocked()
}

// WaitReady blocks until the first snapshot of every collection has
// arrived for the current user.
func (s *Store) WaitReady(ctx context.Context) error {
	s.mu.RLock()
	if s.state == stateSignedOut {
		s.mu.RUnlock()
		return models.ErrNotSignedIn
	}
	ready := s.ready
	s.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ledger: %w", ctx.Err())
	}
}

// Subscribe returns a feed of snapshots. The channel holds at most one
// pending snapshot, always the newest. The current snapshot is sent
// immediately when the store is ready.
func (s *Store) Subscribe() (<-chan models.LedgerSnapshot, func()) {
	ch := make(chan models.LedgerSnapshot, 1)

	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = ch
	s.listenersMu.Unlock()

	s.mu.RLock()
	if s.state == stateSignedIn && s.isReadyLocked() {
		offer(ch, s.snapshotLocked())
	}
	s.mu.RUnlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			if _, ok := s.listeners[id]; ok {
				delete(s.listeners, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

func (s *Store) broadcast(snap models.LedgerSnapshot) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, ch := range s.listeners {
		offer(ch, snap)
	}
}

// offer replaces any pending snapshot with snap without blocking.
func offer(ch chan models.LedgerSnapshot, snap models.LedgerSnapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Close signs out and ends every Subscribe feed.
func (s *Store) Close() error {
	if err := s.SetUser(context.Background(), nil); err != nil {
		return err
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for id, ch := range s.listeners {
		delete(s.listeners, id)
		close(ch)
	}
	return nil
}
