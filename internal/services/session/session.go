// Package session owns the per-user service graph: a ledger store fed by
// live subscriptions plus the mutation and price sync services bound to it.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/services/ledger"
	"github.com/bobmcallan/fintrack/internal/services/mutation"
	"github.com/bobmcallan/fintrack/internal/services/pricesync"
)

// Session is one signed-in user's view of their ledger.
type Session struct {
	User      *models.User
	Ledger    interfaces.LedgerStore
	Mutations interfaces.MutationService
	Prices    interfaces.PriceSyncService
	OpenedAt  time.Time

	lastSeen atomic.Int64 // unix nanos
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Close tears down the session's subscriptions.
func (s *Session) Close() error {
	return s.Ledger.Close()
}

// Manager keys sessions by user id.
type Manager struct {
	docs   interfaces.DocumentStore
	auth   interfaces.AuthService
	oracle interfaces.PriceOracle
	config *common.Config
	logger *common.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(docs interfaces.DocumentStore, auth interfaces.AuthService, oracle interfaces.PriceOracle, config *common.Config, logger *common.Logger) *Manager {
	return &Manager{
		docs:     docs,
		auth:     auth,
		oracle:   oracle,
		config:   config,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open returns the user's session, creating it if needed. A new session
// waits up to the configured ready timeout for its first snapshots; a
// timeout is logged and the session is returned still loading.
func (m *Manager) Open(ctx context.Context, user *models.User) (*Session, error) {
	if user == nil || user.ID == "" {
		return nil, models.ErrNotSignedIn
	}

	m.mu.Lock()
	if s, ok := m.sessions[user.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}

	store := ledger.NewStore(m.docs, m.logger)
	if err := store.SetUser(ctx, user); err != nil {
		m.mu.Unlock()
		store.Close()
		return nil, fmt.Errorf("failed to open ledger for user '%s': %w", user.ID, err)
	}
	s := &Session{
		User:      user,
		Ledger:    store,
		Mutations: mutation.NewService(m.docs, store, m.logger, mutation.WithCompensation(m.config.Ledger.Compensate())),
		Prices:    pricesync.NewService(m.docs, store, m.oracle, m.logger),
		OpenedAt:  time.Now(),
	}
	s.Touch()
	m.sessions[user.ID] = s
	m.mu.Unlock()

	m.logger.Info().Str("user_id", user.ID).Msg("Session opened")

	waitCtx, cancel := context.WithTimeout(ctx, m.config.Ledger.GetReadyTimeout())
	defer cancel()
	if err := store.WaitReady(waitCtx); err != nil {
		m.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Ledger not ready yet")
	}
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// FromToken validates a bearer token and returns its user's session,
// opening one when the user has none.
func (m *Manager) FromToken(ctx context.Context, token string) (*Session, error) {
	user, err := m.auth.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s, ok := m.Get(user.ID)
	if !ok {
		if s, err = m.Open(ctx, user); err != nil {
			return nil, err
		}
	}
	s.Touch()
	return s, nil
}

// SignIn authenticates and opens the user's session.
func (m *Manager) SignIn(ctx context.Context, email, password, displayName string) (*Session, string, error) {
	user, token, err := m.auth.SignIn(ctx, email, password, displayName)
	if err != nil {
		return nil, "", err
	}
	s, err := m.Open(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return s, token, nil
}

// SignOut revokes token and closes its user's session, so neither the
// session nor the token can be used again.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	user, err := m.auth.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	if err := m.auth.Revoke(ctx, token); err != nil {
		return err
	}
	return m.Evict(user.ID)
}

// Evict closes the user's session without touching their tokens. The next
// request with a valid token reopens it. Unknown users are a no-op.
func (m *Manager) Evict(userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.logger.Info().Str("user_id", userID).Msg("Session closed")
	return s.Close()
}

// Sessions returns the open sessions ordered by user id.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out
}

// Reap closes sessions idle for longer than maxIdle and returns how many
// were closed. Sessions with a sync in flight are kept.
func (m *Manager) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) && !s.Prices.Busy() {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		if err := s.Close(); err != nil {
			m.logger.Warn().Err(err).Str("user_id", s.User.ID).Msg("Failed to close idle session")
		}
		m.logger.Info().Str("user_id", s.User.ID).Msg("Idle session closed")
	}
	return len(idle)
}

// Close closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
