package session

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/services/auth"
	tcommon "github.com/bobmcallan/fintrack/tests/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopOracle struct{}

func (nopOracle) FetchQuotes(context.Context, []string) ([]models.PriceQuote, error) {
	return nil, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	storage := tcommon.NewBadgerStorage(t)
	config := common.NewDefaultConfig()
	config.Auth.JWTSecret = "test-secret"
	config.Auth.SeedDemoData = true
	logger := common.NewSilentLogger()

	authSvc := auth.NewService(storage.UserStore(), storage.DocumentStore(), &config.Auth, logger)
	m := NewManager(storage.DocumentStore(), authSvc, nopOracle{}, config, logger)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_SignInOpensReadySession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s, token, err := m.SignIn(ctx, "alice@example.com", "secret-pw", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, s.Ledger.Ready())

	snap, err := s.Ledger.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Accounts, 3)
	assert.Len(t, snap.Holdings, 3)
	assert.Len(t, snap.Transactions, 4)

	again, ok := m.Get(s.User.ID)
	require.True(t, ok)
	assert.Same(t, s, again)
}

func TestManager_FromTokenOpensLazily(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s, token, err := m.SignIn(ctx, "bob@example.com", "secret-pw", "")
	require.NoError(t, err)
	userID := s.User.ID
	require.NoError(t, m.Evict(userID))

	_, ok := m.Get(userID)
	assert.False(t, ok)

	reopened, err := m.FromToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, reopened.User.ID)
	assert.NotSame(t, s, reopened)

	same, err := m.FromToken(ctx, token)
	require.NoError(t, err)
	assert.Same(t, reopened, same)
}

func TestManager_SignOutTearsDown(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s, token, err := m.SignIn(ctx, "carol@example.com", "secret-pw", "")
	require.NoError(t, err)

	require.NoError(t, m.SignOut(ctx, token))
	_, err = s.Ledger.Accounts()
	assert.ErrorIs(t, err, models.ErrNotSignedIn)
	assert.Empty(t, m.Sessions())

	// The signed-out token no longer reopens a session.
	_, err = m.FromToken(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Empty(t, m.Sessions())

	// Signing in again issues a working token.
	_, fresh, err := m.SignIn(ctx, "carol@example.com", "secret-pw", "")
	require.NoError(t, err)
	_, err = m.FromToken(ctx, fresh)
	assert.NoError(t, err)

	assert.ErrorIs(t, m.SignOut(ctx, "garbage"), models.ErrInvalidCredentials)
	assert.NoError(t, m.Evict("nobody"))
}

func TestManager_InvalidToken(t *testing.T) {
	m := newTestManager(t)

	_, err := m.FromToken(context.Background(), "bogus")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Empty(t, m.Sessions())
}

func TestManager_Sessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.SignIn(ctx, "x@example.com", "secret-pw", "")
	require.NoError(t, err)
	_, _, err = m.SignIn(ctx, "y@example.com", "secret-pw", "")
	require.NoError(t, err)

	assert.Len(t, m.Sessions(), 2)
	require.NoError(t, m.Close())
	assert.Empty(t, m.Sessions())
}

func TestManager_OpenRejectsAnonymous(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Open(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrNotSignedIn)
}

func TestManager_ReapClosesIdle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s, token, err := m.SignIn(ctx, "idle@example.com", "secret-pw", "")
	require.NoError(t, err)

	assert.Equal(t, 0, m.Reap(time.Hour))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, m.Reap(10*time.Millisecond))

	_, ok := m.Get(s.User.ID)
	assert.False(t, ok)
	_, err = s.Ledger.Accounts()
	assert.ErrorIs(t, err, models.ErrNotSignedIn)

	// the token still works and reopens a session
	reopened, err := m.FromToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, reopened.LastSeen().After(s.LastSeen()))
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	s := &Session{User: &models.User{ID: "u"}}
	assert.Same(t, s, FromContext(WithSession(context.Background(), s)))
}
