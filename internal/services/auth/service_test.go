package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	tcommon "github.com/bobmcallan/fintrack/tests/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, seed bool) (*Service, interfaces.StorageManager) {
	t.Helper()
	storage := tcommon.NewBadgerStorage(t)
	cfg := &common.AuthConfig{JWTSecret: "test-secret", TokenExpiry: "1h", SeedDemoData: seed}
	return NewService(storage.UserStore(), storage.DocumentStore(), cfg, common.NewSilentLogger()), storage
}

func TestSignIn_RegistersUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	user, token, err := svc.SignIn(ctx, "  Alice@Example.com ", "secret-pw", "")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.DisplayName)
	assert.NotEqual(t, "secret-pw", user.PasswordHash)
	assert.NotEmpty(t, token)

	got, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestSignIn_ExistingUser(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	first, _, err := svc.SignIn(ctx, "bob@example.com", "correct-horse", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", first.DisplayName)

	second, _, err := svc.SignIn(ctx, "BOB@example.com", "correct-horse", "ignored")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Bob", second.DisplayName)

	_, _, err = svc.SignIn(ctx, "bob@example.com", "wrong-horse", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestSignIn_Validation(t *testing.T) {
	svc, _ := newTestService(t, false)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "secret-pw"},
		{"not an email", "alice", "secret-pw"},
		{"empty password", "alice@example.com", ""},
		{"short password on register", "alice@example.com", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SignIn(context.Background(), tt.email, tt.password, "")
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestSignIn_LongPasswordTruncated(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()
	long := strings.Repeat("p", 80)

	_, _, err := svc.SignIn(ctx, "long@example.com", long, "")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "long@example.com", strings.Repeat("p", 72)+"different", "")
	assert.NoError(t, err, "bytes past 72 are ignored")
}

func TestSignIn_SeedsDemoLedger(t *testing.T) {
	svc, storage := newTestService(t, true)
	ctx := context.Background()

	user, _, err := svc.SignIn(ctx, "demo@example.com", "secret-pw", "")
	require.NoError(t, err)

	docs := storage.DocumentStore()
	accounts, err := docs.List(ctx, user.ID, models.CollectionAccounts, interfaces.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
	holdings, err := docs.List(ctx, user.ID, models.CollectionHoldings, interfaces.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, holdings, 3)

	ledger := tcommon.NewDirectLedger(docs, user.ID)
	txs, err := ledger.Transactions()
	require.NoError(t, err)
	require.Len(t, txs, 4)

	ids := map[string]bool{}
	for _, d := range accounts {
		ids[d.ID] = true
	}
	for _, tx := range txs {
		assert.True(t, ids[tx.AccountID], "transaction %q points at a seeded account", tx.Note)
	}

	// Signing in again does not reseed.
	_, _, err = svc.SignIn(ctx, "demo@example.com", "secret-pw", "")
	require.NoError(t, err)
	accounts, err = docs.List(ctx, user.ID, models.CollectionAccounts, interfaces.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}

func TestSignIn_NoSeedWhenDisabled(t *testing.T) {
	svc, storage := newTestService(t, false)
	ctx := context.Background()

	user, _, err := svc.SignIn(ctx, "plain@example.com", "secret-pw", "")
	require.NoError(t, err)

	accounts, err := storage.DocumentStore().List(ctx, user.ID, models.CollectionAccounts, interfaces.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, storage := newTestService(t, false)
	ctx := context.Background()

	user, token, err := svc.SignIn(ctx, "carol@example.com", "secret-pw", "")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService(storage.UserStore(), nil, &common.AuthConfig{JWTSecret: "other", TokenExpiry: "1h"}, common.NewSilentLogger())
		_, err := other.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewService(storage.UserStore(), nil, svc.config, common.NewSilentLogger())
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, err := past.signToken(user)
		require.NoError(t, err)

		_, err = svc.ValidateToken(ctx, old)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		ghost, err := svc.signToken(&models.User{ID: "ghost", Email: "ghost@example.com"})
		require.NoError(t, err)
		_, err = svc.ValidateToken(ctx, ghost)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})
}

func TestRevoke_RejectsOnlyThatToken(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	_, first, err := svc.SignIn(ctx, "dora@example.com", "secret-pw", "")
	require.NoError(t, err)
	_, second, err := svc.SignIn(ctx, "dora@example.com", "secret-pw", "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, first))

	_, err = svc.ValidateToken(ctx, first)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "revoked")

	user, err := svc.ValidateToken(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "dora@example.com", user.Email)

	assert.ErrorIs(t, svc.Revoke(ctx, "not-a-jwt"), models.ErrInvalidCredentials)
}

func TestRevoke_PrunesExpiredEntries(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	_, token, err := svc.SignIn(ctx, "eli@example.com", "secret-pw", "")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, token))
	assert.Len(t, svc.revoked, 1)

	// Two hours on, the first token has expired and a fresh one is revoked.
	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }
	_, fresh, err := svc.SignIn(ctx, "eli@example.com", "secret-pw", "")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, fresh))
	assert.Len(t, svc.revoked, 1)
}
