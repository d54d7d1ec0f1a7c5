package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Badger(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "ledger")

	mgr, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	id, err := mgr.DocumentStore().Add(ctx, &models.Document{UserID: "u", Collection: models.CollectionAccounts, Data: "{}"})
	require.NoError(t, err)

	docs, err := mgr.DocumentStore().List(ctx, "u", models.CollectionAccounts, interfaces.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
}

func TestNewManager_UnknownBackend(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "firestore"

	_, err := NewManager(common.NewSilentLogger(), cfg)
	assert.Error(t, err)
}
