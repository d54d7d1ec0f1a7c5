// Package surrealdb provides the SurrealDB storage backend. Collection
// changes are observed through LIVE queries, so writes from any process
// sharing the database reach every subscriber.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	documentStore *DocumentStore
	userStore     *UserStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	if !strings.HasPrefix(config.Storage.Address, "ws") {
		logger.Warn().Str("address", config.Storage.Address).Msg("LIVE queries need a websocket address")
	}

	// Connect to SurrealDB
	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	// Sign in
	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	// Select namespace and database
	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := defineTables(ctx, db); err != nil {
		db.Close(ctx)
		return nil, err
	}

	m := &Manager{
		db:            db,
		logger:        logger,
		documentStore: NewDocumentStore(db, logger),
		userStore:     NewUserStore(db, logger),
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// defineTables ensures the tables exist (SurrealDB v3 errors on querying
// non-existent tables) and indexes the per-user lookups.
func defineTables(ctx context.Context, db *surrealdb.DB) error {
	statements := []string{
		fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", userTable),
		fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", documentTable),
		fmt.Sprintf("DEFINE INDEX IF NOT EXISTS user_email ON %s FIELDS email UNIQUE", userTable),
		fmt.Sprintf("DEFINE INDEX IF NOT EXISTS doc_owner ON %s FIELDS user_id, collection", documentTable),
	}
	for _, sql := range statements {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to run %q: %w", sql, err)
		}
	}
	return nil
}

func (m *Manager) DocumentStore() interfaces.DocumentStore {
	return m.documentStore
}

func (m *Manager) UserStore() interfaces.UserStore {
	return m.userStore
}

func (m *Manager) Close() error {
	m.documentStore.Close()
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
