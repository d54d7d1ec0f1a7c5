// Package storage selects and opens the configured storage backend.
package storage

import (
	"fmt"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/storage/badger"
	"github.com/bobmcallan/fintrack/internal/storage/surrealdb"
)

// NewManager creates a StorageManager for config.Storage.Backend.
// Supported backends: "badger" (default, embedded) and "surrealdb".
func NewManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = common.BackendBadger
	}

	switch backend {
	case common.BackendBadger:
		store, err := badger.NewStore(logger, config.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger storage: %w", err)
		}
		return store, nil

	case common.BackendSurrealDB:
		mgr, err := surrealdb.NewManager(logger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to open surrealdb storage: %w", err)
		}
		return mgr, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, surrealdb)", backend)
	}
}
