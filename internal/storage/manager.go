package storage

import (
	"fmt"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// Manager implements interfaces.StorageManager over a single BadgerDB.
type Manager struct {
	db       *BadgerDB
	snapshot *snapshotStorage
	pending  *pendingStorage
	logger   *common.Logger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager opens the store at config.Storage.Path.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	if config.Storage.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := NewBadgerDB(logger, config.Storage.Path)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Storage.Path).Msg("Storage manager initialized")

	return &Manager{
		db:       db,
		snapshot: newSnapshotStorage(db, logger),
		pending:  newPendingStorage(db, logger),
		logger:   logger,
	}, nil
}

func (m *Manager) SnapshotStore() interfaces.SnapshotStore {
	return m.snapshot
}

func (m *Manager) PendingStore() interfaces.PendingStore {
	return m.pending
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
