// Package storage provides BadgerDB-based persistence for the last
// known-good snapshot and for submissions awaiting reconciliation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// BadgerDB wraps badgerhold for typed storage
type BadgerDB struct {
	store  *badgerhold.Store
	logger *common.Logger
}

// NewBadgerDB opens (creating if needed) a store at path
func NewBadgerDB(logger *common.Logger, path string) (*BadgerDB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store path %s: %w", path, err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil // Disable badger's internal logging

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	logger.Debug().Str("path", path).Msg("BadgerDB opened")

	return &BadgerDB{
		store:  store,
		logger: logger,
	}, nil
}

// Close closes the database
func (db *BadgerDB) Close() error {
	if db.store != nil {
		return db.store.Close()
	}
	return nil
}

// storedSnapshot is the persisted form of an account's last published snapshot.
type storedSnapshot struct {
	Account  string `badgerhold:"key"`
	SavedAt  time.Time
	Snapshot models.AccountSnapshot
}

// snapshotStorage implements SnapshotStore using BadgerDB
type snapshotStorage struct {
	db     *BadgerDB
	logger *common.Logger
}

var _ interfaces.SnapshotStore = (*snapshotStorage)(nil)

func newSnapshotStorage(db *BadgerDB, logger *common.Logger) *snapshotStorage {
	return &snapshotStorage{db: db, logger: logger}
}

func (s *snapshotStorage) SaveSnapshot(_ context.Context, snapshot *models.AccountSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if snapshot.Account == "" {
		return fmt.Errorf("snapshot has no account")
	}

	rec := storedSnapshot{Account: snapshot.Account, SavedAt: time.Now(), Snapshot: *snapshot}
	if err := s.db.store.Upsert(rec.Account, rec); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.logger.Debug().Str("account", rec.Account).Uint64("seq", snapshot.Seq).Msg("Snapshot saved")
	return nil
}

func (s *snapshotStorage) LoadSnapshot(_ context.Context, account string) (*models.AccountSnapshot, error) {
	var rec storedSnapshot
	if err := s.db.store.Get(account, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot for '%s': %w", account, err)
	}
	snapshot := rec.Snapshot
	return &snapshot, nil
}

// pendingStorage implements PendingStore using BadgerDB
type pendingStorage struct {
	db     *BadgerDB
	logger *common.Logger
}

var _ interfaces.PendingStore = (*pendingStorage)(nil)

func newPendingStorage(db *BadgerDB, logger *common.Logger) *pendingStorage {
	return &pendingStorage{db: db, logger: logger}
}

func (s *pendingStorage) SavePending(_ context.Context, pending *models.PendingSubmission) error {
	if pending == nil || pending.ID == "" {
		return fmt.Errorf("pending submission has no id")
	}
	if err := s.db.store.Upsert(pending.ID, *pending); err != nil {
		return fmt.Errorf("failed to save pending submission: %w", err)
	}
	s.logger.Debug().Str("id", pending.ID).Str("kind", string(pending.Kind)).Msg("Pending submission saved")
	return nil
}

// ListPending returns the account's pending submissions, oldest first
func (s *pendingStorage) ListPending(_ context.Context, account string) ([]*models.PendingSubmission, error) {
	var rows []models.PendingSubmission
	if err := s.db.store.Find(&rows, badgerhold.Where("Account").Eq(account)); err != nil {
		return nil, fmt.Errorf("failed to list pending submissions: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SubmittedAt.Before(rows[j].SubmittedAt)
	})

	out := make([]*models.PendingSubmission, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *pendingStorage) DeletePending(_ context.Context, id string) error {
	err := s.db.store.Delete(id, models.PendingSubmission{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete pending submission: %w", err)
	}
	s.logger.Debug().Str("id", id).Msg("Pending submission deleted")
	return nil
}
