// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"

	"github.com/bobmcallan/folio/internal/models"
)

// SnapshotStore keeps the last known-good snapshot per account
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *models.AccountSnapshot) error
	// LoadSnapshot returns (nil, nil) when nothing has been stored for the account
	LoadSnapshot(ctx context.Context, account string) (*models.AccountSnapshot, error)
}

// PendingStore keeps submissions whose outcome is unknown
type PendingStore interface {
	SavePending(ctx context.Context, pending *models.PendingSubmission) error
	ListPending(ctx context.Context, account string) ([]*models.PendingSubmission, error)
	DeletePending(ctx context.Context, id string) error
}

// StorageManager owns the local store lifecycle
type StorageManager interface {
	SnapshotStore() SnapshotStore
	PendingStore() PendingStore
	Close() error
}
