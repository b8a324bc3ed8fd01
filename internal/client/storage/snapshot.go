package storage

import (
	"context"

	"github.com/iudanet/meetsync/internal/models"
)

//go:generate moq -out snapshotstorage_mock.go . SnapshotStorage

// SnapshotStorage defines persistence of the local object store
type SnapshotStorage interface {
	// LoadSnapshot returns all persisted elements and the change id they correspond to
	// Returns an empty snapshot if nothing was persisted yet
	LoadSnapshot(ctx context.Context) (*Snapshot, error)

	// SaveSnapshot replaces the persisted snapshot completely
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// ApplyDelta upserts and deletes elements and stores the new change id in one transaction
	ApplyDelta(ctx context.Context, delta *Delta) error

	// ClearSnapshot removes all persisted elements and resets the change id to 0
	ClearSnapshot(ctx context.Context) error
}

// Snapshot is the persisted state of the object store
type Snapshot struct {
	Elements    []models.Element
	MaxChangeID int64
}

// Delta is one committed batch of store mutations
type Delta struct {
	Changed     []models.Element
	Deleted     []models.ElementID
	MaxChangeID int64
}

// IsEmpty reports whether the delta has no element changes
func (d *Delta) IsEmpty() bool {
	return len(d.Changed) == 0 && len(d.Deleted) == 0
}
