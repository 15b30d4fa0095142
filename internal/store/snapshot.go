package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
)

// SnapshotStore defines the interface for version snapshot persistence.
// Snapshots are immutable once created; there is deliberately no update
// operation.
type SnapshotStore interface {
	// Create saves a new snapshot.
	Create(ctx context.Context, snapshot *domain.VersionSnapshot) error

	// GetByID retrieves a snapshot by its unique ID.
	// Returns ErrSnapshotNotFound if the snapshot does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.VersionSnapshot, error)

	// ListForProfile retrieves a profile's snapshots, newest first.
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.VersionSnapshot, error)

	// DeleteOlderThan prunes snapshots for a profile beyond the given keep
	// count, oldest first. Returns the number of snapshots removed.
	DeleteOlderThan(ctx context.Context, profileID uuid.UUID, keep int) (int, error)

	// WithTx returns a new SnapshotStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) SnapshotStore
}
