package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
)

// ValueStore defines the interface for value assignment persistence.
// Assignments are unique per (profile, key, channel); a nil channel means
// "all channels" and occupies its own slot in that uniqueness.
type ValueStore interface {
	// Upsert creates or replaces the assignment at the value's
	// (profile, key, channel) address. Lock enforcement against ancestor
	// profiles happens in the service layer before this is called.
	Upsert(ctx context.Context, value *domain.Value) error

	// Get retrieves the assignment at (profile, key, channel).
	// Returns ErrValueNotFound if no assignment exists at that address.
	Get(ctx context.Context, profileID, keyID uuid.UUID, channelID *uuid.UUID) (*domain.Value, error)

	// ListForProfile retrieves every assignment owned by a profile.
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.Value, error)

	// ListForProfiles retrieves every assignment owned by any of the given
	// profiles in one query. Used by scope-wide resolution.
	ListForProfiles(ctx context.Context, profileIDs []uuid.UUID) ([]*domain.Value, error)

	// Delete removes the assignment at (profile, key, channel).
	// Returns ErrValueNotFound if no assignment exists at that address.
	Delete(ctx context.Context, profileID, keyID uuid.UUID, channelID *uuid.UUID) error

	// WithTx returns a new ValueStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ValueStore
}
