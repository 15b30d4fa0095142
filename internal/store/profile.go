package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
)

// ProfileStore defines the interface for profile persistence.
type ProfileStore interface {
	// Create saves a new profile. Returns ErrProfileExists if a profile
	// already occupies the same (scope type, scope ID, priority) slot.
	Create(ctx context.Context, profile *domain.Profile) error

	// GetByID retrieves a profile by its unique ID.
	// Returns ErrProfileNotFound if the profile does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)

	// ListForScope retrieves the profiles at a (scope type, scope ID),
	// ordered by priority descending (most specific first). A nil scopeID
	// matches the global slot of that scope type.
	ListForScope(ctx context.Context, scopeType domain.ScopeType, scopeID *uuid.UUID) ([]*domain.Profile, error)

	// ListWorkspaceIDs returns the distinct workspace scope IDs that own at
	// least one workspace profile. Used by a full prime pass.
	ListWorkspaceIDs(ctx context.Context) ([]uuid.UUID, error)

	// Delete removes a profile and, via the schema's cascade rules, all of
	// its values. Returns ErrProfileNotFound if the profile does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new ProfileStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ProfileStore
}
