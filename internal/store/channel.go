package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
)

// ChannelStore defines the interface for channel persistence.
// Channels are unique per (code, workspace); a workspace channel shadows a
// system channel with the same code.
type ChannelStore interface {
	// Ensure finds or creates a channel by (code, workspace). When the
	// channel already exists its name, parent and metadata are refreshed.
	Ensure(ctx context.Context, channel *domain.Channel) (*domain.Channel, error)

	// GetByID retrieves a channel by its unique ID.
	// Returns ErrChannelNotFound if the channel does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)

	// GetByCode retrieves a channel by code, preferring the workspace-scoped
	// channel over the system one when both exist. A nil workspaceID looks
	// up system channels only.
	// Returns ErrChannelNotFound if neither exists.
	GetByCode(ctx context.Context, code string, workspaceID *uuid.UUID) (*domain.Channel, error)

	// ListForWorkspace retrieves all channels applicable to a workspace:
	// its own channels plus system channels whose codes it does not shadow.
	// A nil workspaceID lists system channels only.
	ListForWorkspace(ctx context.Context, workspaceID *uuid.UUID) ([]*domain.Channel, error)

	// ListWorkspaceIDs returns the distinct workspace IDs that own at least
	// one channel. Used by a full prime pass to enumerate scopes.
	ListWorkspaceIDs(ctx context.Context) ([]uuid.UUID, error)

	// Delete removes a channel. Children of the deleted channel have their
	// parent pointer nulled by the schema rather than being deleted.
	// Returns ErrChannelNotFound if the channel does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new ChannelStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ChannelStore
}
