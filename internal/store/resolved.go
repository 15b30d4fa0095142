package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
)

// ResolvedStore defines the interface for the materialized cache of
// resolved configuration. Rows are keyed by the
// (workspace, channel, key code) triple with uuid.Nil sentinels and are
// only ever written by a prime pass; the read path is a single indexed
// point lookup.
type ResolvedStore interface {
	// UpsertBatch creates or replaces the given entries. Upserts are keyed
	// by the natural triple so concurrent primes for the same scope
	// converge instead of duplicating rows.
	// IMPORTANT: callers must run this within a transaction covering one
	// whole workspace so readers never observe a half-primed scope.
	UpsertBatch(ctx context.Context, entries []*domain.ResolvedEntry) error

	// Lookup retrieves the entry at (workspace, channel, key code).
	// Returns ErrNotFound if no entry exists at that address.
	Lookup(ctx context.Context, workspaceID, channelID uuid.UUID, keyCode string) (*domain.ResolvedEntry, error)

	// ListScope retrieves all entries for a workspace (uuid.Nil for the
	// system scope), ordered by key code.
	ListScope(ctx context.Context, workspaceID uuid.UUID) ([]*domain.ResolvedEntry, error)

	// ClearScope removes the entries for one (workspace, channel) address.
	ClearScope(ctx context.Context, workspaceID, channelID uuid.UUID) error

	// ClearWorkspace removes every entry belonging to a workspace.
	ClearWorkspace(ctx context.Context, workspaceID uuid.UUID) error

	// ClearKey removes every entry for a key code across all scopes.
	// Required when a key is deleted entirely; a pure upsert-on-prime
	// would never delete its leftover rows.
	ClearKey(ctx context.Context, keyCode string) error

	// LastComputedAt returns the most recent computed_at for a workspace,
	// or the zero time when the scope has never been primed.
	LastComputedAt(ctx context.Context, workspaceID uuid.UUID) (time.Time, error)

	// WithTx returns a new ResolvedStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ResolvedStore
}
