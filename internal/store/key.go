package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/strata/internal/domain"
)

// KeyStore defines the interface for configuration key persistence.
// Keys form the registry of every slot the resolver can answer for.
type KeyStore interface {
	// Define upserts a key by its unique code. Defining an existing code
	// with identical type is idempotent and returns the existing key with
	// updated metadata. Returns ErrKeyTypeMismatch if the code is already
	// defined with an incompatible value type.
	Define(ctx context.Context, key *domain.Key) (*domain.Key, error)

	// GetByCode retrieves a key by its unique code.
	// Returns ErrKeyNotFound if the key is not defined.
	GetByCode(ctx context.Context, code string) (*domain.Key, error)

	// List retrieves all defined keys ordered by code. If category is
	// non-empty only keys in that category are returned.
	List(ctx context.Context, category string) ([]*domain.Key, error)

	// Delete removes a key definition by code. Dependent values are removed
	// by the schema's cascade rules.
	// Returns ErrKeyNotFound if the key is not defined.
	Delete(ctx context.Context, code string) error

	// WithTx returns a new KeyStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) KeyStore
}
