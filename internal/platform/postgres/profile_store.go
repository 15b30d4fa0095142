package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/platform/logger"
	"github.com/phrazzld/strata/internal/store"
)

// PostgresProfileStore implements the store.ProfileStore interface
// using a PostgreSQL database as the storage backend.
type PostgresProfileStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresProfileStore creates a new PostgreSQL implementation of the ProfileStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresProfileStore(db store.DBTX, logger *slog.Logger) *PostgresProfileStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresProfileStore{
		db:     db,
		logger: logger.With(slog.String("component", "profile_store")),
	}
}

// Ensure PostgresProfileStore implements store.ProfileStore interface
var _ store.ProfileStore = (*PostgresProfileStore)(nil)

const profileColumns = `id, name, scope_type, scope_id, parent_profile_id, priority, created_at, updated_at`

// Create implements store.ProfileStore.Create
// Returns store.ErrProfileExists when the (scope type, scope ID, priority)
// slot is already occupied.
func (s *PostgresProfileStore) Create(ctx context.Context, profile *domain.Profile) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := profile.Validate(); err != nil {
		log.Warn("profile validation failed during create",
			slog.String("error", err.Error()),
			slog.String("name", profile.Name))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO profiles (id, name, scope_type, scope_id, parent_profile_id, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.Name,
		profile.ScopeType,
		profile.ScopeID,
		profile.ParentProfileID,
		profile.Priority,
		profile.CreatedAt,
		profile.UpdatedAt,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("profile priority slot already occupied",
				slog.String("scope_type", string(profile.ScopeType)),
				slog.Int("priority", profile.Priority))
			return fmt.Errorf("%w: %v", store.ErrProfileExists, err)
		}

		log.Error("failed to create profile",
			slog.String("error", err.Error()),
			slog.String("profile_id", profile.ID.String()))
		return MapError(err)
	}

	log.Info("profile created",
		slog.String("profile_id", profile.ID.String()),
		slog.String("scope_type", string(profile.ScopeType)),
		slog.Int("priority", profile.Priority))
	return nil
}

// GetByID implements store.ProfileStore.GetByID
// Returns store.ErrProfileNotFound if the profile does not exist.
func (s *PostgresProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("profile not found", slog.String("profile_id", id.String()))
			return nil, store.ErrProfileNotFound
		}
		log.Error("failed to get profile by ID",
			slog.String("error", err.Error()),
			slog.String("profile_id", id.String()))
		return nil, MapError(err)
	}

	return profile, nil
}

// ListForScope implements store.ProfileStore.ListForScope
// Profiles come back ordered by priority descending, most specific first.
func (s *PostgresProfileStore) ListForScope(
	ctx context.Context,
	scopeType domain.ScopeType,
	scopeID *uuid.UUID,
) ([]*domain.Profile, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var rows *sql.Rows
	var err error
	if scopeID != nil {
		query := `
			SELECT ` + profileColumns + `
			FROM profiles
			WHERE scope_type = $1 AND scope_id = $2
			ORDER BY priority DESC
		`
		rows, err = s.db.QueryContext(ctx, query, scopeType, *scopeID)
	} else {
		query := `
			SELECT ` + profileColumns + `
			FROM profiles
			WHERE scope_type = $1 AND scope_id IS NULL
			ORDER BY priority DESC
		`
		rows, err = s.db.QueryContext(ctx, query, scopeType)
	}

	if err != nil {
		log.Error("failed to list profiles for scope",
			slog.String("error", err.Error()),
			slog.String("scope_type", string(scopeType)))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var profiles []*domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			log.Error("failed to scan profile row", slog.String("error", err.Error()))
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning profile rows", slog.String("error", err.Error()))
		return nil, err
	}

	if profiles == nil {
		profiles = []*domain.Profile{}
	}

	return profiles, nil
}

// ListWorkspaceIDs implements store.ProfileStore.ListWorkspaceIDs
func (s *PostgresProfileStore) ListWorkspaceIDs(ctx context.Context) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT DISTINCT scope_id FROM profiles
		WHERE scope_type = $1 AND scope_id IS NOT NULL
		ORDER BY scope_id
	`

	rows, err := s.db.QueryContext(ctx, query, domain.ScopeWorkspace)
	if err != nil {
		log.Error("failed to list profile workspace ids", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			log.Error("failed to scan workspace id", slog.String("error", err.Error()))
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// Delete implements store.ProfileStore.Delete
// Values owned by the profile are removed by the ON DELETE CASCADE rule.
// Returns store.ErrProfileNotFound if the profile does not exist.
func (s *PostgresProfileStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete profile",
			slog.String("error", err.Error()),
			slog.String("profile_id", id.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected", slog.String("error", err.Error()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("profile not found for delete", slog.String("profile_id", id.String()))
		return store.ErrProfileNotFound
	}

	log.Info("profile deleted", slog.String("profile_id", id.String()))
	return nil
}

// WithTx implements store.ProfileStore.WithTx
func (s *PostgresProfileStore) WithTx(tx *sql.Tx) store.ProfileStore {
	return &PostgresProfileStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanProfile reads one profiles row in profileColumns order.
func scanProfile(row rowScanner) (*domain.Profile, error) {
	var profile domain.Profile
	var scopeType string

	err := row.Scan(
		&profile.ID,
		&profile.Name,
		&scopeType,
		&profile.ScopeID,
		&profile.ParentProfileID,
		&profile.Priority,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	profile.ScopeType = domain.ScopeType(scopeType)
	return &profile, nil
}
