package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/platform/logger"
	"github.com/phrazzld/strata/internal/store"
)

// PostgresValueStore implements the store.ValueStore interface
// using a PostgreSQL database as the storage backend.
//
// The (profile, key, channel) uniqueness rides on the channel_scope
// generated column, which collapses a NULL channel to the zero UUID so the
// composite unique index never contains a NULL.
type PostgresValueStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresValueStore creates a new PostgreSQL implementation of the ValueStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresValueStore(db store.DBTX, logger *slog.Logger) *PostgresValueStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresValueStore{
		db:     db,
		logger: logger.With(slog.String("component", "value_store")),
	}
}

// Ensure PostgresValueStore implements store.ValueStore interface
var _ store.ValueStore = (*PostgresValueStore)(nil)

const valueColumns = `id, profile_id, key_id, channel_id, value, locked, inherited_from, created_at, updated_at`

// Upsert implements store.ValueStore.Upsert
func (s *PostgresValueStore) Upsert(ctx context.Context, value *domain.Value) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := value.Validate(); err != nil {
		log.Warn("value validation failed during upsert",
			slog.String("error", err.Error()),
			slog.String("value_id", value.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO config_values (id, profile_id, key_id, channel_id, value, locked, inherited_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (profile_id, key_id, channel_scope) DO UPDATE
		SET value = EXCLUDED.value,
		    locked = EXCLUDED.locked,
		    inherited_from = EXCLUDED.inherited_from,
		    updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		query,
		value.ID,
		value.ProfileID,
		value.KeyID,
		value.ChannelID,
		[]byte(value.Raw),
		value.Locked,
		value.InheritedFrom,
		now,
		now,
	)

	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("value references a missing profile, key or channel",
				slog.String("error", err.Error()),
				slog.String("profile_id", value.ProfileID.String()),
				slog.String("key_id", value.KeyID.String()))
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		log.Error("failed to upsert value",
			slog.String("error", err.Error()),
			slog.String("profile_id", value.ProfileID.String()),
			slog.String("key_id", value.KeyID.String()))
		return MapError(err)
	}

	log.Info("value upserted",
		slog.String("profile_id", value.ProfileID.String()),
		slog.String("key_id", value.KeyID.String()),
		slog.Bool("locked", value.Locked))
	return nil
}

// Get implements store.ValueStore.Get
// Returns store.ErrValueNotFound if no assignment exists at the address.
func (s *PostgresValueStore) Get(
	ctx context.Context,
	profileID, keyID uuid.UUID,
	channelID *uuid.UUID,
) (*domain.Value, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + valueColumns + `
		FROM config_values
		WHERE profile_id = $1 AND key_id = $2 AND channel_scope = $3
	`

	value, err := scanValue(s.db.QueryRowContext(ctx, query, profileID, keyID, channelScope(channelID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrValueNotFound
		}
		log.Error("failed to get value",
			slog.String("error", err.Error()),
			slog.String("profile_id", profileID.String()),
			slog.String("key_id", keyID.String()))
		return nil, MapError(err)
	}

	return value, nil
}

// ListForProfile implements store.ValueStore.ListForProfile
func (s *PostgresValueStore) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.Value, error) {
	return s.ListForProfiles(ctx, []uuid.UUID{profileID})
}

// ListForProfiles implements store.ValueStore.ListForProfiles
// One round trip for the whole profile chain; scope-wide resolution and
// priming feed on this.
func (s *PostgresValueStore) ListForProfiles(ctx context.Context, profileIDs []uuid.UUID) ([]*domain.Value, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(profileIDs) == 0 {
		return []*domain.Value{}, nil
	}

	query := `
		SELECT ` + valueColumns + `
		FROM config_values
		WHERE profile_id = ANY($1::uuid[])
		ORDER BY profile_id, key_id
	`

	// database/sql has no native uuid slice support, so the IDs travel as a
	// text array and are cast server-side.
	ids := make([]string, len(profileIDs))
	for i, id := range profileIDs {
		ids[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		log.Error("failed to list values for profiles",
			slog.String("error", err.Error()),
			slog.Int("profile_count", len(profileIDs)))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var values []*domain.Value
	for rows.Next() {
		value, err := scanValue(rows)
		if err != nil {
			log.Error("failed to scan value row", slog.String("error", err.Error()))
			return nil, err
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning value rows", slog.String("error", err.Error()))
		return nil, err
	}

	if values == nil {
		values = []*domain.Value{}
	}

	return values, nil
}

// Delete implements store.ValueStore.Delete
// Returns store.ErrValueNotFound if no assignment exists at the address.
func (s *PostgresValueStore) Delete(
	ctx context.Context,
	profileID, keyID uuid.UUID,
	channelID *uuid.UUID,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM config_values
		WHERE profile_id = $1 AND key_id = $2 AND channel_scope = $3
	`

	result, err := s.db.ExecContext(ctx, query, profileID, keyID, channelScope(channelID))
	if err != nil {
		log.Error("failed to delete value",
			slog.String("error", err.Error()),
			slog.String("profile_id", profileID.String()),
			slog.String("key_id", keyID.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected", slog.String("error", err.Error()))
		return err
	}

	if rowsAffected == 0 {
		return store.ErrValueNotFound
	}

	log.Info("value deleted",
		slog.String("profile_id", profileID.String()),
		slog.String("key_id", keyID.String()))
	return nil
}

// WithTx implements store.ValueStore.WithTx
func (s *PostgresValueStore) WithTx(tx *sql.Tx) store.ValueStore {
	return &PostgresValueStore{
		db:     tx,
		logger: s.logger,
	}
}

// channelScope collapses a nil channel to the zero UUID, matching the
// channel_scope generated column.
func channelScope(channelID *uuid.UUID) uuid.UUID {
	if channelID == nil {
		return uuid.Nil
	}
	return *channelID
}

// scanValue reads one config_values row in valueColumns order.
func scanValue(row rowScanner) (*domain.Value, error) {
	var value domain.Value
	var raw []byte

	err := row.Scan(
		&value.ID,
		&value.ProfileID,
		&value.KeyID,
		&value.ChannelID,
		&raw,
		&value.Locked,
		&value.InheritedFrom,
		&value.CreatedAt,
		&value.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	value.Raw = raw
	return &value, nil
}
