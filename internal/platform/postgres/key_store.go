package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/platform/logger"
	"github.com/phrazzld/strata/internal/store"
)

// PostgresKeyStore implements the store.KeyStore interface
// using a PostgreSQL database as the storage backend.
type PostgresKeyStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresKeyStore creates a new PostgreSQL implementation of the KeyStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresKeyStore(db store.DBTX, logger *slog.Logger) *PostgresKeyStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresKeyStore{
		db:     db,
		logger: logger.With(slog.String("component", "key_store")),
	}
}

// Ensure PostgresKeyStore implements store.KeyStore interface
var _ store.KeyStore = (*PostgresKeyStore)(nil)

const keyColumns = `id, code, type, category, description, default_value, is_sensitive, parent_key_id, created_at, updated_at`

// Define implements store.KeyStore.Define
// It upserts a key by code. The conditional DO UPDATE only fires when the
// stored type matches, so an incompatible redefine returns no row and is
// reported as store.ErrKeyTypeMismatch after checking the existing type.
func (s *PostgresKeyStore) Define(ctx context.Context, key *domain.Key) (*domain.Key, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := key.Validate(); err != nil {
		log.Warn("key validation failed during define",
			slog.String("error", err.Error()),
			slog.String("code", key.Code))
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO config_keys (id, code, type, category, description, default_value, is_sensitive, parent_key_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE
		SET category = EXCLUDED.category,
		    description = EXCLUDED.description,
		    default_value = EXCLUDED.default_value,
		    is_sensitive = EXCLUDED.is_sensitive,
		    parent_key_id = EXCLUDED.parent_key_id,
		    updated_at = EXCLUDED.updated_at
		WHERE config_keys.type = EXCLUDED.type
		RETURNING ` + keyColumns

	now := time.Now().UTC()

	defined, err := scanKey(s.db.QueryRowContext(
		ctx,
		query,
		key.ID,
		key.Code,
		key.Type,
		key.Category,
		key.Description,
		nullableJSON(key.DefaultValue),
		key.IsSensitive,
		key.ParentKeyID,
		now,
		now,
	))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conditional update refused the row: the code exists with a
			// different type.
			existing, getErr := s.GetByCode(ctx, key.Code)
			if getErr != nil {
				return nil, MapError(getErr)
			}
			log.Warn("key redefined with incompatible type",
				slog.String("code", key.Code),
				slog.String("existing_type", string(existing.Type)),
				slog.String("requested_type", string(key.Type)))
			return nil, fmt.Errorf("%w: %s is %s, requested %s",
				store.ErrKeyTypeMismatch, key.Code, existing.Type, key.Type)
		}

		log.Error("failed to define key",
			slog.String("error", err.Error()),
			slog.String("code", key.Code))
		return nil, MapError(err)
	}

	log.Info("key defined",
		slog.String("code", defined.Code),
		slog.String("type", string(defined.Type)),
		slog.Bool("sensitive", defined.IsSensitive))
	return defined, nil
}

// GetByCode implements store.KeyStore.GetByCode
// Returns store.ErrKeyNotFound if the key is not defined.
func (s *PostgresKeyStore) GetByCode(ctx context.Context, code string) (*domain.Key, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + keyColumns + ` FROM config_keys WHERE code = $1`

	key, err := scanKey(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("key not found", slog.String("code", code))
			return nil, store.ErrKeyNotFound
		}
		log.Error("failed to get key by code",
			slog.String("error", err.Error()),
			slog.String("code", code))
		return nil, MapError(err)
	}

	return key, nil
}

// List implements store.KeyStore.List
// An empty category returns every defined key.
func (s *PostgresKeyStore) List(ctx context.Context, category string) ([]*domain.Key, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + keyColumns + ` FROM config_keys`
	var args []any
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY code ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list keys",
			slog.String("error", err.Error()),
			slog.String("category", category))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var keys []*domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			log.Error("failed to scan key row", slog.String("error", err.Error()))
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning key rows", slog.String("error", err.Error()))
		return nil, err
	}

	if keys == nil {
		keys = []*domain.Key{}
	}

	return keys, nil
}

// Delete implements store.KeyStore.Delete
// Dependent values are removed by the ON DELETE CASCADE rule on
// config_values.key_id. Returns store.ErrKeyNotFound if the key is not defined.
func (s *PostgresKeyStore) Delete(ctx context.Context, code string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM config_keys WHERE code = $1`, code)
	if err != nil {
		log.Error("failed to delete key",
			slog.String("error", err.Error()),
			slog.String("code", code))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected", slog.String("error", err.Error()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("key not found for delete", slog.String("code", code))
		return store.ErrKeyNotFound
	}

	log.Info("key deleted", slog.String("code", code))
	return nil
}

// WithTx implements store.KeyStore.WithTx
func (s *PostgresKeyStore) WithTx(tx *sql.Tx) store.KeyStore {
	return &PostgresKeyStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanKey reads one config_keys row in keyColumns order.
func scanKey(row rowScanner) (*domain.Key, error) {
	var key domain.Key
	var valueType string
	var defaultValue []byte

	err := row.Scan(
		&key.ID,
		&key.Code,
		&valueType,
		&key.Category,
		&key.Description,
		&defaultValue,
		&key.IsSensitive,
		&key.ParentKeyID,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Type = domain.ValueType(valueType)
	key.DefaultValue = defaultValue
	return &key, nil
}

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// closeRows closes a result set and logs on failure.
func closeRows(rows *sql.Rows, log *slog.Logger) {
	if err := rows.Close(); err != nil {
		log.Error("failed to close rows", slog.String("error", err.Error()))
	}
}
