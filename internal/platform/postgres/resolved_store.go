package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/platform/logger"
	"github.com/phrazzld/strata/internal/store"
)

// PostgresResolvedStore implements the store.ResolvedStore interface
// using a PostgreSQL database as the storage backend.
//
// config_resolved rows use zero-UUID sentinels for workspace_id and
// channel_id, so the composite unique index over the triple never contains
// a NULL and concurrent primes converge on the same row.
type PostgresResolvedStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresResolvedStore creates a new PostgreSQL implementation of the ResolvedStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresResolvedStore(db store.DBTX, logger *slog.Logger) *PostgresResolvedStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresResolvedStore{
		db:     db,
		logger: logger.With(slog.String("component", "resolved_store")),
	}
}

// Ensure PostgresResolvedStore implements store.ResolvedStore interface
var _ store.ResolvedStore = (*PostgresResolvedStore)(nil)

const resolvedColumns = `workspace_id, channel_id, key_code, value, type, locked, source_profile_id, source_channel_id, virtual, computed_at`

// UpsertBatch implements store.ResolvedStore.UpsertBatch
func (s *PostgresResolvedStore) UpsertBatch(ctx context.Context, entries []*domain.ResolvedEntry) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO config_resolved (workspace_id, channel_id, key_code, value, type, locked, source_profile_id, source_channel_id, virtual, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (workspace_id, channel_id, key_code) DO UPDATE
		SET value = EXCLUDED.value,
		    type = EXCLUDED.type,
		    locked = EXCLUDED.locked,
		    source_profile_id = EXCLUDED.source_profile_id,
		    source_channel_id = EXCLUDED.source_channel_id,
		    virtual = EXCLUDED.virtual,
		    computed_at = EXCLUDED.computed_at
	`

	for _, entry := range entries {
		_, err := s.db.ExecContext(
			ctx,
			query,
			entry.WorkspaceID,
			entry.ChannelID,
			entry.KeyCode,
			nullableJSON(entry.Value),
			entry.Type,
			entry.Locked,
			entry.SourceProfileID,
			entry.SourceChannelID,
			entry.Virtual,
			entry.ComputedAt,
		)
		if err != nil {
			log.Error("failed to upsert resolved entry",
				slog.String("error", err.Error()),
				slog.String("key_code", entry.KeyCode),
				slog.String("workspace_id", entry.WorkspaceID.String()))
			return MapError(err)
		}
	}

	log.Debug("resolved entries upserted", slog.Int("count", len(entries)))
	return nil
}

// Lookup implements store.ResolvedStore.Lookup
// A single indexed point read; no resolution happens here.
func (s *PostgresResolvedStore) Lookup(
	ctx context.Context,
	workspaceID, channelID uuid.UUID,
	keyCode string,
) (*domain.ResolvedEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + resolvedColumns + `
		FROM config_resolved
		WHERE workspace_id = $1 AND channel_id = $2 AND key_code = $3
	`

	entry, err := scanResolved(s.db.QueryRowContext(ctx, query, workspaceID, channelID, keyCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Error("failed to look up resolved entry",
			slog.String("error", err.Error()),
			slog.String("key_code", keyCode))
		return nil, MapError(err)
	}

	return entry, nil
}

// ListScope implements store.ResolvedStore.ListScope
func (s *PostgresResolvedStore) ListScope(ctx context.Context, workspaceID uuid.UUID) ([]*domain.ResolvedEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + resolvedColumns + `
		FROM config_resolved
		WHERE workspace_id = $1
		ORDER BY key_code, channel_id
	`

	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		log.Error("failed to list resolved scope",
			slog.String("error", err.Error()),
			slog.String("workspace_id", workspaceID.String()))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var entries []*domain.ResolvedEntry
	for rows.Next() {
		entry, err := scanResolved(rows)
		if err != nil {
			log.Error("failed to scan resolved row", slog.String("error", err.Error()))
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning resolved rows", slog.String("error", err.Error()))
		return nil, err
	}

	if entries == nil {
		entries = []*domain.ResolvedEntry{}
	}

	return entries, nil
}

// ClearScope implements store.ResolvedStore.ClearScope
func (s *PostgresResolvedStore) ClearScope(ctx context.Context, workspaceID, channelID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM config_resolved WHERE workspace_id = $1 AND channel_id = $2`

	if _, err := s.db.ExecContext(ctx, query, workspaceID, channelID); err != nil {
		log.Error("failed to clear resolved scope",
			slog.String("error", err.Error()),
			slog.String("workspace_id", workspaceID.String()),
			slog.String("channel_id", channelID.String()))
		return MapError(err)
	}

	return nil
}

// ClearWorkspace implements store.ResolvedStore.ClearWorkspace
func (s *PostgresResolvedStore) ClearWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM config_resolved WHERE workspace_id = $1`

	if _, err := s.db.ExecContext(ctx, query, workspaceID); err != nil {
		log.Error("failed to clear resolved workspace",
			slog.String("error", err.Error()),
			slog.String("workspace_id", workspaceID.String()))
		return MapError(err)
	}

	return nil
}

// ClearKey implements store.ResolvedStore.ClearKey
func (s *PostgresResolvedStore) ClearKey(ctx context.Context, keyCode string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM config_resolved WHERE key_code = $1`

	if _, err := s.db.ExecContext(ctx, query, keyCode); err != nil {
		log.Error("failed to clear resolved key",
			slog.String("error", err.Error()),
			slog.String("key_code", keyCode))
		return MapError(err)
	}

	return nil
}

// LastComputedAt implements store.ResolvedStore.LastComputedAt
func (s *PostgresResolvedStore) LastComputedAt(ctx context.Context, workspaceID uuid.UUID) (time.Time, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT COALESCE(MAX(computed_at), 'epoch'::timestamptz) FROM config_resolved WHERE workspace_id = $1`

	var computedAt time.Time
	if err := s.db.QueryRowContext(ctx, query, workspaceID).Scan(&computedAt); err != nil {
		log.Error("failed to read last computed at",
			slog.String("error", err.Error()),
			slog.String("workspace_id", workspaceID.String()))
		return time.Time{}, MapError(err)
	}

	// The epoch placeholder means the scope has never been primed.
	if computedAt.Unix() == 0 {
		return time.Time{}, nil
	}

	return computedAt, nil
}

// WithTx implements store.ResolvedStore.WithTx
func (s *PostgresResolvedStore) WithTx(tx *sql.Tx) store.ResolvedStore {
	return &PostgresResolvedStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanResolved reads one config_resolved row in resolvedColumns order.
func scanResolved(row rowScanner) (*domain.ResolvedEntry, error) {
	var entry domain.ResolvedEntry
	var valueType string
	var value []byte

	err := row.Scan(
		&entry.WorkspaceID,
		&entry.ChannelID,
		&entry.KeyCode,
		&value,
		&valueType,
		&entry.Locked,
		&entry.SourceProfileID,
		&entry.SourceChannelID,
		&entry.Virtual,
		&entry.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Type = domain.ValueType(valueType)
	entry.Value = value
	return &entry, nil
}
