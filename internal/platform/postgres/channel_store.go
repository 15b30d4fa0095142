package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/platform/logger"
	"github.com/phrazzld/strata/internal/store"
)

// PostgresChannelStore implements the store.ChannelStore interface
// using a PostgreSQL database as the storage backend.
type PostgresChannelStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresChannelStore creates a new PostgreSQL implementation of the ChannelStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresChannelStore(db store.DBTX, logger *slog.Logger) *PostgresChannelStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresChannelStore{
		db:     db,
		logger: logger.With(slog.String("component", "channel_store")),
	}
}

// Ensure PostgresChannelStore implements store.ChannelStore interface
var _ store.ChannelStore = (*PostgresChannelStore)(nil)

const channelColumns = `id, code, name, parent_id, workspace_id, metadata, created_at, updated_at`

// Ensure implements store.ChannelStore.Ensure
// Find-or-create keyed by (code, workspace). The upsert refreshes name,
// parent and metadata on an existing channel and keeps its id stable.
func (s *PostgresChannelStore) Ensure(ctx context.Context, channel *domain.Channel) (*domain.Channel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := channel.Validate(); err != nil {
		log.Warn("channel validation failed during ensure",
			slog.String("error", err.Error()),
			slog.String("code", channel.Code))
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(channel.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata not serializable: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO channels (id, code, name, parent_id, workspace_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code, workspace_scope) DO UPDATE
		SET name = EXCLUDED.name,
		    parent_id = EXCLUDED.parent_id,
		    metadata = EXCLUDED.metadata,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + channelColumns

	now := time.Now().UTC()

	ensured, err := scanChannel(s.db.QueryRowContext(
		ctx,
		query,
		channel.ID,
		channel.Code,
		channel.Name,
		channel.ParentID,
		channel.WorkspaceID,
		metadata,
		now,
		now,
	))
	if err != nil {
		log.Error("failed to ensure channel",
			slog.String("error", err.Error()),
			slog.String("code", channel.Code))
		return nil, MapError(err)
	}

	log.Info("channel ensured",
		slog.String("code", ensured.Code),
		slog.String("channel_id", ensured.ID.String()),
		slog.Bool("system", ensured.IsSystem()))
	return ensured, nil
}

// GetByID implements store.ChannelStore.GetByID
// Returns store.ErrChannelNotFound if the channel does not exist.
func (s *PostgresChannelStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	channel, err := scanChannel(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("channel not found", slog.String("channel_id", id.String()))
			return nil, store.ErrChannelNotFound
		}
		log.Error("failed to get channel by ID",
			slog.String("error", err.Error()),
			slog.String("channel_id", id.String()))
		return nil, MapError(err)
	}

	return channel, nil
}

// GetByCode implements store.ChannelStore.GetByCode
// The workspace-scoped channel shadows the system channel sharing its code;
// ordering on workspace_id NULLS LAST makes the workspace row win.
func (s *PostgresChannelStore) GetByCode(ctx context.Context, code string, workspaceID *uuid.UUID) (*domain.Channel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var row *sql.Row
	if workspaceID != nil {
		query := `
			SELECT ` + channelColumns + `
			FROM channels
			WHERE code = $1 AND (workspace_id = $2 OR workspace_id IS NULL)
			ORDER BY workspace_id NULLS LAST
			LIMIT 1
		`
		row = s.db.QueryRowContext(ctx, query, code, *workspaceID)
	} else {
		query := `
			SELECT ` + channelColumns + `
			FROM channels
			WHERE code = $1 AND workspace_id IS NULL
		`
		row = s.db.QueryRowContext(ctx, query, code)
	}

	channel, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("channel not found by code", slog.String("code", code))
			return nil, store.ErrChannelNotFound
		}
		log.Error("failed to get channel by code",
			slog.String("error", err.Error()),
			slog.String("code", code))
		return nil, MapError(err)
	}

	return channel, nil
}

// ListForWorkspace implements store.ChannelStore.ListForWorkspace
// The result is the workspace's own channels plus the system channels whose
// codes the workspace does not shadow.
func (s *PostgresChannelStore) ListForWorkspace(ctx context.Context, workspaceID *uuid.UUID) ([]*domain.Channel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var rows *sql.Rows
	var err error
	if workspaceID != nil {
		query := `
			SELECT ` + channelColumns + ` FROM channels WHERE workspace_id = $1
			UNION ALL
			SELECT ` + channelColumns + ` FROM channels sys
			WHERE sys.workspace_id IS NULL
			  AND NOT EXISTS (
				SELECT 1 FROM channels ws
				WHERE ws.workspace_id = $1 AND ws.code = sys.code
			  )
			ORDER BY code ASC
		`
		rows, err = s.db.QueryContext(ctx, query, *workspaceID)
	} else {
		query := `SELECT ` + channelColumns + ` FROM channels WHERE workspace_id IS NULL ORDER BY code ASC`
		rows, err = s.db.QueryContext(ctx, query)
	}

	if err != nil {
		log.Error("failed to list channels", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var channels []*domain.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			log.Error("failed to scan channel row", slog.String("error", err.Error()))
			return nil, err
		}
		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning channel rows", slog.String("error", err.Error()))
		return nil, err
	}

	if channels == nil {
		channels = []*domain.Channel{}
	}

	return channels, nil
}

// ListWorkspaceIDs implements store.ChannelStore.ListWorkspaceIDs
func (s *PostgresChannelStore) ListWorkspaceIDs(ctx context.Context) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT DISTINCT workspace_id FROM channels WHERE workspace_id IS NOT NULL ORDER BY workspace_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to list channel workspace ids", slog.String("error", err.Error()))
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

// Delete implements store.ChannelStore.Delete
// Children keep living with a nulled parent pointer (ON DELETE SET NULL);
// values scoped to the channel are removed by cascade.
func (s *PostgresChannelStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete channel",
			slog.String("error", err.Error()),
			slog.String("channel_id", id.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected", slog.String("error", err.Error()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("channel not found for delete", slog.String("channel_id", id.String()))
		return store.ErrChannelNotFound
	}

	log.Info("channel deleted", slog.String("channel_id", id.String()))
	return nil
}

// WithTx implements store.ChannelStore.WithTx
func (s *PostgresChannelStore) WithTx(tx *sql.Tx) store.ChannelStore {
	return &PostgresChannelStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanChannel reads one channels row in channelColumns order.
func scanChannel(row rowScanner) (*domain.Channel, error) {
	var channel domain.Channel
	var metadata []byte

	err := row.Scan(
		&channel.ID,
		&channel.Code,
		&channel.Name,
		&channel.ParentID,
		&channel.WorkspaceID,
		&metadata,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &channel.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode channel metadata: %w", err)
		}
	}

	return &channel, nil
}
