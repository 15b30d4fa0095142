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

// PostgresSnapshotStore implements the store.SnapshotStore interface
// using a PostgreSQL database as the storage backend. Snapshots are
// insert-only; there is intentionally no update statement in this file.
type PostgresSnapshotStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSnapshotStore creates a new PostgreSQL implementation of the SnapshotStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresSnapshotStore(db store.DBTX, logger *slog.Logger) *PostgresSnapshotStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSnapshotStore{
		db:     db,
		logger: logger.With(slog.String("component", "snapshot_store")),
	}
}

// Ensure PostgresSnapshotStore implements store.SnapshotStore interface
var _ store.SnapshotStore = (*PostgresSnapshotStore)(nil)

const snapshotColumns = `id, profile_id, workspace_id, label, snapshot, author, created_at`

// Create implements store.SnapshotStore.Create
func (s *PostgresSnapshotStore) Create(ctx context.Context, snapshot *domain.VersionSnapshot) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := snapshot.Validate(); err != nil {
		log.Warn("snapshot validation failed during create",
			slog.String("error", err.Error()),
			slog.String("snapshot_id", snapshot.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO config_snapshots (id, profile_id, workspace_id, label, snapshot, author, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		snapshot.ID,
		snapshot.ProfileID,
		snapshot.WorkspaceID,
		snapshot.Label,
		[]byte(snapshot.Snapshot),
		snapshot.Author,
		snapshot.CreatedAt,
	)

	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("snapshot references a missing profile",
				slog.String("error", err.Error()),
				slog.String("profile_id", snapshot.ProfileID.String()))
			return fmt.Errorf("%w: profile %s not found", store.ErrInvalidEntity, snapshot.ProfileID)
		}

		log.Error("failed to create snapshot",
			slog.String("error", err.Error()),
			slog.String("snapshot_id", snapshot.ID.String()))
		return MapError(err)
	}

	log.Info("snapshot created",
		slog.String("snapshot_id", snapshot.ID.String()),
		slog.String("profile_id", snapshot.ProfileID.String()),
		slog.String("label", snapshot.Label))
	return nil
}

// GetByID implements store.SnapshotStore.GetByID
// Returns store.ErrSnapshotNotFound if the snapshot does not exist.
func (s *PostgresSnapshotStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.VersionSnapshot, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + snapshotColumns + ` FROM config_snapshots WHERE id = $1`

	snapshot, err := scanSnapshot(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("snapshot not found", slog.String("snapshot_id", id.String()))
			return nil, store.ErrSnapshotNotFound
		}
		log.Error("failed to get snapshot by ID",
			slog.String("error", err.Error()),
			slog.String("snapshot_id", id.String()))
		return nil, MapError(err)
	}

	return snapshot, nil
}

// ListForProfile implements store.SnapshotStore.ListForProfile
// Snapshots come back newest first.
func (s *PostgresSnapshotStore) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.VersionSnapshot, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + snapshotColumns + `
		FROM config_snapshots
		WHERE profile_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, profileID)
	if err != nil {
		log.Error("failed to list snapshots",
			slog.String("error", err.Error()),
			slog.String("profile_id", profileID.String()))
		return nil, MapError(err)
	}
	defer closeRows(rows, log)

	var snapshots []*domain.VersionSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			log.Error("failed to scan snapshot row", slog.String("error", err.Error()))
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning snapshot rows", slog.String("error", err.Error()))
		return nil, err
	}

	if snapshots == nil {
		snapshots = []*domain.VersionSnapshot{}
	}

	return snapshots, nil
}

// DeleteOlderThan implements store.SnapshotStore.DeleteOlderThan
// Retention by count: everything past the newest keep snapshots goes.
func (s *PostgresSnapshotStore) DeleteOlderThan(ctx context.Context, profileID uuid.UUID, keep int) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if keep <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM config_snapshots
		WHERE id IN (
			SELECT id FROM config_snapshots
			WHERE profile_id = $1
			ORDER BY created_at DESC
			OFFSET $2
		)
	`

	result, err := s.db.ExecContext(ctx, query, profileID, keep)
	if err != nil {
		log.Error("failed to prune snapshots",
			slog.String("error", err.Error()),
			slog.String("profile_id", profileID.String()))
		return 0, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rowsAffected > 0 {
		log.Info("snapshots pruned",
			slog.String("profile_id", profileID.String()),
			slog.Int64("removed", rowsAffected))
	}

	return int(rowsAffected), nil
}

// WithTx implements store.SnapshotStore.WithTx
func (s *PostgresSnapshotStore) WithTx(tx *sql.Tx) store.SnapshotStore {
	return &PostgresSnapshotStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanSnapshot reads one config_snapshots row in snapshotColumns order.
func scanSnapshot(row rowScanner) (*domain.VersionSnapshot, error) {
	var snapshot domain.VersionSnapshot
	var body []byte

	err := row.Scan(
		&snapshot.ID,
		&snapshot.ProfileID,
		&snapshot.WorkspaceID,
		&snapshot.Label,
		&body,
		&snapshot.Author,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	snapshot.Snapshot = body
	return &snapshot, nil
}
