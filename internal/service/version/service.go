// Package version implements point-in-time snapshots of a profile's
// resolved configuration and rollback by replay.
package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/service/settings"
	"github.com/phrazzld/strata/internal/store"
)

// Service captures and restores version snapshots. A snapshot records the
// fully-resolved state of the profile's scope, not just the profile's own
// raw values, so it is a complete picture of what the scope was serving
// at capture time.
type Service struct {
	db        *sql.DB
	snapshots store.SnapshotStore
	profiles  store.ProfileStore
	keys      store.KeyStore
	values    store.ValueStore
	resolver  *resolution.Resolver
	trigger   settings.PrimeTrigger
	keep      int
	logger    *slog.Logger
}

// NewService creates a version Service. keep bounds how many snapshots a
// profile retains; older ones are pruned after each capture.
// If logger is nil, a default logger will be used.
func NewService(
	db *sql.DB,
	snapshots store.SnapshotStore,
	profiles store.ProfileStore,
	keys store.KeyStore,
	values store.ValueStore,
	resolver *resolution.Resolver,
	trigger settings.PrimeTrigger,
	keep int,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		db:        db,
		snapshots: snapshots,
		profiles:  profiles,
		keys:      keys,
		values:    values,
		resolver:  resolver,
		trigger:   trigger,
		keep:      keep,
		logger:    logger.With(slog.String("component", "version_service")),
	}
}

// Snapshot captures the current fully-resolved state of the profile's
// scope as an immutable labeled blob. Retention pruning runs afterwards.
func (s *Service) Snapshot(ctx context.Context, profileID uuid.UUID, label, author string) (*domain.VersionSnapshot, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	workspaceID := scopeWorkspace(profile)

	// Live resolution, not the materialized rows: the snapshot must
	// reflect current store state even mid staleness window.
	entries, err := s.resolver.ResolveScope(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scope for snapshot: %w", err)
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	snapshot, err := domain.NewVersionSnapshot(profile.ID, workspaceID, label, body, author)
	if err != nil {
		return nil, err
	}

	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}

	if s.keep > 0 {
		pruned, err := s.snapshots.DeleteOlderThan(ctx, profile.ID, s.keep)
		if err != nil {
			// The capture succeeded; retention failure is not fatal
			s.logger.Error("failed to prune old snapshots",
				slog.String("profile_id", profile.ID.String()),
				slog.String("error", err.Error()))
		} else if pruned > 0 {
			s.logger.Info("pruned old snapshots",
				slog.String("profile_id", profile.ID.String()),
				slog.Int("pruned", pruned))
		}
	}

	return snapshot, nil
}

// ListFor returns a profile's snapshots, newest first.
func (s *Service) ListFor(ctx context.Context, profileID uuid.UUID) ([]*domain.VersionSnapshot, error) {
	return s.snapshots.ListForProfile(ctx, profileID)
}

// Rollback restores a snapshot by replaying its non-virtual entries as
// value upserts against the snapshot's profile, then re-priming the
// scope. The materialized table is never written directly, it stays
// derived, so rollback flows through the same write path as any edit.
//
// Only entries that represent explicit assignments are replayed: the
// channel-agnostic rows, plus rows whose source channel matches their own
// address (a channel-specific assignment). Rows that merely inherited a
// value from a broader address are skipped to avoid fanning one
// assignment out into many.
func (s *Service) Rollback(ctx context.Context, snapshotID uuid.UUID) error {
	snapshot, err := s.snapshots.GetByID(ctx, snapshotID)
	if err != nil {
		return err
	}

	profile, err := s.profiles.GetByID(ctx, snapshot.ProfileID)
	if err != nil {
		return err
	}

	var entries []*domain.ResolvedEntry
	if err := json.Unmarshal(snapshot.Snapshot, &entries); err != nil {
		return fmt.Errorf("failed to decode snapshot body: %w", err)
	}

	keyIDs := make(map[string]uuid.UUID)

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		values := s.values.WithTx(tx)
		keys := s.keys.WithTx(tx)

		for _, entry := range entries {
			if entry.Virtual {
				continue
			}
			if !isExplicitAssignment(entry) {
				continue
			}

			keyID, ok := keyIDs[entry.KeyCode]
			if !ok {
				key, err := keys.GetByCode(ctx, entry.KeyCode)
				if err != nil {
					if store.IsNotFoundError(err) {
						// Key deleted since the snapshot; nothing to restore onto
						s.logger.Warn("snapshot references deleted key, skipping",
							slog.String("key_code", entry.KeyCode))
						continue
					}
					return fmt.Errorf("failed to load key %q: %w", entry.KeyCode, err)
				}
				keyID = key.ID
				keyIDs[entry.KeyCode] = keyID
			}

			var channelID *uuid.UUID
			if entry.ChannelID != uuid.Nil {
				id := entry.ChannelID
				channelID = &id
			}

			value, err := domain.NewValue(profile.ID, keyID, channelID, entry.Value)
			if err != nil {
				return fmt.Errorf("failed to build value for key %q: %w", entry.KeyCode, err)
			}
			value.Locked = entry.Locked
			if entry.SourceProfileID != nil && *entry.SourceProfileID != profile.ID {
				value.InheritedFrom = entry.SourceProfileID
			}

			if err := values.Upsert(ctx, value); err != nil {
				return fmt.Errorf("failed to restore value for key %q: %w", entry.KeyCode, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("snapshot rolled back",
		slog.String("snapshot_id", snapshot.ID.String()),
		slog.String("profile_id", profile.ID.String()),
		slog.String("label", snapshot.Label))

	workspace := uuid.Nil
	if workspaceID := scopeWorkspace(profile); workspaceID != nil {
		workspace = *workspaceID
	}

	if err := s.trigger.TriggerPrime(ctx, workspace); err != nil {
		return fmt.Errorf("rollback applied but prime trigger failed: %w", err)
	}

	return nil
}

// isExplicitAssignment reports whether a resolved entry corresponds to an
// assignment that was actually stored at its address, as opposed to one
// inherited from a broader channel or the channel-agnostic slot.
func isExplicitAssignment(entry *domain.ResolvedEntry) bool {
	if entry.ChannelID == uuid.Nil {
		return entry.SourceChannelID == nil
	}
	return entry.SourceChannelID != nil && *entry.SourceChannelID == entry.ChannelID
}

// scopeWorkspace maps a profile to the workspace its scope addresses; nil
// for system and user scopes.
func scopeWorkspace(profile *domain.Profile) *uuid.UUID {
	if profile.ScopeType == domain.ScopeWorkspace {
		return profile.ScopeID
	}
	return nil
}
