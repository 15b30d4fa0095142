package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/store"
)

// Service orchestrates configuration writes. Lock enforcement happens
// here, before anything reaches the value store: resolution-time respect
// for locks alone would leave rejected-but-stored rows behind.
type Service struct {
	keys     store.KeyStore
	channels store.ChannelStore
	profiles store.ProfileStore
	values   store.ValueStore
	resolved store.ResolvedStore
	resolver *resolution.Resolver
	trigger  PrimeTrigger
	logger   *slog.Logger
}

// NewService creates a settings Service.
// If logger is nil, a default logger will be used.
func NewService(
	keys store.KeyStore,
	channels store.ChannelStore,
	profiles store.ProfileStore,
	values store.ValueStore,
	resolved store.ResolvedStore,
	resolver *resolution.Resolver,
	trigger PrimeTrigger,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		keys:     keys,
		channels: channels,
		profiles: profiles,
		values:   values,
		resolved: resolved,
		resolver: resolver,
		trigger:  trigger,
		logger:   logger.With(slog.String("component", "settings_service")),
	}
}

// DefineKeyParams carries the inputs for DefineKey.
type DefineKeyParams struct {
	Code          string
	Type          domain.ValueType
	Category      string
	Description   string
	DefaultValue  json.RawMessage
	IsSensitive   bool
	ParentKeyCode string
}

// DefineKey registers a configuration key. Defining an existing code with
// the same type is idempotent; redefining with an incompatible type fails
// with store.ErrKeyTypeMismatch. A new or changed key alters defaults
// everywhere, so the system scope is re-primed; workspace scopes catch up
// on their next prime.
func (s *Service) DefineKey(ctx context.Context, params DefineKeyParams) (*domain.Key, error) {
	key, err := domain.NewKey(params.Code, params.Type, params.Category, params.DefaultValue)
	if err != nil {
		return nil, err
	}
	key.Description = params.Description
	key.IsSensitive = params.IsSensitive

	if params.ParentKeyCode != "" {
		parent, err := s.keys.GetByCode(ctx, params.ParentKeyCode)
		if err != nil {
			if store.IsNotFoundError(err) {
				return nil, fmt.Errorf("%w: parent key %s", resolution.ErrUnknownKey, params.ParentKeyCode)
			}
			return nil, fmt.Errorf("failed to load parent key: %w", err)
		}
		parentID := parent.ID
		key.ParentKeyID = &parentID
	}

	defined, err := s.keys.Define(ctx, key)
	if err != nil {
		return nil, err
	}

	s.logger.Info("key defined",
		slog.String("code", defined.Code),
		slog.String("type", string(defined.Type)))

	if err := s.trigger.TriggerPrime(ctx, uuid.Nil); err != nil {
		s.logger.Error("failed to trigger prime after key define",
			slog.String("code", defined.Code),
			slog.String("error", err.Error()))
	}

	return defined, nil
}

// DeleteKey removes a key definition and its materialized rows. Values
// referencing the key are removed by the schema's cascade rules, and
// clearing the resolved entries covers every scope at once, so no
// re-prime is needed.
func (s *Service) DeleteKey(ctx context.Context, code string) error {
	if err := s.keys.Delete(ctx, code); err != nil {
		return err
	}

	if err := s.resolved.ClearKey(ctx, code); err != nil {
		return fmt.Errorf("failed to clear resolved entries for key %s: %w", code, err)
	}

	s.logger.Info("key deleted", slog.String("code", code))
	return nil
}

// EnsureChannelParams carries the inputs for EnsureChannel.
type EnsureChannelParams struct {
	Code        string
	Name        string
	ParentCode  string
	WorkspaceID *uuid.UUID
	Metadata    map[string]string
}

// EnsureChannel finds or creates a channel by (code, workspace). The
// parent code is resolved against the same workspace first, falling back
// to no parent if absent.
func (s *Service) EnsureChannel(ctx context.Context, params EnsureChannelParams) (*domain.Channel, error) {
	channel, err := domain.NewChannel(params.Code, params.Name, params.WorkspaceID)
	if err != nil {
		return nil, err
	}
	channel.Metadata = params.Metadata

	if params.ParentCode != "" {
		parent, err := s.channels.GetByCode(ctx, params.ParentCode, params.WorkspaceID)
		if err != nil && !store.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to resolve parent channel: %w", err)
		}
		if parent != nil {
			parentID := parent.ID
			channel.ParentID = &parentID
		}
	}

	ensured, err := s.channels.Ensure(ctx, channel)
	if err != nil {
		return nil, err
	}

	if err := s.trigger.TriggerPrime(ctx, workspaceScope(params.WorkspaceID)); err != nil {
		s.logger.Error("failed to trigger prime after channel ensure",
			slog.String("code", ensured.Code),
			slog.String("error", err.Error()))
	}

	return ensured, nil
}

// DeleteChannel removes a channel by (code, workspace) and clears the
// materialized rows addressed to it in that scope. Workspaces that
// carried rows for a shared system channel catch up on their next prime.
func (s *Service) DeleteChannel(ctx context.Context, code string, workspaceID *uuid.UUID) error {
	channel, err := s.channels.GetByCode(ctx, code, workspaceID)
	if err != nil {
		return err
	}

	if err := s.channels.Delete(ctx, channel.ID); err != nil {
		return err
	}

	if err := s.resolved.ClearScope(ctx, workspaceScope(workspaceID), channel.ID); err != nil {
		return fmt.Errorf("failed to clear resolved entries for channel %s: %w", code, err)
	}

	if err := s.trigger.TriggerPrime(ctx, workspaceScope(workspaceID)); err != nil {
		s.logger.Error("failed to trigger prime after channel delete",
			slog.String("code", code),
			slog.String("error", err.Error()))
	}

	return nil
}

// CreateProfileParams carries the inputs for CreateProfile.
type CreateProfileParams struct {
	Name            string
	ScopeType       domain.ScopeType
	ScopeID         *uuid.UUID
	ParentProfileID *uuid.UUID
	Priority        int
}

// CreateProfile creates a scoped profile. The (scope type, scope ID,
// priority) slot must be free; store.ErrProfileExists otherwise.
func (s *Service) CreateProfile(ctx context.Context, params CreateProfileParams) (*domain.Profile, error) {
	profile, err := domain.NewProfile(params.Name, params.ScopeType, params.ScopeID, params.Priority)
	if err != nil {
		return nil, err
	}
	profile.ParentProfileID = params.ParentProfileID

	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, err
	}

	if err := s.trigger.TriggerPrime(ctx, profileScope(profile)); err != nil {
		s.logger.Error("failed to trigger prime after profile create",
			slog.String("profile_id", profile.ID.String()),
			slog.String("error", err.Error()))
	}

	return profile, nil
}

// SetValueParams carries the inputs for SetValue.
type SetValueParams struct {
	ProfileID   uuid.UUID
	KeyCode     string
	ChannelCode string
	Raw         json.RawMessage
	Locked      bool
}

// SetValue upserts the assignment at (profile, key, channel). The raw
// value must cast cleanly to the key's type. Returns ErrLockedByAncestor
// when a less specific profile has locked the key; locks are enforced
// here at write time as well as being respected during resolution.
func (s *Service) SetValue(ctx context.Context, params SetValueParams) (*domain.Value, error) {
	profile, err := s.profiles.GetByID(ctx, params.ProfileID)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.GetByCode(ctx, params.KeyCode)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", resolution.ErrUnknownKey, params.KeyCode)
		}
		return nil, fmt.Errorf("failed to load key: %w", err)
	}

	if _, err := domain.CastValue(key.Type, params.Raw); err != nil {
		return nil, err
	}

	channelID, err := s.resolveChannelID(ctx, params.ChannelCode, profile)
	if err != nil {
		return nil, err
	}

	locking, err := s.resolver.LockingAncestor(ctx, profile, key.ID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ancestor locks: %w", err)
	}
	if locking != nil {
		s.logger.Warn("value write rejected by ancestor lock",
			slog.String("key_code", key.Code),
			slog.String("profile_id", profile.ID.String()),
			slog.String("locking_profile_id", locking.ProfileID.String()))
		return nil, fmt.Errorf("%w: %s", ErrLockedByAncestor, key.Code)
	}

	value, err := domain.NewValue(profile.ID, key.ID, channelID, params.Raw)
	if err != nil {
		return nil, err
	}
	value.Locked = params.Locked

	if err := s.values.Upsert(ctx, value); err != nil {
		return nil, err
	}

	if err := s.trigger.TriggerPrime(ctx, profileScope(profile)); err != nil {
		s.logger.Error("failed to trigger prime after value write",
			slog.String("key_code", key.Code),
			slog.String("error", err.Error()))
	}

	return value, nil
}

// ClearValue removes the assignment at (profile, key, channel) so the
// scope falls back to inherited or default values on the next prime.
func (s *Service) ClearValue(ctx context.Context, profileID uuid.UUID, keyCode, channelCode string) error {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return err
	}

	key, err := s.keys.GetByCode(ctx, keyCode)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", resolution.ErrUnknownKey, keyCode)
		}
		return fmt.Errorf("failed to load key: %w", err)
	}

	channelID, err := s.resolveChannelID(ctx, channelCode, profile)
	if err != nil {
		return err
	}

	if err := s.values.Delete(ctx, profile.ID, key.ID, channelID); err != nil {
		return err
	}

	if err := s.trigger.TriggerPrime(ctx, profileScope(profile)); err != nil {
		s.logger.Error("failed to trigger prime after value clear",
			slog.String("key_code", key.Code),
			slog.String("error", err.Error()))
	}

	return nil
}

// resolveChannelID maps an optional channel code to an ID within the
// profile's workspace. An empty code means the channel-agnostic address.
func (s *Service) resolveChannelID(ctx context.Context, channelCode string, profile *domain.Profile) (*uuid.UUID, error) {
	if channelCode == "" {
		return nil, nil
	}

	var workspaceID *uuid.UUID
	if profile.ScopeType == domain.ScopeWorkspace {
		workspaceID = profile.ScopeID
	}

	channel, err := s.channels.GetByCode(ctx, channelCode, workspaceID)
	if err != nil {
		return nil, err
	}

	id := channel.ID
	return &id, nil
}

// profileScope maps a profile to the workspace whose materialized entries
// its values feed. Non-workspace scopes land on the system scope.
func profileScope(profile *domain.Profile) uuid.UUID {
	if profile.ScopeType == domain.ScopeWorkspace && profile.ScopeID != nil {
		return *profile.ScopeID
	}
	return uuid.Nil
}

func workspaceScope(workspaceID *uuid.UUID) uuid.UUID {
	if workspaceID != nil {
		return *workspaceID
	}
	return uuid.Nil
}
