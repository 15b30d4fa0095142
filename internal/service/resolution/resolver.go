package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/store"
)

// Resolver computes effective configuration values by walking scope
// priority, profile inheritance and channel inheritance, respecting locks.
// It is a pure function of store state and the input triple: no mutable
// state is held between calls, so it is safe for concurrent use.
type Resolver struct {
	keys     store.KeyStore
	channels store.ChannelStore
	profiles store.ProfileStore
	values   store.ValueStore
	logger   *slog.Logger
}

// NewResolver creates a Resolver over the given stores.
// If logger is nil, a default logger will be used.
func NewResolver(
	keys store.KeyStore,
	channels store.ChannelStore,
	profiles store.ProfileStore,
	values store.ValueStore,
	logger *slog.Logger,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		keys:     keys,
		channels: channels,
		profiles: profiles,
		values:   values,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// valueLookup finds the assignment at one (profile, key, channel) address.
// The boolean reports whether an assignment exists there.
type valueLookup func(profileID, keyID uuid.UUID, channelID *uuid.UUID) (*domain.Value, bool, error)

// Resolve computes the effective value of one key for a scope.
//
// The walk is profile-major, channel-minor: all channels of the most
// specific profile are exhausted before the next profile is consulted, so
// a tenant's channel-agnostic override beats a less specific profile's
// exact-channel match. A locked value encountered anywhere in the walk is
// returned immediately; locks are absolute. If no explicit value exists
// the key's default is returned with Virtual=true and Found=false.
//
// Returns ErrUnknownKey only when the key code itself is undefined.
func (r *Resolver) Resolve(
	ctx context.Context,
	keyCode string,
	workspaceID *uuid.UUID,
	channelCode string,
) (*domain.ConfigResult, error) {
	key, err := r.keys.GetByCode(ctx, keyCode)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyCode)
		}
		return nil, fmt.Errorf("failed to load key %q: %w", keyCode, err)
	}

	addrs, err := r.channelAddrs(ctx, workspaceID, channelCode)
	if err != nil {
		return nil, err
	}

	profiles, err := profileChain(ctx, r.logger, r.profiles, workspaceID)
	if err != nil {
		return nil, err
	}

	lookup := func(profileID, keyID uuid.UUID, channelID *uuid.UUID) (*domain.Value, bool, error) {
		value, err := r.values.Get(ctx, profileID, keyID, channelID)
		if err != nil {
			if errors.Is(err, store.ErrValueNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return value, true, nil
	}

	match, matchProfile, matchChannel, err := walk(profiles, addrs, key.ID, lookup)
	if err != nil {
		return nil, err
	}

	return buildResult(key, match, matchProfile, matchChannel)
}

// ResolveScope computes resolved entries for the full cross-product of a
// workspace's applicable channels (plus the "all channels" address) and
// every defined key. Store state is loaded once up front; the walk itself
// runs entirely in memory. This is the only path meant to invoke the
// resolution algorithm at scale: the read path is a point lookup on the
// materialized rows this produces.
func (r *Resolver) ResolveScope(ctx context.Context, workspaceID *uuid.UUID) ([]*domain.ResolvedEntry, error) {
	keys, err := r.keys.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	applicable, byID, err := r.loadChannels(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	profiles, err := profileChain(ctx, r.logger, r.profiles, workspaceID)
	if err != nil {
		return nil, err
	}

	profileIDs := make([]uuid.UUID, len(profiles))
	for i, profile := range profiles {
		profileIDs[i] = profile.ID
	}

	values, err := r.values.ListForProfiles(ctx, profileIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load values: %w", err)
	}

	type valueAddr struct {
		profileID uuid.UUID
		keyID     uuid.UUID
		channelID uuid.UUID
	}
	index := make(map[valueAddr]*domain.Value, len(values))
	for _, value := range values {
		addr := valueAddr{profileID: value.ProfileID, keyID: value.KeyID}
		if value.ChannelID != nil {
			addr.channelID = *value.ChannelID
		}
		index[addr] = value
	}

	lookup := func(profileID, keyID uuid.UUID, channelID *uuid.UUID) (*domain.Value, bool, error) {
		addr := valueAddr{profileID: profileID, keyID: keyID}
		if channelID != nil {
			addr.channelID = *channelID
		}
		value, ok := index[addr]
		return value, ok, nil
	}

	scopeWorkspace := uuid.Nil
	if workspaceID != nil {
		scopeWorkspace = *workspaceID
	}

	// One address per applicable channel, plus the channel-agnostic one
	targets := make([][]*uuid.UUID, 0, len(applicable)+1)
	targetIDs := make([]uuid.UUID, 0, len(applicable)+1)

	targets = append(targets, []*uuid.UUID{nil})
	targetIDs = append(targetIDs, uuid.Nil)

	for _, channel := range applicable {
		chain := channelChain(r.logger, channel, byID)
		addrs := make([]*uuid.UUID, 0, len(chain)+1)
		for _, link := range chain {
			id := link.ID
			addrs = append(addrs, &id)
		}
		addrs = append(addrs, nil)

		targets = append(targets, addrs)
		targetIDs = append(targetIDs, channel.ID)
	}

	now := time.Now().UTC()
	entries := make([]*domain.ResolvedEntry, 0, len(targets)*len(keys))

	for i, addrs := range targets {
		for _, key := range keys {
			match, matchProfile, matchChannel, err := walk(profiles, addrs, key.ID, lookup)
			if err != nil {
				return nil, err
			}

			entry := &domain.ResolvedEntry{
				WorkspaceID: scopeWorkspace,
				ChannelID:   targetIDs[i],
				KeyCode:     key.Code,
				Type:        key.Type,
				ComputedAt:  now,
			}

			if match != nil {
				entry.Value = match.Raw
				entry.Locked = match.Locked
				profileID := matchProfile.ID
				entry.SourceProfileID = &profileID
				entry.SourceChannelID = matchChannel
			} else {
				entry.Value = key.DefaultValue
				entry.Virtual = true
			}

			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// LockingAncestor reports whether a write to (target profile, key, channel)
// is blocked by a lock at a less specific profile. It returns the locking
// value when one exists, nil otherwise. Locks at the target profile itself
// do not block: the scope that set a lock may still change it.
func (r *Resolver) LockingAncestor(
	ctx context.Context,
	target *domain.Profile,
	keyID uuid.UUID,
	channelID *uuid.UUID,
) (*domain.Value, error) {
	var workspaceID *uuid.UUID
	if target.ScopeType == domain.ScopeWorkspace {
		workspaceID = target.ScopeID
	}

	profiles, err := profileChain(ctx, r.logger, r.profiles, workspaceID)
	if err != nil {
		return nil, err
	}

	addrs := []*uuid.UUID{nil}
	if channelID != nil {
		channel, err := r.channels.GetByID(ctx, *channelID)
		if err != nil && !store.IsNotFoundError(err) {
			return nil, err
		}
		if channel != nil {
			_, byID, err := r.loadChannels(ctx, workspaceID)
			if err != nil {
				return nil, err
			}
			chain := channelChain(r.logger, channel, byID)
			addrs = make([]*uuid.UUID, 0, len(chain)+1)
			for _, link := range chain {
				id := link.ID
				addrs = append(addrs, &id)
			}
			addrs = append(addrs, nil)
		}
	}

	// Only profiles less specific than the target can hold a blocking lock
	pastTarget := false
	for _, profile := range profiles {
		if profile.ID == target.ID {
			pastTarget = true
			continue
		}
		if !pastTarget {
			continue
		}

		for _, addr := range addrs {
			value, err := r.values.Get(ctx, profile.ID, keyID, addr)
			if err != nil {
				if errors.Is(err, store.ErrValueNotFound) {
					continue
				}
				return nil, err
			}
			if value.Locked {
				return value, nil
			}
		}
	}

	return nil, nil
}

// walk performs the profile-major, channel-minor search. The first match
// is remembered but the walk continues: a locked value anywhere in the
// remaining order overrules it and is returned immediately.
func walk(
	profiles []*domain.Profile,
	addrs []*uuid.UUID,
	keyID uuid.UUID,
	lookup valueLookup,
) (*domain.Value, *domain.Profile, *uuid.UUID, error) {
	var first *domain.Value
	var firstProfile *domain.Profile
	var firstChannel *uuid.UUID

	for _, profile := range profiles {
		for _, addr := range addrs {
			value, ok, err := lookup(profile.ID, keyID, addr)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to look up value: %w", err)
			}
			if !ok {
				continue
			}

			if value.Locked {
				// Locks are absolute: no more specific match can win
				return value, profile, addr, nil
			}

			if first == nil {
				first = value
				firstProfile = profile
				firstChannel = addr
			}
		}
	}

	return first, firstProfile, firstChannel, nil
}

// buildResult casts a walk outcome (or the key's default) into a typed
// ConfigResult.
func buildResult(
	key *domain.Key,
	match *domain.Value,
	matchProfile *domain.Profile,
	matchChannel *uuid.UUID,
) (*domain.ConfigResult, error) {
	result := &domain.ConfigResult{
		KeyCode: key.Code,
		Type:    key.Type,
	}

	if match != nil {
		typed, err := domain.CastValue(key.Type, match.Raw)
		if err != nil {
			return nil, fmt.Errorf("failed to cast value for key %q: %w", key.Code, err)
		}

		result.Value = typed
		result.Raw = match.Raw
		result.Found = true
		result.Locked = match.Locked
		result.ResolvedFrom = matchProfile.ScopeType
		profileID := matchProfile.ID
		result.ProfileID = &profileID
		result.ChannelID = matchChannel
		return result, nil
	}

	typed, err := domain.CastValue(key.Type, key.DefaultValue)
	if err != nil {
		return nil, fmt.Errorf("failed to cast default for key %q: %w", key.Code, err)
	}

	result.Value = typed
	result.Raw = key.DefaultValue
	result.Virtual = true
	return result, nil
}

// channelAddrs builds the channel dimension of the walk for one requested
// channel code: the channel's inheritance chain (most specific first)
// terminated by the channel-agnostic address. An empty or unknown code
// yields only the channel-agnostic address.
func (r *Resolver) channelAddrs(
	ctx context.Context,
	workspaceID *uuid.UUID,
	channelCode string,
) ([]*uuid.UUID, error) {
	if channelCode == "" {
		return []*uuid.UUID{nil}, nil
	}

	channel, err := r.channels.GetByCode(ctx, channelCode, workspaceID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return []*uuid.UUID{nil}, nil
		}
		return nil, fmt.Errorf("failed to load channel %q: %w", channelCode, err)
	}

	_, byID, err := r.loadChannels(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	chain := channelChain(r.logger, channel, byID)
	addrs := make([]*uuid.UUID, 0, len(chain)+1)
	for _, link := range chain {
		id := link.ID
		addrs = append(addrs, &id)
	}
	addrs = append(addrs, nil)

	return addrs, nil
}

// loadChannels returns the channels applicable to a workspace plus an
// id-indexed map covering system channels as well, so parent pointers into
// shadowed system channels still resolve during chain walks.
func (r *Resolver) loadChannels(
	ctx context.Context,
	workspaceID *uuid.UUID,
) ([]*domain.Channel, map[uuid.UUID]*domain.Channel, error) {
	applicable, err := r.channels.ListForWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list channels: %w", err)
	}

	byID := make(map[uuid.UUID]*domain.Channel, len(applicable))
	for _, channel := range applicable {
		byID[channel.ID] = channel
	}

	if workspaceID != nil {
		system, err := r.channels.ListForWorkspace(ctx, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list system channels: %w", err)
		}
		for _, channel := range system {
			if _, ok := byID[channel.ID]; !ok {
				byID[channel.ID] = channel
			}
		}
	}

	return applicable, byID, nil
}

// InheritsFrom reports whether the channel's inheritance chain contains a
// channel with the given code.
func (r *Resolver) InheritsFrom(ctx context.Context, channel *domain.Channel, code string) (bool, error) {
	_, byID, err := r.loadChannels(ctx, channel.WorkspaceID)
	if err != nil {
		return false, err
	}

	return chainContainsCode(channelChain(r.logger, channel, byID), code), nil
}
