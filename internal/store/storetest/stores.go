// Package storetest provides in-memory implementations of the store
// interfaces for tests. The fakes honor the same contracts as the
// Postgres stores (sentinel errors, shadowing, slot uniqueness) without a
// database; WithTx returns the same instance since there is no
// transaction to join.
package storetest

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/store"
)

// InMemoryKeyStore is a map-backed store.KeyStore.
type InMemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*domain.Key
}

var _ store.KeyStore = (*InMemoryKeyStore)(nil)

// NewInMemoryKeyStore creates an empty InMemoryKeyStore.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{keys: make(map[string]*domain.Key)}
}

func (s *InMemoryKeyStore) Define(ctx context.Context, key *domain.Key) (*domain.Key, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.keys[key.Code]; ok {
		if existing.Type != key.Type {
			return nil, store.ErrKeyTypeMismatch
		}
		updated := *existing
		updated.Category = key.Category
		updated.Description = key.Description
		updated.DefaultValue = key.DefaultValue
		updated.IsSensitive = key.IsSensitive
		updated.ParentKeyID = key.ParentKeyID
		updated.UpdatedAt = time.Now().UTC()
		s.keys[key.Code] = &updated
		return &updated, nil
	}

	copied := *key
	s.keys[key.Code] = &copied
	return &copied, nil
}

func (s *InMemoryKeyStore) GetByCode(ctx context.Context, code string) (*domain.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[code]
	if !ok {
		return nil, store.ErrKeyNotFound
	}
	copied := *key
	return &copied, nil
}

func (s *InMemoryKeyStore) List(ctx context.Context, category string) ([]*domain.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*domain.Key, 0, len(s.keys))
	for _, key := range s.keys {
		if category != "" && key.Category != category {
			continue
		}
		copied := *key
		keys = append(keys, &copied)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Code < keys[j].Code })
	return keys, nil
}

func (s *InMemoryKeyStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[code]; !ok {
		return store.ErrKeyNotFound
	}
	delete(s.keys, code)
	return nil
}

func (s *InMemoryKeyStore) WithTx(tx *sql.Tx) store.KeyStore { return s }

// InMemoryChannelStore is a map-backed store.ChannelStore.
type InMemoryChannelStore struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]*domain.Channel
}

var _ store.ChannelStore = (*InMemoryChannelStore)(nil)

// NewInMemoryChannelStore creates an empty InMemoryChannelStore.
func NewInMemoryChannelStore() *InMemoryChannelStore {
	return &InMemoryChannelStore{channels: make(map[uuid.UUID]*domain.Channel)}
}

func scopeOf(workspaceID *uuid.UUID) uuid.UUID {
	if workspaceID == nil {
		return uuid.Nil
	}
	return *workspaceID
}

func (s *InMemoryChannelStore) Ensure(ctx context.Context, channel *domain.Channel) (*domain.Channel, error) {
	if err := channel.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.channels {
		if existing.Code == channel.Code && scopeOf(existing.WorkspaceID) == scopeOf(channel.WorkspaceID) {
			existing.Name = channel.Name
			existing.ParentID = channel.ParentID
			existing.Metadata = channel.Metadata
			existing.UpdatedAt = time.Now().UTC()
			copied := *existing
			return &copied, nil
		}
	}

	copied := *channel
	s.channels[channel.ID] = &copied
	result := copied
	return &result, nil
}

func (s *InMemoryChannelStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[id]
	if !ok {
		return nil, store.ErrChannelNotFound
	}
	copied := *channel
	return &copied, nil
}

func (s *InMemoryChannelStore) GetByCode(ctx context.Context, code string, workspaceID *uuid.UUID) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var system *domain.Channel
	for _, channel := range s.channels {
		if channel.Code != code {
			continue
		}
		if workspaceID != nil && channel.WorkspaceID != nil && *channel.WorkspaceID == *workspaceID {
			copied := *channel
			return &copied, nil
		}
		if channel.WorkspaceID == nil {
			system = channel
		}
	}

	if system != nil {
		copied := *system
		return &copied, nil
	}
	return nil, store.ErrChannelNotFound
}

func (s *InMemoryChannelStore) ListForWorkspace(ctx context.Context, workspaceID *uuid.UUID) ([]*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shadowed := make(map[string]bool)
	var result []*domain.Channel

	if workspaceID != nil {
		for _, channel := range s.channels {
			if channel.WorkspaceID != nil && *channel.WorkspaceID == *workspaceID {
				copied := *channel
				result = append(result, &copied)
				shadowed[channel.Code] = true
			}
		}
	}

	for _, channel := range s.channels {
		if channel.WorkspaceID == nil && !shadowed[channel.Code] {
			copied := *channel
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (s *InMemoryChannelStore) ListWorkspaceIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, channel := range s.channels {
		if channel.WorkspaceID != nil && !seen[*channel.WorkspaceID] {
			seen[*channel.WorkspaceID] = true
			ids = append(ids, *channel.WorkspaceID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *InMemoryChannelStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return store.ErrChannelNotFound
	}
	delete(s.channels, id)

	for _, channel := range s.channels {
		if channel.ParentID != nil && *channel.ParentID == id {
			channel.ParentID = nil
		}
	}
	return nil
}

func (s *InMemoryChannelStore) WithTx(tx *sql.Tx) store.ChannelStore { return s }

// InMemoryProfileStore is a map-backed store.ProfileStore.
type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*domain.Profile
}

var _ store.ProfileStore = (*InMemoryProfileStore)(nil)

// NewInMemoryProfileStore creates an empty InMemoryProfileStore.
func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{profiles: make(map[uuid.UUID]*domain.Profile)}
}

func (s *InMemoryProfileStore) Create(ctx context.Context, profile *domain.Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.profiles {
		if existing.ScopeType == profile.ScopeType &&
			scopeOf(existing.ScopeID) == scopeOf(profile.ScopeID) &&
			existing.Priority == profile.Priority {
			return store.ErrProfileExists
		}
	}

	copied := *profile
	s.profiles[profile.ID] = &copied
	return nil
}

func (s *InMemoryProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (s *InMemoryProfileStore) ListForScope(
	ctx context.Context,
	scopeType domain.ScopeType,
	scopeID *uuid.UUID,
) ([]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Profile
	for _, profile := range s.profiles {
		if profile.ScopeType != scopeType {
			continue
		}
		if scopeOf(profile.ScopeID) != scopeOf(scopeID) {
			continue
		}
		copied := *profile
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Priority > result[j].Priority })
	return result, nil
}

func (s *InMemoryProfileStore) ListWorkspaceIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, profile := range s.profiles {
		if profile.ScopeType == domain.ScopeWorkspace && profile.ScopeID != nil && !seen[*profile.ScopeID] {
			seen[*profile.ScopeID] = true
			ids = append(ids, *profile.ScopeID)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *InMemoryProfileStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return store.ErrProfileNotFound
	}
	delete(s.profiles, id)
	return nil
}

func (s *InMemoryProfileStore) WithTx(tx *sql.Tx) store.ProfileStore { return s }

// valueAddr identifies one assignment slot.
type valueAddr struct {
	profileID uuid.UUID
	keyID     uuid.UUID
	channelID uuid.UUID
}

// InMemoryValueStore is a map-backed store.ValueStore.
type InMemoryValueStore struct {
	mu     sync.RWMutex
	values map[valueAddr]*domain.Value
}

var _ store.ValueStore = (*InMemoryValueStore)(nil)

// NewInMemoryValueStore creates an empty InMemoryValueStore.
func NewInMemoryValueStore() *InMemoryValueStore {
	return &InMemoryValueStore{values: make(map[valueAddr]*domain.Value)}
}

func addrFor(profileID, keyID uuid.UUID, channelID *uuid.UUID) valueAddr {
	addr := valueAddr{profileID: profileID, keyID: keyID}
	if channelID != nil {
		addr.channelID = *channelID
	}
	return addr
}

func (s *InMemoryValueStore) Upsert(ctx context.Context, value *domain.Value) error {
	if err := value.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *value
	s.values[addrFor(value.ProfileID, value.KeyID, value.ChannelID)] = &copied
	return nil
}

func (s *InMemoryValueStore) Get(
	ctx context.Context,
	profileID, keyID uuid.UUID,
	channelID *uuid.UUID,
) (*domain.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[addrFor(profileID, keyID, channelID)]
	if !ok {
		return nil, store.ErrValueNotFound
	}
	copied := *value
	return &copied, nil
}

func (s *InMemoryValueStore) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.Value, error) {
	return s.ListForProfiles(ctx, []uuid.UUID{profileID})
}

func (s *InMemoryValueStore) ListForProfiles(ctx context.Context, profileIDs []uuid.UUID) ([]*domain.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[uuid.UUID]bool, len(profileIDs))
	for _, id := range profileIDs {
		wanted[id] = true
	}

	result := []*domain.Value{}
	for _, value := range s.values {
		if wanted[value.ProfileID] {
			copied := *value
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *InMemoryValueStore) Delete(
	ctx context.Context,
	profileID, keyID uuid.UUID,
	channelID *uuid.UUID,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := addrFor(profileID, keyID, channelID)
	if _, ok := s.values[addr]; !ok {
		return store.ErrValueNotFound
	}
	delete(s.values, addr)
	return nil
}

func (s *InMemoryValueStore) WithTx(tx *sql.Tx) store.ValueStore { return s }

// resolvedAddr identifies one materialized row.
type resolvedAddr struct {
	workspaceID uuid.UUID
	channelID   uuid.UUID
	keyCode     string
}

// InMemoryResolvedStore is a map-backed store.ResolvedStore.
type InMemoryResolvedStore struct {
	mu      sync.RWMutex
	entries map[resolvedAddr]*domain.ResolvedEntry
}

var _ store.ResolvedStore = (*InMemoryResolvedStore)(nil)

// NewInMemoryResolvedStore creates an empty InMemoryResolvedStore.
func NewInMemoryResolvedStore() *InMemoryResolvedStore {
	return &InMemoryResolvedStore{entries: make(map[resolvedAddr]*domain.ResolvedEntry)}
}

func (s *InMemoryResolvedStore) UpsertBatch(ctx context.Context, entries []*domain.ResolvedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		copied := *entry
		s.entries[resolvedAddr{entry.WorkspaceID, entry.ChannelID, entry.KeyCode}] = &copied
	}
	return nil
}

func (s *InMemoryResolvedStore) Lookup(
	ctx context.Context,
	workspaceID, channelID uuid.UUID,
	keyCode string,
) (*domain.ResolvedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[resolvedAddr{workspaceID, channelID, keyCode}]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *InMemoryResolvedStore) ListScope(ctx context.Context, workspaceID uuid.UUID) ([]*domain.ResolvedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.ResolvedEntry{}
	for _, entry := range s.entries {
		if entry.WorkspaceID == workspaceID {
			copied := *entry
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].KeyCode != result[j].KeyCode {
			return result[i].KeyCode < result[j].KeyCode
		}
		return result[i].ChannelID.String() < result[j].ChannelID.String()
	})
	return result, nil
}

func (s *InMemoryResolvedStore) ClearScope(ctx context.Context, workspaceID, channelID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr := range s.entries {
		if addr.workspaceID == workspaceID && addr.channelID == channelID {
			delete(s.entries, addr)
		}
	}
	return nil
}

func (s *InMemoryResolvedStore) ClearWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr := range s.entries {
		if addr.workspaceID == workspaceID {
			delete(s.entries, addr)
		}
	}
	return nil
}

func (s *InMemoryResolvedStore) ClearKey(ctx context.Context, keyCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr := range s.entries {
		if addr.keyCode == keyCode {
			delete(s.entries, addr)
		}
	}
	return nil
}

func (s *InMemoryResolvedStore) LastComputedAt(ctx context.Context, workspaceID uuid.UUID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, entry := range s.entries {
		if entry.WorkspaceID == workspaceID && entry.ComputedAt.After(latest) {
			latest = entry.ComputedAt
		}
	}
	return latest, nil
}

func (s *InMemoryResolvedStore) WithTx(tx *sql.Tx) store.ResolvedStore { return s }

// InMemorySnapshotStore is a map-backed store.SnapshotStore.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*domain.VersionSnapshot
}

var _ store.SnapshotStore = (*InMemorySnapshotStore)(nil)

// NewInMemorySnapshotStore creates an empty InMemorySnapshotStore.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[uuid.UUID]*domain.VersionSnapshot)}
}

func (s *InMemorySnapshotStore) Create(ctx context.Context, snapshot *domain.VersionSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *snapshot
	s.snapshots[snapshot.ID] = &copied
	return nil
}

func (s *InMemorySnapshotStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.VersionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return nil, store.ErrSnapshotNotFound
	}
	copied := *snapshot
	return &copied, nil
}

func (s *InMemorySnapshotStore) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.VersionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.VersionSnapshot{}
	for _, snapshot := range s.snapshots {
		if snapshot.ProfileID == profileID {
			copied := *snapshot
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemorySnapshotStore) DeleteOlderThan(ctx context.Context, profileID uuid.UUID, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	snapshots, err := s.ListForProfile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if len(snapshots) <= keep {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, snapshot := range snapshots[keep:] {
		delete(s.snapshots, snapshot.ID)
		removed++
	}
	return removed, nil
}

func (s *InMemorySnapshotStore) WithTx(tx *sql.Tx) store.SnapshotStore { return s }
