package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/store"
	"github.com/phrazzld/strata/internal/store/storetest"
)

// noopTrigger records prime requests without doing any work.
type noopTrigger struct {
	mu     sync.Mutex
	scopes []uuid.UUID
}

func (t *noopTrigger) TriggerPrime(ctx context.Context, workspaceID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scopes = append(t.scopes, workspaceID)
	return nil
}

type versionFixture struct {
	db        *sql.DB
	mock      sqlmock.Sqlmock
	keys      *storetest.InMemoryKeyStore
	channels  *storetest.InMemoryChannelStore
	profiles  *storetest.InMemoryProfileStore
	values    *storetest.InMemoryValueStore
	snapshots *storetest.InMemorySnapshotStore
	trigger   *noopTrigger
	service   *Service
}

func newVersionFixture(t *testing.T, keep int) *versionFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	keys := storetest.NewInMemoryKeyStore()
	channels := storetest.NewInMemoryChannelStore()
	profiles := storetest.NewInMemoryProfileStore()
	values := storetest.NewInMemoryValueStore()
	snapshots := storetest.NewInMemorySnapshotStore()
	trigger := &noopTrigger{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := resolution.NewResolver(keys, channels, profiles, values, logger)

	return &versionFixture{
		db:        db,
		mock:      mock,
		keys:      keys,
		channels:  channels,
		profiles:  profiles,
		values:    values,
		snapshots: snapshots,
		trigger:   trigger,
		service:   NewService(db, snapshots, profiles, keys, values, resolver, trigger, keep, logger),
	}
}

func (f *versionFixture) seedKey(t *testing.T, code string) *domain.Key {
	t.Helper()

	key, err := domain.NewKey(code, domain.TypeString, "test", json.RawMessage(`"default"`))
	require.NoError(t, err)

	stored, err := f.keys.Define(context.Background(), key)
	require.NoError(t, err)
	return stored
}

func (f *versionFixture) seedProfile(t *testing.T, workspaceID uuid.UUID) *domain.Profile {
	t.Helper()

	profile, err := domain.NewProfile("tenant", domain.ScopeWorkspace, &workspaceID, 0)
	require.NoError(t, err)
	require.NoError(t, f.profiles.Create(context.Background(), profile))
	return profile
}

func (f *versionFixture) setValue(t *testing.T, profileID, keyID uuid.UUID, raw string) {
	t.Helper()

	value, err := domain.NewValue(profileID, keyID, nil, json.RawMessage(raw))
	require.NoError(t, err)
	require.NoError(t, f.values.Upsert(context.Background(), value))
}

func TestSnapshot(t *testing.T) {
	f := newVersionFixture(t, 0)
	workspaceID := uuid.New()

	key := f.seedKey(t, "greeting")
	profile := f.seedProfile(t, workspaceID)
	f.setValue(t, profile.ID, key.ID, `"welcome"`)

	snapshot, err := f.service.Snapshot(context.Background(), profile.ID, "before rollout", "ops")
	require.NoError(t, err)

	assert.Equal(t, profile.ID, snapshot.ProfileID)
	assert.Equal(t, workspaceID, *snapshot.WorkspaceID)
	assert.Equal(t, "before rollout", snapshot.Label)
	assert.Equal(t, "ops", snapshot.Author)

	var entries []*domain.ResolvedEntry
	require.NoError(t, json.Unmarshal(snapshot.Snapshot, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "greeting", entries[0].KeyCode)
	assert.JSONEq(t, `"welcome"`, string(entries[0].Value))

	stored, err := f.service.ListFor(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, snapshot.ID, stored[0].ID)
}

func TestSnapshot_UnknownProfile(t *testing.T) {
	f := newVersionFixture(t, 0)

	_, err := f.service.Snapshot(context.Background(), uuid.New(), "label", "")
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestSnapshot_RetentionPrunesOldest(t *testing.T) {
	f := newVersionFixture(t, 2)
	workspaceID := uuid.New()

	key := f.seedKey(t, "greeting")
	profile := f.seedProfile(t, workspaceID)
	f.setValue(t, profile.ID, key.ID, `"welcome"`)

	for i := 0; i < 4; i++ {
		_, err := f.service.Snapshot(context.Background(), profile.ID, "capture", "")
		require.NoError(t, err)
	}

	stored, err := f.service.ListFor(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRollback(t *testing.T) {
	f := newVersionFixture(t, 0)
	workspaceID := uuid.New()

	key := f.seedKey(t, "greeting")
	profile := f.seedProfile(t, workspaceID)
	f.setValue(t, profile.ID, key.ID, `"original"`)

	snapshot, err := f.service.Snapshot(context.Background(), profile.ID, "before change", "")
	require.NoError(t, err)

	// Drift after the capture.
	f.setValue(t, profile.ID, key.ID, `"changed"`)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.service.Rollback(context.Background(), snapshot.ID))

	restored, err := f.values.Get(context.Background(), profile.ID, key.ID, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"original"`, string(restored.Raw))

	// The scope is re-primed through the normal write path.
	assert.Contains(t, f.trigger.scopes, workspaceID)
}

func TestRollback_SkipsVirtualEntries(t *testing.T) {
	f := newVersionFixture(t, 0)
	workspaceID := uuid.New()

	key := f.seedKey(t, "greeting")
	profile := f.seedProfile(t, workspaceID)

	// No explicit value: the snapshot holds only a virtual default entry.
	snapshot, err := f.service.Snapshot(context.Background(), profile.ID, "defaults only", "")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.service.Rollback(context.Background(), snapshot.ID))

	_, err = f.values.Get(context.Background(), profile.ID, key.ID, nil)
	assert.ErrorIs(t, err, store.ErrValueNotFound)
}

func TestRollback_SkipsInheritedChannelEntries(t *testing.T) {
	f := newVersionFixture(t, 0)
	workspaceID := uuid.New()

	key := f.seedKey(t, "tone")
	profile := f.seedProfile(t, workspaceID)

	channel, err := domain.NewChannel("email", "Email", nil)
	require.NoError(t, err)
	stored, err := f.channels.Ensure(context.Background(), channel)
	require.NoError(t, err)

	// One channel-agnostic assignment. The snapshot grid also carries a row
	// for the email channel that inherited it; rollback must not fan that
	// row out into a second, channel-specific assignment.
	f.setValue(t, profile.ID, key.ID, `"casual"`)

	snapshot, err := f.service.Snapshot(context.Background(), profile.ID, "capture", "")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.service.Rollback(context.Background(), snapshot.ID))

	_, err = f.values.Get(context.Background(), profile.ID, key.ID, &stored.ID)
	assert.ErrorIs(t, err, store.ErrValueNotFound)

	restored, err := f.values.Get(context.Background(), profile.ID, key.ID, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"casual"`, string(restored.Raw))
}

func TestRollback_UnknownSnapshot(t *testing.T) {
	f := newVersionFixture(t, 0)

	err := f.service.Rollback(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestRollback_SkipsDeletedKeys(t *testing.T) {
	f := newVersionFixture(t, 0)
	workspaceID := uuid.New()

	key := f.seedKey(t, "greeting")
	profile := f.seedProfile(t, workspaceID)
	f.setValue(t, profile.ID, key.ID, `"welcome"`)

	snapshot, err := f.service.Snapshot(context.Background(), profile.ID, "capture", "")
	require.NoError(t, err)

	require.NoError(t, f.keys.Delete(context.Background(), "greeting"))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	assert.NoError(t, f.service.Rollback(context.Background(), snapshot.ID))
}
