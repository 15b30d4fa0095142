package resolution

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/store/storetest"
)

// fixture bundles the in-memory stores behind a resolver so tests can seed
// state and resolve against it.
type fixture struct {
	keys     *storetest.InMemoryKeyStore
	channels *storetest.InMemoryChannelStore
	profiles *storetest.InMemoryProfileStore
	values   *storetest.InMemoryValueStore
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	keys := storetest.NewInMemoryKeyStore()
	channels := storetest.NewInMemoryChannelStore()
	profiles := storetest.NewInMemoryProfileStore()
	values := storetest.NewInMemoryValueStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		keys:     keys,
		channels: channels,
		profiles: profiles,
		values:   values,
		resolver: NewResolver(keys, channels, profiles, values, logger),
	}
}

func (f *fixture) defineKey(t *testing.T, code string, valueType domain.ValueType, defaultValue string) *domain.Key {
	t.Helper()

	key, err := domain.NewKey(code, valueType, "test", json.RawMessage(defaultValue))
	require.NoError(t, err)

	stored, err := f.keys.Define(context.Background(), key)
	require.NoError(t, err)
	return stored
}

func (f *fixture) createProfile(t *testing.T, name string, scopeType domain.ScopeType, scopeID *uuid.UUID, priority int) *domain.Profile {
	t.Helper()

	profile, err := domain.NewProfile(name, scopeType, scopeID, priority)
	require.NoError(t, err)
	require.NoError(t, f.profiles.Create(context.Background(), profile))
	return profile
}

func (f *fixture) ensureChannel(t *testing.T, code string, parentID, workspaceID *uuid.UUID) *domain.Channel {
	t.Helper()

	channel, err := domain.NewChannel(code, code, workspaceID)
	require.NoError(t, err)
	channel.ParentID = parentID

	stored, err := f.channels.Ensure(context.Background(), channel)
	require.NoError(t, err)
	return stored
}

func (f *fixture) setValue(t *testing.T, profileID, keyID uuid.UUID, channelID *uuid.UUID, raw string, locked bool) *domain.Value {
	t.Helper()

	value, err := domain.NewValue(profileID, keyID, channelID, json.RawMessage(raw))
	require.NoError(t, err)
	value.Locked = locked
	require.NoError(t, f.values.Upsert(context.Background(), value))
	return value
}

func TestResolve_UnknownKey(t *testing.T) {
	f := newFixture(t)

	result, err := f.resolver.Resolve(context.Background(), "no.such.key", nil, "")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestResolve_DefaultFallback(t *testing.T) {
	f := newFixture(t)
	f.defineKey(t, "retry.max", domain.TypeInt, `5`)

	result, err := f.resolver.Resolve(context.Background(), "retry.max", nil, "")
	require.NoError(t, err)

	assert.False(t, result.Found)
	assert.True(t, result.Virtual)
	assert.Equal(t, int64(5), result.Value)
	assert.Equal(t, domain.TypeInt, result.Type)
	assert.Nil(t, result.ProfileID)
}

func TestResolve_SystemValue(t *testing.T) {
	f := newFixture(t)
	key := f.defineKey(t, "greeting", domain.TypeString, `"hello"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	f.setValue(t, system.ID, key.ID, nil, `"welcome"`, false)

	result, err := f.resolver.Resolve(context.Background(), "greeting", nil, "")
	require.NoError(t, err)

	assert.True(t, result.Found)
	assert.False(t, result.Virtual)
	assert.Equal(t, "welcome", result.Value)
	assert.Equal(t, domain.ScopeSystem, result.ResolvedFrom)
	require.NotNil(t, result.ProfileID)
	assert.Equal(t, system.ID, *result.ProfileID)
}

func TestResolve_WorkspaceOverridesSystem(t *testing.T) {
	f := newFixture(t)
	workspaceID := uuid.New()

	key := f.defineKey(t, "greeting", domain.TypeString, `"hello"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	workspace := f.createProfile(t, "tenant", domain.ScopeWorkspace, &workspaceID, 0)

	f.setValue(t, system.ID, key.ID, nil, `"system"`, false)
	f.setValue(t, workspace.ID, key.ID, nil, `"tenant"`, false)

	result, err := f.resolver.Resolve(context.Background(), "greeting", &workspaceID, "")
	require.NoError(t, err)

	assert.Equal(t, "tenant", result.Value)
	assert.Equal(t, domain.ScopeWorkspace, result.ResolvedFrom)
}

func TestResolve_PriorityOrdersProfilesWithinScope(t *testing.T) {
	f := newFixture(t)

	key := f.defineKey(t, "feature.flag", domain.TypeBool, `false`)
	low := f.createProfile(t, "base", domain.ScopeSystem, nil, 1)
	high := f.createProfile(t, "override", domain.ScopeSystem, nil, 10)

	f.setValue(t, low.ID, key.ID, nil, `false`, false)
	f.setValue(t, high.ID, key.ID, nil, `true`, false)

	result, err := f.resolver.Resolve(context.Background(), "feature.flag", nil, "")
	require.NoError(t, err)

	assert.Equal(t, true, result.Value)
	require.NotNil(t, result.ProfileID)
	assert.Equal(t, high.ID, *result.ProfileID)
}

func TestResolve_ChannelSpecificBeatsAgnosticWithinProfile(t *testing.T) {
	f := newFixture(t)

	key := f.defineKey(t, "tone", domain.TypeString, `"neutral"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	email := f.ensureChannel(t, "email", nil, nil)

	f.setValue(t, system.ID, key.ID, nil, `"casual"`, false)
	f.setValue(t, system.ID, key.ID, &email.ID, `"formal"`, false)

	viaChannel, err := f.resolver.Resolve(context.Background(), "tone", nil, "email")
	require.NoError(t, err)
	assert.Equal(t, "formal", viaChannel.Value)
	require.NotNil(t, viaChannel.ChannelID)
	assert.Equal(t, email.ID, *viaChannel.ChannelID)

	agnostic, err := f.resolver.Resolve(context.Background(), "tone", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "casual", agnostic.Value)
	assert.Nil(t, agnostic.ChannelID)
}

func TestResolve_ProfileBeatsChannelMatchInLowerProfile(t *testing.T) {
	f := newFixture(t)
	workspaceID := uuid.New()

	key := f.defineKey(t, "tone", domain.TypeString, `"neutral"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	workspace := f.createProfile(t, "tenant", domain.ScopeWorkspace, &workspaceID, 0)
	email := f.ensureChannel(t, "email", nil, nil)

	// The system profile has the exact channel match but the workspace
	// profile's channel-agnostic value still wins: the walk is
	// profile-major.
	f.setValue(t, system.ID, key.ID, &email.ID, `"formal"`, false)
	f.setValue(t, workspace.ID, key.ID, nil, `"breezy"`, false)

	result, err := f.resolver.Resolve(context.Background(), "tone", &workspaceID, "email")
	require.NoError(t, err)

	assert.Equal(t, "breezy", result.Value)
	assert.Equal(t, domain.ScopeWorkspace, result.ResolvedFrom)
}

func TestResolve_LockOverridesMoreSpecificMatch(t *testing.T) {
	f := newFixture(t)
	workspaceID := uuid.New()

	key := f.defineKey(t, "compliance.mode", domain.TypeString, `"off"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	workspace := f.createProfile(t, "tenant", domain.ScopeWorkspace, &workspaceID, 0)

	f.setValue(t, system.ID, key.ID, nil, `"strict"`, true)
	f.setValue(t, workspace.ID, key.ID, nil, `"relaxed"`, false)

	result, err := f.resolver.Resolve(context.Background(), "compliance.mode", &workspaceID, "")
	require.NoError(t, err)

	assert.Equal(t, "strict", result.Value)
	assert.True(t, result.Locked)
	assert.Equal(t, domain.ScopeSystem, result.ResolvedFrom)
}

func TestResolve_UnknownChannelFallsBackToAgnostic(t *testing.T) {
	f := newFixture(t)

	key := f.defineKey(t, "greeting", domain.TypeString, `"hello"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	f.setValue(t, system.ID, key.ID, nil, `"welcome"`, false)

	result, err := f.resolver.Resolve(context.Background(), "greeting", nil, "nonexistent")
	require.NoError(t, err)

	assert.Equal(t, "welcome", result.Value)
	assert.Nil(t, result.ChannelID)
}

func TestResolve_ChannelInheritance(t *testing.T) {
	f := newFixture(t)

	key := f.defineKey(t, "tone", domain.TypeString, `"neutral"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	parent := f.ensureChannel(t, "messaging", nil, nil)
	f.ensureChannel(t, "sms", &parent.ID, nil)

	f.setValue(t, system.ID, key.ID, &parent.ID, `"terse"`, false)

	result, err := f.resolver.Resolve(context.Background(), "tone", nil, "sms")
	require.NoError(t, err)

	assert.Equal(t, "terse", result.Value)
	require.NotNil(t, result.ChannelID)
	assert.Equal(t, parent.ID, *result.ChannelID)
}

func TestResolve_WorkspaceChannelShadowsSystem(t *testing.T) {
	f := newFixture(t)
	workspaceID := uuid.New()

	key := f.defineKey(t, "tone", domain.TypeString, `"neutral"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	tenant := f.createProfile(t, "tenant", domain.ScopeWorkspace, &workspaceID, 0)

	systemChannel := f.ensureChannel(t, "api", nil, nil)
	workspaceChannel := f.ensureChannel(t, "api", nil, &workspaceID)

	f.setValue(t, system.ID, key.ID, &systemChannel.ID, `"system api"`, false)
	f.setValue(t, tenant.ID, key.ID, &workspaceChannel.ID, `"tenant api"`, false)

	t.Run("workspace channel wins for the shared code", func(t *testing.T) {
		result, err := f.resolver.Resolve(context.Background(), "tone", &workspaceID, "api")
		require.NoError(t, err)

		assert.Equal(t, "tenant api", result.Value)
		require.NotNil(t, result.ChannelID)
		assert.Equal(t, workspaceChannel.ID, *result.ChannelID)
	})

	t.Run("shadowed system channel values never apply in the workspace", func(t *testing.T) {
		other := f.defineKey(t, "banner", domain.TypeString, `"plain"`)
		f.setValue(t, system.ID, other.ID, &systemChannel.ID, `"system banner"`, false)

		result, err := f.resolver.Resolve(context.Background(), "banner", &workspaceID, "api")
		require.NoError(t, err)

		assert.True(t, result.Virtual)
		assert.Equal(t, "plain", result.Value)
	})

	t.Run("system scope still sees the system channel", func(t *testing.T) {
		result, err := f.resolver.Resolve(context.Background(), "tone", nil, "api")
		require.NoError(t, err)

		assert.Equal(t, "system api", result.Value)
		require.NotNil(t, result.ChannelID)
		assert.Equal(t, systemChannel.ID, *result.ChannelID)
	})
}

func TestResolve_ChannelCycleStillResolves(t *testing.T) {
	f := newFixture(t)

	key := f.defineKey(t, "tone", domain.TypeString, `"neutral"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)

	a := f.ensureChannel(t, "a", nil, nil)
	b := f.ensureChannel(t, "b", &a.ID, nil)
	a.ParentID = &b.ID
	_, err := f.channels.Ensure(context.Background(), a)
	require.NoError(t, err)

	f.setValue(t, system.ID, key.ID, nil, `"calm"`, false)

	result, err := f.resolver.Resolve(context.Background(), "tone", nil, "b")
	require.NoError(t, err)
	assert.Equal(t, "calm", result.Value)
}

func TestResolve_CastsValueToKeyType(t *testing.T) {
	f := newFixture(t)

	intKey := f.defineKey(t, "limit", domain.TypeInt, `0`)
	floatKey := f.defineKey(t, "ratio", domain.TypeFloat, `0.0`)
	arrayKey := f.defineKey(t, "hosts", domain.TypeArray, `[]`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)

	f.setValue(t, system.ID, intKey.ID, nil, `42`, false)
	f.setValue(t, system.ID, floatKey.ID, nil, `0.75`, false)
	f.setValue(t, system.ID, arrayKey.ID, nil, `["a","b"]`, false)

	intResult, err := f.resolver.Resolve(context.Background(), "limit", nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), intResult.Value)

	floatResult, err := f.resolver.Resolve(context.Background(), "ratio", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0.75, floatResult.Value)

	arrayResult, err := f.resolver.Resolve(context.Background(), "hosts", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, arrayResult.Value)
}

func TestResolveScope_MaterializesFullGrid(t *testing.T) {
	f := newFixture(t)
	workspaceID := uuid.New()

	configured := f.defineKey(t, "greeting", domain.TypeString, `"hello"`)
	f.defineKey(t, "retry.max", domain.TypeInt, `5`)
	email := f.ensureChannel(t, "email", nil, nil)

	workspace := f.createProfile(t, "tenant", domain.ScopeWorkspace, &workspaceID, 0)
	f.setValue(t, workspace.ID, configured.ID, nil, `"welcome"`, false)

	entries, err := f.resolver.ResolveScope(context.Background(), &workspaceID)
	require.NoError(t, err)

	// Two keys across the channel-agnostic address and one channel.
	assert.Len(t, entries, 4)

	byAddr := make(map[string]*domain.ResolvedEntry, len(entries))
	for _, entry := range entries {
		assert.Equal(t, workspaceID, entry.WorkspaceID)
		byAddr[entry.KeyCode+"/"+entry.ChannelID.String()] = entry
	}

	agnostic := byAddr["greeting/"+uuid.Nil.String()]
	require.NotNil(t, agnostic)
	assert.JSONEq(t, `"welcome"`, string(agnostic.Value))
	assert.False(t, agnostic.Virtual)
	require.NotNil(t, agnostic.SourceProfileID)
	assert.Equal(t, workspace.ID, *agnostic.SourceProfileID)

	viaChannel := byAddr["greeting/"+email.ID.String()]
	require.NotNil(t, viaChannel)
	assert.JSONEq(t, `"welcome"`, string(viaChannel.Value))

	unconfigured := byAddr["retry.max/"+uuid.Nil.String()]
	require.NotNil(t, unconfigured)
	assert.True(t, unconfigured.Virtual)
	assert.JSONEq(t, `5`, string(unconfigured.Value))
	assert.Nil(t, unconfigured.SourceProfileID)
}

func TestResolveScope_SystemScope(t *testing.T) {
	f := newFixture(t)

	key := f.defineKey(t, "greeting", domain.TypeString, `"hello"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	f.setValue(t, system.ID, key.ID, nil, `"welcome"`, false)

	entries, err := f.resolver.ResolveScope(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, uuid.Nil, entries[0].WorkspaceID)
	assert.Equal(t, uuid.Nil, entries[0].ChannelID)
	assert.JSONEq(t, `"welcome"`, string(entries[0].Value))
}

func TestLockingAncestor(t *testing.T) {
	f := newFixture(t)
	workspaceID := uuid.New()

	key := f.defineKey(t, "compliance.mode", domain.TypeString, `"off"`)
	system := f.createProfile(t, "system defaults", domain.ScopeSystem, nil, 0)
	workspace := f.createProfile(t, "tenant", domain.ScopeWorkspace, &workspaceID, 0)

	t.Run("no lock anywhere", func(t *testing.T) {
		lock, err := f.resolver.LockingAncestor(context.Background(), workspace, key.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, lock)
	})

	t.Run("lock at target does not block", func(t *testing.T) {
		f.setValue(t, workspace.ID, key.ID, nil, `"strict"`, true)

		lock, err := f.resolver.LockingAncestor(context.Background(), workspace, key.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, lock)
	})

	t.Run("ancestor lock blocks", func(t *testing.T) {
		locked := f.setValue(t, system.ID, key.ID, nil, `"strict"`, true)

		lock, err := f.resolver.LockingAncestor(context.Background(), workspace, key.ID, nil)
		require.NoError(t, err)
		require.NotNil(t, lock)
		assert.Equal(t, locked.ID, lock.ID)
	})

	t.Run("descendant write never blocks ancestor", func(t *testing.T) {
		lock, err := f.resolver.LockingAncestor(context.Background(), system, key.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, lock)
	})
}

func TestInheritsFrom(t *testing.T) {
	f := newFixture(t)

	parent := f.ensureChannel(t, "messaging", nil, nil)
	child := f.ensureChannel(t, "sms", &parent.ID, nil)

	ok, err := f.resolver.InheritsFrom(context.Background(), child, "messaging")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.resolver.InheritsFrom(context.Background(), child, "email")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.resolver.InheritsFrom(context.Background(), child, "sms")
	require.NoError(t, err)
	assert.True(t, ok)
}
