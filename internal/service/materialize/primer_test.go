package materialize

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/store/storetest"
)

// primerFixture wires a Primer over in-memory stores and a mocked
// database. The stores ignore transactions, so the mock only has to
// satisfy the begin/commit pairs around each prime pass.
type primerFixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	keys     *storetest.InMemoryKeyStore
	channels *storetest.InMemoryChannelStore
	profiles *storetest.InMemoryProfileStore
	values   *storetest.InMemoryValueStore
	resolved *storetest.InMemoryResolvedStore
	primer   *Primer
}

func newPrimerFixture(t *testing.T, workers int) *primerFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	keys := storetest.NewInMemoryKeyStore()
	channels := storetest.NewInMemoryChannelStore()
	profiles := storetest.NewInMemoryProfileStore()
	values := storetest.NewInMemoryValueStore()
	resolved := storetest.NewInMemoryResolvedStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := resolution.NewResolver(keys, channels, profiles, values, logger)

	return &primerFixture{
		db:       db,
		mock:     mock,
		keys:     keys,
		channels: channels,
		profiles: profiles,
		values:   values,
		resolved: resolved,
		primer:   NewPrimer(db, resolver, resolved, channels, profiles, workers, logger, nil),
	}
}

func (f *primerFixture) expectTransactions(count int) {
	for i := 0; i < count; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func (f *primerFixture) seedKey(t *testing.T, code string, defaultValue string) *domain.Key {
	t.Helper()

	key, err := domain.NewKey(code, domain.TypeString, "test", json.RawMessage(defaultValue))
	require.NoError(t, err)

	stored, err := f.keys.Define(context.Background(), key)
	require.NoError(t, err)
	return stored
}

func (f *primerFixture) seedWorkspaceProfile(t *testing.T, workspaceID uuid.UUID) *domain.Profile {
	t.Helper()

	profile, err := domain.NewProfile("tenant", domain.ScopeWorkspace, &workspaceID, 0)
	require.NoError(t, err)
	require.NoError(t, f.profiles.Create(context.Background(), profile))
	return profile
}

func TestPrimeWorkspace_MaterializesEntries(t *testing.T) {
	f := newPrimerFixture(t, 1)
	workspaceID := uuid.New()

	key := f.seedKey(t, "greeting", `"hello"`)
	profile := f.seedWorkspaceProfile(t, workspaceID)

	value, err := domain.NewValue(profile.ID, key.ID, nil, json.RawMessage(`"welcome"`))
	require.NoError(t, err)
	require.NoError(t, f.values.Upsert(context.Background(), value))

	f.expectTransactions(1)
	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), workspaceID))

	entries, err := f.resolved.ListScope(context.Background(), workspaceID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "greeting", entries[0].KeyCode)
	assert.JSONEq(t, `"welcome"`, string(entries[0].Value))
	assert.False(t, entries[0].Virtual)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPrimeWorkspace_ClearsStaleEntries(t *testing.T) {
	f := newPrimerFixture(t, 1)
	workspaceID := uuid.New()

	f.seedKey(t, "greeting", `"hello"`)
	f.seedWorkspaceProfile(t, workspaceID)

	// A row for a key that no longer exists must disappear on re-prime.
	stale := &domain.ResolvedEntry{
		WorkspaceID: workspaceID,
		ChannelID:   uuid.Nil,
		KeyCode:     "deleted.key",
		Value:       json.RawMessage(`"old"`),
		Type:        domain.TypeString,
		ComputedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.resolved.UpsertBatch(context.Background(), []*domain.ResolvedEntry{stale}))

	f.expectTransactions(1)
	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), workspaceID))

	entries, err := f.resolved.ListScope(context.Background(), workspaceID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "greeting", entries[0].KeyCode)
}

func TestPrimeWorkspace_Idempotent(t *testing.T) {
	f := newPrimerFixture(t, 1)
	workspaceID := uuid.New()

	f.seedKey(t, "greeting", `"hello"`)
	f.seedWorkspaceProfile(t, workspaceID)

	f.expectTransactions(2)
	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), workspaceID))

	first, err := f.resolved.ListScope(context.Background(), workspaceID)
	require.NoError(t, err)

	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), workspaceID))

	second, err := f.resolved.ListScope(context.Background(), workspaceID)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].KeyCode, second[i].KeyCode)
		assert.Equal(t, first[i].Value, second[i].Value)
	}
}

func TestPrimeWorkspace_LeavesOtherScopesUntouched(t *testing.T) {
	f := newPrimerFixture(t, 1)
	primed := uuid.New()
	bystander := uuid.New()

	key := f.seedKey(t, "greeting", `"hello"`)

	profileA := f.seedWorkspaceProfile(t, primed)
	valueA, err := domain.NewValue(profileA.ID, key.ID, nil, json.RawMessage(`"for A"`))
	require.NoError(t, err)
	require.NoError(t, f.values.Upsert(context.Background(), valueA))

	profileB := f.seedWorkspaceProfile(t, bystander)
	valueB, err := domain.NewValue(profileB.ID, key.ID, nil, json.RawMessage(`"for B"`))
	require.NoError(t, err)
	require.NoError(t, f.values.Upsert(context.Background(), valueB))

	f.expectTransactions(2)
	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), bystander))

	before, err := f.resolved.ListScope(context.Background(), bystander)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// Re-priming one workspace must not clear or rewrite another's rows.
	valueA.Raw = json.RawMessage(`"changed for A"`)
	require.NoError(t, f.values.Upsert(context.Background(), valueA))
	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), primed))

	after, err := f.resolved.ListScope(context.Background(), bystander)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].KeyCode, after[i].KeyCode)
		assert.Equal(t, before[i].ChannelID, after[i].ChannelID)
		assert.Equal(t, before[i].Value, after[i].Value)
		assert.Equal(t, before[i].ComputedAt, after[i].ComputedAt)
	}

	primedEntries, err := f.resolved.ListScope(context.Background(), primed)
	require.NoError(t, err)
	require.Len(t, primedEntries, 1)
	assert.JSONEq(t, `"changed for A"`, string(primedEntries[0].Value))
}

func TestPrimeSystem(t *testing.T) {
	f := newPrimerFixture(t, 1)

	f.seedKey(t, "greeting", `"hello"`)

	f.expectTransactions(1)
	require.NoError(t, f.primer.PrimeSystem(context.Background()))

	entries, err := f.resolved.ListScope(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, uuid.Nil, entries[0].WorkspaceID)
	assert.True(t, entries[0].Virtual)
	assert.JSONEq(t, `"hello"`, string(entries[0].Value))
}

func TestPrimeAll(t *testing.T) {
	f := newPrimerFixture(t, 2)

	f.seedKey(t, "greeting", `"hello"`)

	// One workspace known through a profile, one through a channel.
	wsFromProfile := uuid.New()
	f.seedWorkspaceProfile(t, wsFromProfile)

	wsFromChannel := uuid.New()
	channel, err := domain.NewChannel("email", "Email", &wsFromChannel)
	require.NoError(t, err)
	_, err = f.channels.Ensure(context.Background(), channel)
	require.NoError(t, err)

	// System plus two workspaces, each in its own transaction.
	f.expectTransactions(3)
	require.NoError(t, f.primer.PrimeAll(context.Background()))

	for _, workspaceID := range []uuid.UUID{uuid.Nil, wsFromProfile, wsFromChannel} {
		entries, err := f.resolved.ListScope(context.Background(), workspaceID)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, "workspace %s has no entries", workspaceID)
	}

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPrimeWorkspace_TransactionFailure(t *testing.T) {
	f := newPrimerFixture(t, 1)
	workspaceID := uuid.New()

	f.seedKey(t, "greeting", `"hello"`)
	f.seedWorkspaceProfile(t, workspaceID)

	f.mock.ExpectBegin().WillReturnError(assert.AnError)

	err := f.primer.PrimeWorkspace(context.Background(), workspaceID)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLastPrimedAt(t *testing.T) {
	f := newPrimerFixture(t, 1)
	workspaceID := uuid.New()

	f.seedKey(t, "greeting", `"hello"`)
	f.seedWorkspaceProfile(t, workspaceID)

	never, err := f.primer.LastPrimedAt(context.Background(), workspaceID)
	require.NoError(t, err)
	assert.True(t, never.IsZero())

	f.expectTransactions(1)
	require.NoError(t, f.primer.PrimeWorkspace(context.Background(), workspaceID))

	primed, err := f.primer.LastPrimedAt(context.Background(), workspaceID)
	require.NoError(t, err)
	assert.False(t, primed.IsZero())
}
