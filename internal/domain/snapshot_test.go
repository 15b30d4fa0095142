package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionSnapshot(t *testing.T) {
	profileID := uuid.New()
	workspaceID := uuid.New()
	body := json.RawMessage(`{"greeting":"welcome"}`)

	t.Run("valid snapshot", func(t *testing.T) {
		snapshot, err := NewVersionSnapshot(profileID, &workspaceID, "before rollout", body, "ops")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, snapshot.ID)
		assert.Equal(t, profileID, snapshot.ProfileID)
		assert.Equal(t, workspaceID, *snapshot.WorkspaceID)
		assert.Equal(t, "before rollout", snapshot.Label)
		assert.Equal(t, "ops", snapshot.Author)
		assert.False(t, snapshot.CreatedAt.IsZero())
	})

	t.Run("empty profile ID", func(t *testing.T) {
		snapshot, err := NewVersionSnapshot(uuid.Nil, nil, "label", body, "")
		assert.Nil(t, snapshot)
		assert.ErrorIs(t, err, ErrEmptySnapshotProfileID)
	})

	t.Run("empty label", func(t *testing.T) {
		snapshot, err := NewVersionSnapshot(profileID, nil, "", body, "")
		assert.Nil(t, snapshot)
		assert.ErrorIs(t, err, ErrEmptySnapshotLabel)
	})

	t.Run("malformed body", func(t *testing.T) {
		snapshot, err := NewVersionSnapshot(profileID, nil, "label", json.RawMessage(`{not json`), "")
		assert.Nil(t, snapshot)
		assert.ErrorIs(t, err, ErrInvalidSnapshotBody)
	})
}

func TestResolvedEntryScopeKey(t *testing.T) {
	entry := &ResolvedEntry{
		WorkspaceID: uuid.Nil,
		ChannelID:   uuid.Nil,
		KeyCode:     "greeting",
	}

	assert.Equal(t,
		"00000000-0000-0000-0000-000000000000:00000000-0000-0000-0000-000000000000:greeting",
		entry.ScopeKey())
}
