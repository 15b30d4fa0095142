package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannel(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("system channel", func(t *testing.T) {
		channel, err := NewChannel("email", "Email", nil)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, channel.ID)
		assert.Equal(t, "email", channel.Code)
		assert.True(t, channel.IsSystem())
	})

	t.Run("workspace channel", func(t *testing.T) {
		channel, err := NewChannel("email", "Email", &workspaceID)
		require.NoError(t, err)
		assert.False(t, channel.IsSystem())
	})

	t.Run("empty code", func(t *testing.T) {
		channel, err := NewChannel("", "Email", nil)
		assert.Nil(t, channel)
		assert.ErrorIs(t, err, ErrEmptyChannelCode)
	})
}

func TestChannelValidate_SelfParent(t *testing.T) {
	channel, err := NewChannel("email", "Email", nil)
	require.NoError(t, err)

	channel.ParentID = &channel.ID
	assert.ErrorIs(t, channel.Validate(), ErrChannelSelfRef)
}
