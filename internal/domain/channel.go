package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Channel
var (
	ErrEmptyChannelID   = errors.New("channel ID cannot be empty")
	ErrEmptyChannelCode = errors.New("channel code cannot be empty")
	ErrChannelSelfRef   = errors.New("channel cannot be its own parent")
)

// Channel is a named context dimension (delivery surface, tone variant,
// etc.) that values can be scoped to. A channel may inherit from a single
// parent channel. A nil WorkspaceID marks a system channel visible to all
// tenants; a workspace channel with the same code shadows the system one.
type Channel struct {
	ID          uuid.UUID         `json:"id"`
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	ParentID    *uuid.UUID        `json:"parent_id,omitempty"`
	WorkspaceID *uuid.UUID        `json:"workspace_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewChannel creates a new Channel with the given code and name.
// It generates a new UUID for the channel ID and sets the timestamps.
// Returns an error if validation fails.
func NewChannel(code, name string, workspaceID *uuid.UUID) (*Channel, error) {
	channel := &Channel{
		ID:          uuid.New(),
		Code:        code,
		Name:        name,
		WorkspaceID: workspaceID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := channel.Validate(); err != nil {
		return nil, err
	}

	return channel, nil
}

// Validate checks if the Channel has valid data.
// Returns an error if any field fails validation.
func (c *Channel) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyChannelID
	}

	if c.Code == "" {
		return ErrEmptyChannelCode
	}

	if c.ParentID != nil && *c.ParentID == c.ID {
		return ErrChannelSelfRef
	}

	return nil
}

// IsSystem reports whether the channel is a system channel visible to all
// workspaces.
func (c *Channel) IsSystem() bool {
	return c.WorkspaceID == nil
}
