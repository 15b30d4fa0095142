package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for VersionSnapshot
var (
	ErrEmptySnapshotID        = errors.New("snapshot ID cannot be empty")
	ErrEmptySnapshotProfileID = errors.New("snapshot profile ID cannot be empty")
	ErrEmptySnapshotLabel     = errors.New("snapshot label cannot be empty")
	ErrInvalidSnapshotBody    = errors.New("snapshot body must be valid JSON")
)

// VersionSnapshot is an immutable point-in-time capture of a profile's
// fully resolved configuration. Snapshots have no update path; they are
// read back for diffing and rollback and pruned by retention policy.
type VersionSnapshot struct {
	ID          uuid.UUID       `json:"id"`
	ProfileID   uuid.UUID       `json:"profile_id"`
	WorkspaceID *uuid.UUID      `json:"workspace_id,omitempty"`
	Label       string          `json:"label"`
	Snapshot    json.RawMessage `json:"snapshot"`
	Author      string          `json:"author,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewVersionSnapshot creates a new snapshot of the given profile.
// It generates a new UUID for the snapshot ID and sets the creation time.
// Returns an error if validation fails.
func NewVersionSnapshot(
	profileID uuid.UUID,
	workspaceID *uuid.UUID,
	label string,
	body json.RawMessage,
	author string,
) (*VersionSnapshot, error) {
	snapshot := &VersionSnapshot{
		ID:          uuid.New(),
		ProfileID:   profileID,
		WorkspaceID: workspaceID,
		Label:       label,
		Snapshot:    body,
		Author:      author,
		CreatedAt:   time.Now().UTC(),
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Validate checks if the VersionSnapshot has valid data.
// Returns an error if any field fails validation.
func (s *VersionSnapshot) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySnapshotID
	}

	if s.ProfileID == uuid.Nil {
		return ErrEmptySnapshotProfileID
	}

	if s.Label == "" {
		return ErrEmptySnapshotLabel
	}

	var js json.RawMessage
	if err := json.Unmarshal(s.Snapshot, &js); err != nil {
		return ErrInvalidSnapshotBody
	}

	return nil
}
