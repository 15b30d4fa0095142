package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ScopeType identifies the kind of scope a profile is attached to.
type ScopeType string

// Supported profile scope types, ordered from least to most specific.
const (
	ScopeSystem    ScopeType = "system"
	ScopeWorkspace ScopeType = "workspace"
	ScopeUser      ScopeType = "user"
)

// Common validation errors for Profile
var (
	ErrEmptyProfileID     = errors.New("profile ID cannot be empty")
	ErrEmptyProfileName   = errors.New("profile name cannot be empty")
	ErrInvalidScopeType   = errors.New("invalid profile scope type")
	ErrScopeIDRequired    = errors.New("scope ID is required for non-system scopes")
	ErrProfileSelfParent  = errors.New("profile cannot be its own parent")
	ErrSystemScopeHasID   = errors.New("system scope must not carry a scope ID")
)

// Valid reports whether t is one of the supported scope types.
func (t ScopeType) Valid() bool {
	switch t {
	case ScopeSystem, ScopeWorkspace, ScopeUser:
		return true
	}
	return false
}

// Profile is a scoped, prioritized container of value overrides. Profiles
// at the same (scope type, scope ID) are ordered by priority; a profile may
// additionally inherit from a parent profile. Higher priority means more
// specific.
type Profile struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	ScopeType       ScopeType  `json:"scope_type"`
	ScopeID         *uuid.UUID `json:"scope_id,omitempty"`
	ParentProfileID *uuid.UUID `json:"parent_profile_id,omitempty"`
	Priority        int        `json:"priority"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewProfile creates a new Profile for the given scope.
// It generates a new UUID for the profile ID and sets the timestamps.
// Returns an error if validation fails.
func NewProfile(name string, scopeType ScopeType, scopeID *uuid.UUID, priority int) (*Profile, error) {
	profile := &Profile{
		ID:        uuid.New(),
		Name:      name,
		ScopeType: scopeType,
		ScopeID:   scopeID,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return profile, nil
}

// Validate checks if the Profile has valid data.
// Returns an error if any field fails validation.
func (p *Profile) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyProfileID
	}

	if p.Name == "" {
		return ErrEmptyProfileName
	}

	if !p.ScopeType.Valid() {
		return ErrInvalidScopeType
	}

	if p.ScopeType == ScopeSystem && p.ScopeID != nil {
		return ErrSystemScopeHasID
	}

	if p.ScopeType != ScopeSystem && (p.ScopeID == nil || *p.ScopeID == uuid.Nil) {
		return ErrScopeIDRequired
	}

	if p.ParentProfileID != nil && *p.ParentProfileID == p.ID {
		return ErrProfileSelfParent
	}

	return nil
}
