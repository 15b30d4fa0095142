package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Value
var (
	ErrEmptyValueID        = errors.New("value ID cannot be empty")
	ErrEmptyValueProfileID = errors.New("value profile ID cannot be empty")
	ErrEmptyValueKeyID     = errors.New("value key ID cannot be empty")
	ErrInvalidValueJSON    = errors.New("value must be valid JSON")
)

// Value is a single (profile, key, channel) assignment. A nil ChannelID
// means the value applies to every channel under its profile. A locked
// value cannot be overridden by any more specific scope; InheritedFrom
// records the profile a value was originally copied down from, for audit.
type Value struct {
	ID            uuid.UUID       `json:"id"`
	ProfileID     uuid.UUID       `json:"profile_id"`
	KeyID         uuid.UUID       `json:"key_id"`
	ChannelID     *uuid.UUID      `json:"channel_id,omitempty"`
	Raw           json.RawMessage `json:"value"`
	Locked        bool            `json:"locked"`
	InheritedFrom *uuid.UUID      `json:"inherited_from,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewValue creates a new Value assignment for the given profile and key.
// It generates a new UUID for the value ID and sets the timestamps.
// Returns an error if validation fails.
func NewValue(profileID, keyID uuid.UUID, channelID *uuid.UUID, raw json.RawMessage) (*Value, error) {
	value := &Value{
		ID:        uuid.New(),
		ProfileID: profileID,
		KeyID:     keyID,
		ChannelID: channelID,
		Raw:       raw,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := value.Validate(); err != nil {
		return nil, err
	}

	return value, nil
}

// Validate checks if the Value has valid data.
// Returns an error if any field fails validation.
func (v *Value) Validate() error {
	if v.ID == uuid.Nil {
		return ErrEmptyValueID
	}

	if v.ProfileID == uuid.Nil {
		return ErrEmptyValueProfileID
	}

	if v.KeyID == uuid.Nil {
		return ErrEmptyValueKeyID
	}

	var js json.RawMessage
	if err := json.Unmarshal(v.Raw, &js); err != nil {
		return ErrInvalidValueJSON
	}

	return nil
}
