package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResolvedEntry is one precomputed row of the materialized cache: the
// answer for a (workspace, channel, key) address. WorkspaceID and ChannelID
// use uuid.Nil as the "system scope" and "all channels" sentinels so the
// triple can carry a unique index on engines that forbid NULLs in composite
// uniques. Entries are entirely derived; they are only ever written by a
// prime pass.
type ResolvedEntry struct {
	WorkspaceID     uuid.UUID       `json:"workspace_id"`
	ChannelID       uuid.UUID       `json:"channel_id"`
	KeyCode         string          `json:"key_code"`
	Value           json.RawMessage `json:"value"`
	Type            ValueType       `json:"type"`
	Locked          bool            `json:"locked"`
	SourceProfileID *uuid.UUID      `json:"source_profile_id,omitempty"`
	SourceChannelID *uuid.UUID      `json:"source_channel_id,omitempty"`
	Virtual         bool            `json:"virtual"`
	ComputedAt      time.Time       `json:"computed_at"`
}

// ScopeKey returns the derived identity string for the entry's triple.
// It exists to give the unique index a single non-null column; the triple
// remains the conceptual identity.
func (e *ResolvedEntry) ScopeKey() string {
	return fmt.Sprintf("%s:%s:%s", e.WorkspaceID, e.ChannelID, e.KeyCode)
}

// ConfigResult is the outcome of resolving one key for a scope. Virtual
// results carry the key's default value and no provenance, so callers can
// tell "explicitly set to empty" apart from "not configured".
type ConfigResult struct {
	KeyCode      string          `json:"key_code"`
	Value        any             `json:"value"`
	Raw          json.RawMessage `json:"raw"`
	Type         ValueType       `json:"type"`
	Found        bool            `json:"found"`
	Virtual      bool            `json:"virtual"`
	Locked       bool            `json:"locked"`
	ResolvedFrom ScopeType       `json:"resolved_from,omitempty"`
	ProfileID    *uuid.UUID      `json:"profile_id,omitempty"`
	ChannelID    *uuid.UUID      `json:"channel_id,omitempty"`
}
