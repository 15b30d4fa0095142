package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/api/shared"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/export"
	"github.com/phrazzld/strata/internal/service/materialize"
	"github.com/phrazzld/strata/internal/store"
)

// ConfigResponse represents a single resolved configuration value
type ConfigResponse struct {
	Key             string     `json:"key"`
	Value           any        `json:"value"`
	Type            string     `json:"type"`
	Locked          bool       `json:"locked"`
	Virtual         bool       `json:"virtual"`
	SourceProfileID *uuid.UUID `json:"source_profile_id,omitempty"`
	ComputedAt      time.Time  `json:"computed_at"`
}

// ConfigListResponse represents the resolved configuration of a scope
type ConfigListResponse struct {
	Workspace    string         `json:"workspace,omitempty"`
	LastPrimedAt *time.Time     `json:"last_primed_at,omitempty"`
	Entries      []export.Entry `json:"entries"`
}

// ConfigHandler serves the read path: point lookups and scope listings
// against the materialized table. No resolution happens here; a scope that
// has never been primed simply has no rows yet.
type ConfigHandler struct {
	resolved store.ResolvedStore
	keys     store.KeyStore
	channels store.ChannelStore
	exporter *export.Exporter
	primer   *materialize.Primer
}

// NewConfigHandler creates a new ConfigHandler
func NewConfigHandler(
	resolved store.ResolvedStore,
	keys store.KeyStore,
	channels store.ChannelStore,
	exporter *export.Exporter,
	primer *materialize.Primer,
) *ConfigHandler {
	return &ConfigHandler{
		resolved: resolved,
		keys:     keys,
		channels: channels,
		exporter: exporter,
		primer:   primer,
	}
}

// GetConfig handles GET /api/config/{key} requests
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	keyCode := chi.URLParam(r, "key")

	workspaceID, err := parseWorkspaceParam(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	channelID, err := h.resolveChannelParam(r, workspaceID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	scope := uuid.Nil
	if workspaceID != nil {
		scope = *workspaceID
	}

	entry, err := h.resolved.Lookup(r.Context(), scope, channelID, keyCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Distinguish an undefined key from a scope that has not
			// been primed for it yet
			if _, keyErr := h.keys.GetByCode(r.Context(), keyCode); keyErr != nil {
				shared.RespondWithError(w, r, http.StatusNotFound, "Unknown configuration key")
				return
			}
			shared.RespondWithError(w, r, http.StatusNotFound, "Configuration not materialized for this scope; prime it first")
			return
		}
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	value, err := domain.CastValue(entry.Type, entry.Value)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to decode stored value", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ConfigResponse{
		Key:             entry.KeyCode,
		Value:           value,
		Type:            string(entry.Type),
		Locked:          entry.Locked,
		Virtual:         entry.Virtual,
		SourceProfileID: entry.SourceProfileID,
		ComputedAt:      entry.ComputedAt,
	})
}

// ListConfig handles GET /api/config requests
func (h *ConfigHandler) ListConfig(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := parseWorkspaceParam(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	opts := export.Options{
		WorkspaceID:    workspaceID,
		Category:       r.URL.Query().Get("category"),
		ConfiguredOnly: r.URL.Query().Get("configured") == "true",
	}

	entries, err := h.exporter.Collect(r.Context(), opts)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	response := ConfigListResponse{Entries: entries}
	if workspaceID != nil {
		response.Workspace = workspaceID.String()
	}

	scope := uuid.Nil
	if workspaceID != nil {
		scope = *workspaceID
	}
	if primedAt, err := h.primer.LastPrimedAt(r.Context(), scope); err == nil && !primedAt.IsZero() {
		response.LastPrimedAt = &primedAt
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// resolveChannelParam maps the optional channel query parameter (a channel
// code) to the materialized channel address. Absent means "all channels".
func (h *ConfigHandler) resolveChannelParam(r *http.Request, workspaceID *uuid.UUID) (uuid.UUID, error) {
	code := r.URL.Query().Get("channel")
	if code == "" {
		return uuid.Nil, nil
	}

	channel, err := h.channels.GetByCode(r.Context(), code, workspaceID)
	if err != nil {
		return uuid.Nil, err
	}

	return channel.ID, nil
}

// parseWorkspaceParam reads the optional workspace query parameter.
func parseWorkspaceParam(r *http.Request) (*uuid.UUID, error) {
	raw := r.URL.Query().Get("workspace")
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}

	return &id, nil
}
