package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/api/shared"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/service/settings"
)

// DefineKeyRequest represents the request body for defining a key
type DefineKeyRequest struct {
	Code        string          `json:"code"        validate:"required,min=1"`
	Type        string          `json:"type"        validate:"required,oneof=string int bool float json array"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Default     json.RawMessage `json:"default"`
	Sensitive   bool            `json:"sensitive"`
	ParentKey   string          `json:"parent_key"`
}

// EnsureChannelRequest represents the request body for ensuring a channel
type EnsureChannelRequest struct {
	Code        string            `json:"code"         validate:"required,min=1"`
	Name        string            `json:"name"         validate:"required,min=1"`
	ParentCode  string            `json:"parent_code"`
	WorkspaceID *uuid.UUID        `json:"workspace_id"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateProfileRequest represents the request body for creating a profile
type CreateProfileRequest struct {
	Name            string     `json:"name"              validate:"required,min=1"`
	ScopeType       string     `json:"scope_type"        validate:"required,oneof=system workspace user"`
	ScopeID         *uuid.UUID `json:"scope_id"`
	ParentProfileID *uuid.UUID `json:"parent_profile_id"`
	Priority        int        `json:"priority"`
}

// SetValueRequest represents the request body for assigning a value
type SetValueRequest struct {
	ProfileID uuid.UUID       `json:"profile_id" validate:"required"`
	Key       string          `json:"key"        validate:"required,min=1"`
	Channel   string          `json:"channel"`
	Value     json.RawMessage `json:"value"      validate:"required"`
	Locked    bool            `json:"locked"`
}

// ClearValueRequest represents the request body for clearing a value
type ClearValueRequest struct {
	ProfileID uuid.UUID `json:"profile_id" validate:"required"`
	Key       string    `json:"key"        validate:"required,min=1"`
	Channel   string    `json:"channel"`
}

// SettingsHandler handles configuration write requests
type SettingsHandler struct {
	settings  *settings.Service
	validator *validator.Validate
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(settingsService *settings.Service) *SettingsHandler {
	return &SettingsHandler{
		settings:  settingsService,
		validator: validator.New(),
	}
}

// DefineKey handles POST /api/keys requests
func (h *SettingsHandler) DefineKey(w http.ResponseWriter, r *http.Request) {
	var req DefineKeyRequest
	if !h.decode(w, r, &req) {
		return
	}

	key, err := h.settings.DefineKey(r.Context(), settings.DefineKeyParams{
		Code:          req.Code,
		Type:          domain.ValueType(req.Type),
		Category:      req.Category,
		Description:   req.Description,
		DefaultValue:  req.Default,
		IsSensitive:   req.Sensitive,
		ParentKeyCode: req.ParentKey,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, key)
}

// DeleteKey handles DELETE /api/keys/{key} requests
func (h *SettingsHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "key")
	if code == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Key code is required")
		return
	}

	if err := h.settings.DeleteKey(r.Context(), code); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnsureChannel handles POST /api/channels requests
func (h *SettingsHandler) EnsureChannel(w http.ResponseWriter, r *http.Request) {
	var req EnsureChannelRequest
	if !h.decode(w, r, &req) {
		return
	}

	channel, err := h.settings.EnsureChannel(r.Context(), settings.EnsureChannelParams{
		Code:        req.Code,
		Name:        req.Name,
		ParentCode:  req.ParentCode,
		WorkspaceID: req.WorkspaceID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, channel)
}

// DeleteChannel handles DELETE /api/channels/{channel} requests. An
// optional workspace query parameter scopes the lookup.
func (h *SettingsHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "channel")
	if code == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Channel code is required")
		return
	}

	var workspaceID *uuid.UUID
	if raw := r.URL.Query().Get("workspace"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid workspace ID")
			return
		}
		workspaceID = &id
	}

	if err := h.settings.DeleteChannel(r.Context(), code, workspaceID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateProfile handles POST /api/profiles requests
func (h *SettingsHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	profile, err := h.settings.CreateProfile(r.Context(), settings.CreateProfileParams{
		Name:            req.Name,
		ScopeType:       domain.ScopeType(req.ScopeType),
		ScopeID:         req.ScopeID,
		ParentProfileID: req.ParentProfileID,
		Priority:        req.Priority,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, profile)
}

// SetValue handles PUT /api/values requests
func (h *SettingsHandler) SetValue(w http.ResponseWriter, r *http.Request) {
	var req SetValueRequest
	if !h.decode(w, r, &req) {
		return
	}

	value, err := h.settings.SetValue(r.Context(), settings.SetValueParams{
		ProfileID:   req.ProfileID,
		KeyCode:     req.Key,
		ChannelCode: req.Channel,
		Raw:         req.Value,
		Locked:      req.Locked,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, value)
}

// ClearValue handles DELETE /api/values requests
func (h *SettingsHandler) ClearValue(w http.ResponseWriter, r *http.Request) {
	var req ClearValueRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.settings.ClearValue(r.Context(), req.ProfileID, req.Key, req.Channel)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decode parses and validates a JSON request body, writing the error
// response itself on failure.
func (h *SettingsHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}

	if err := h.validator.Struct(v); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return false
	}

	return true
}
