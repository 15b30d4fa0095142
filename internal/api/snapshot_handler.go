package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/api/shared"
	"github.com/phrazzld/strata/internal/service/version"
)

// CreateSnapshotRequest represents the request body for capturing a snapshot
type CreateSnapshotRequest struct {
	Label  string `json:"label"  validate:"required,min=1"`
	Author string `json:"author"`
}

// RollbackRequest represents the request body for rolling back to a snapshot
type RollbackRequest struct {
	SnapshotID uuid.UUID `json:"snapshot_id" validate:"required"`
}

// SnapshotHandler handles version snapshot requests
type SnapshotHandler struct {
	versions  *version.Service
	validator *validator.Validate
}

// NewSnapshotHandler creates a new SnapshotHandler
func NewSnapshotHandler(versions *version.Service) *SnapshotHandler {
	return &SnapshotHandler{
		versions:  versions,
		validator: validator.New(),
	}
}

// CreateSnapshot handles POST /api/profiles/{id}/snapshots requests
func (h *SnapshotHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req CreateSnapshotRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	snapshot, err := h.versions.Snapshot(r.Context(), profileID, req.Label, req.Author)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, snapshot)
}

// ListSnapshots handles GET /api/profiles/{id}/snapshots requests
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	snapshots, err := h.versions.ListFor(r.Context(), profileID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, snapshots)
}

// Rollback handles POST /api/profiles/{id}/rollback requests
func (h *SnapshotHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.profileID(w, r); !ok {
		return
	}

	var req RollbackRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if err := h.versions.Rollback(r.Context(), req.SnapshotID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "rolled back"})
}

func (h *SnapshotHandler) profileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid profile ID")
		return uuid.Nil, false
	}
	return id, true
}
