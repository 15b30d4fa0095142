package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/api/shared"
	"github.com/phrazzld/strata/internal/service/materialize"
)

// PrimeRequest represents the request body for a prime run
type PrimeRequest struct {
	Scope       string     `json:"scope"        validate:"required,oneof=workspace system all"`
	WorkspaceID *uuid.UUID `json:"workspace_id"`
}

// PrimeResponse reports the outcome of a prime run
type PrimeResponse struct {
	Status string `json:"status"`
	Scope  string `json:"scope"`
}

// PrimeHandler handles explicit cache recompute requests
type PrimeHandler struct {
	primer    *materialize.Primer
	validator *validator.Validate
}

// NewPrimeHandler creates a new PrimeHandler
func NewPrimeHandler(primer *materialize.Primer) *PrimeHandler {
	return &PrimeHandler{
		primer:    primer,
		validator: validator.New(),
	}
}

// Prime handles POST /api/prime requests. The pass runs synchronously;
// callers asking for "all" on a large installation should prefer the CLI
// or the schedule.
func (h *PrimeHandler) Prime(w http.ResponseWriter, r *http.Request) {
	var req PrimeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	var err error
	switch req.Scope {
	case "all":
		err = h.primer.PrimeAll(r.Context())
	case "system":
		err = h.primer.PrimeSystem(r.Context())
	case "workspace":
		if req.WorkspaceID == nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "workspace_id is required for workspace scope")
			return
		}
		err = h.primer.PrimeWorkspace(r.Context(), *req.WorkspaceID)
	}

	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Prime failed", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, PrimeResponse{Status: "primed", Scope: req.Scope})
}
