package api

import (
	"net/http"

	"github.com/phrazzld/strata/internal/api/shared"
	"github.com/phrazzld/strata/internal/service/export"
)

// ExportHandler serves resolved configuration as a JSON or YAML document
type ExportHandler struct {
	exporter *export.Exporter
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exporter *export.Exporter) *ExportHandler {
	return &ExportHandler{exporter: exporter}
}

// Export handles GET /api/export requests
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := parseWorkspaceParam(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid workspace ID")
		return
	}

	opts := export.DefaultOptions()
	opts.WorkspaceID = workspaceID
	opts.Category = r.URL.Query().Get("category")
	opts.ConfiguredOnly = r.URL.Query().Get("configured") == "true"
	opts.IncludeSensitive = r.URL.Query().Get("include_sensitive") == "true"
	if r.URL.Query().Get("include_keys") == "false" {
		opts.IncludeKeyDefinitions = false
	}

	format := export.FormatJSON
	contentType := "application/json"
	if r.URL.Query().Get("format") == "yaml" {
		format = export.FormatYAML
		contentType = "application/yaml"
	}

	data, err := h.exporter.Export(r.Context(), opts, format)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		// Response already partially written; nothing useful to send
		return
	}
}
