package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

// AuditHandler serves the audit log.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger.With(slog.String("handler", "audit")),
	}
}

// List returns audit entries, newest first.
// GET /api/audit?event=bet_failed&limit=50&offset=0&since=2024-01-01T00:00:00Z
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit entries", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
