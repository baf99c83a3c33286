package handlers

import (
	"net/http"

	"buildrelay/internal/storage"
)

// AuditHandler handles audit log-related API requests
type AuditHandler struct {
	store *storage.Store
}

// NewAuditHandler creates a new AuditHandler instance
func NewAuditHandler(store *storage.Store) *AuditHandler {
	return &AuditHandler{store: store}
}

// GetAuditLogs handles GET /api/v1/audit
func (h *AuditHandler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	logs, err := h.store.GetAuditLogs(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to get audit logs")
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
