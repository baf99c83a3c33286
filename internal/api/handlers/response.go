package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"buildrelay/internal/api/middleware"
	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
	"buildrelay/internal/storage"
	"buildrelay/internal/storage/models"
)

// Builder is the build façade the handlers dispatch through
type Builder interface {
	Run(ctx context.Context, req engine.BuildRequest) (engine.BuildReference, bool, error)
	Output(ctx context.Context, ref engine.BuildReference) (string, error)
	Setup(ctx context.Context, name, repoURI, templatePath string) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err, "status", status)
	}
}

// writeError writes a standardized error response carrying the request ID
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	response := map[string]any{
		"error":  message,
		"status": http.StatusText(status),
	}
	if r != nil {
		if requestID := middleware.GetRequestID(r); requestID != "" {
			response["request_id"] = requestID
		}
	}
	writeJSON(w, status, response)
}

// audit records an API call. Failures are logged and never fail the request.
func audit(r *http.Request, store *storage.Store, status int, action, target, result string, err error) {
	entry := models.AuditLog{
		Timestamp: time.Now(),
		APIKey:    middleware.APIKeyFromContext(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
		Status:    status,
		Action:    action,
		Target:    target,
		Result:    result,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if insertErr := store.InsertAuditLog(r.Context(), entry); insertErr != nil {
		logger.Warn("Failed to record audit log", "error", insertErr, "request_id", middleware.GetRequestID(r))
	}
}

// pagination parses limit and offset query parameters
func pagination(r *http.Request) (int, int) {
	limit, offset := 100, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, 1000)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
