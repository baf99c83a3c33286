package handlers

import (
	"encoding/json"
	"net/http"

	"buildrelay/internal/api/middleware"
	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
	"buildrelay/internal/storage"
	"buildrelay/internal/storage/models"
)

// JobsHandler provisions CI jobs
type JobsHandler struct {
	builder      Builder
	store        *storage.Store
	templatePath string
}

// NewJobsHandler creates a JobsHandler rendering jobs from templatePath
func NewJobsHandler(builder Builder, store *storage.Store, templatePath string) *JobsHandler {
	return &JobsHandler{builder: builder, store: store, templatePath: templatePath}
}

// SetupJobRequest is the body of POST /api/v1/jobs
type SetupJobRequest struct {
	Name    string `json:"name"`
	Repo    string `json:"repo"`
	RepoURI string `json:"repo_uri"`
}

// Setup handles POST /api/v1/jobs. The job name defaults to the one derived from repo.
func (h *JobsHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := req.Name
	if name == "" {
		name = engine.JobNameFor(req.Repo)
	}
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name or repo is required")
		return
	}
	if req.RepoURI == "" {
		writeError(w, r, http.StatusBadRequest, "repo_uri is required")
		return
	}
	if len(name) > maxFieldLength {
		writeError(w, r, http.StatusBadRequest, "name exceeds maximum length")
		return
	}

	if err := h.builder.Setup(r.Context(), name, req.RepoURI, h.templatePath); err != nil {
		logger.Error("Failed to set up job", "error", err, "job", name, "request_id", middleware.GetRequestID(r))
		audit(r, h.store, http.StatusBadGateway, models.ActionSetup, name, models.ResultFailed, err)
		writeError(w, r, http.StatusBadGateway, "Failed to set up job: "+err.Error())
		return
	}

	audit(r, h.store, http.StatusOK, models.ActionSetup, name, models.ResultSuccess, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"name":     name,
		"repo_uri": req.RepoURI,
		"message":  "Job is up to date",
	})
}
