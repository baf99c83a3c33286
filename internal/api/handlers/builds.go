package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"buildrelay/internal/api/middleware"
	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
	"buildrelay/internal/storage"
	"buildrelay/internal/storage/models"
)

const maxFieldLength = 255

// BuildsHandler handles build trigger and lookup requests
type BuildsHandler struct {
	builder Builder
	store   *storage.Store
}

// NewBuildsHandler creates a new BuildsHandler instance
func NewBuildsHandler(builder Builder, store *storage.Store) *BuildsHandler {
	return &BuildsHandler{builder: builder, store: store}
}

// TriggerBuildRequest is the body of POST /api/v1/builds
type TriggerBuildRequest struct {
	Repo          string `json:"repo"`
	Branch        string `json:"branch"`
	SHA1          string `json:"sha1"`
	CommitMessage string `json:"commit_message"`
	Room          string `json:"room"`
}

// TriggerBuildResponse is the answer to a trigger request
type TriggerBuildResponse struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	Message   string `json:"message"`
}

func (req TriggerBuildRequest) validate() error {
	if req.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if req.Branch == "" {
		return fmt.Errorf("branch is required")
	}
	if engine.JobNameFor(req.Repo) == "" {
		return fmt.Errorf("repo %q does not map to a job name", req.Repo)
	}
	for name, value := range map[string]string{"repo": req.Repo, "branch": req.Branch, "sha1": req.SHA1, "room": req.Room} {
		if len(value) > maxFieldLength {
			return fmt.Errorf("%s exceeds maximum length of %d characters", name, maxFieldLength)
		}
	}
	return nil
}

// Trigger handles POST /api/v1/builds
func (h *BuildsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to parse request body", "error", err, "request_id", middleware.GetRequestID(r))
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	target := req.Repo + "/" + req.Branch

	id, err := h.store.CreateBuild(ctx, models.Build{
		RepoName:      req.Repo,
		BranchName:    req.Branch,
		SHA1:          req.SHA1,
		CommitMessage: req.CommitMessage,
		RoomID:        req.Room,
		JobName:       engine.JobNameFor(req.Repo),
	})
	if err != nil {
		logger.Error("Failed to record build", "error", err, "target", target)
		writeError(w, r, http.StatusInternalServerError, "Failed to record build")
		return
	}

	ref, dispatched, err := h.builder.Run(ctx, engine.BuildRequest{
		ID:            id,
		RepoName:      req.Repo,
		BranchName:    req.Branch,
		SHA1:          req.SHA1,
		CommitMessage: req.CommitMessage,
		RoomID:        req.Room,
	})
	if err != nil {
		logger.Error("Failed to trigger build", "error", err, "build_id", id, "target", target)
		audit(r, h.store, http.StatusBadGateway, models.ActionTrigger, target, models.ResultFailed, err)
		writeError(w, r, http.StatusBadGateway, "Failed to trigger build: "+err.Error())
		return
	}

	if !dispatched {
		if err := h.store.MarkSkipped(ctx, id, time.Now()); err != nil {
			logger.Error("Failed to mark build skipped", "error", err, "build_id", id)
		}
		audit(r, h.store, http.StatusOK, models.ActionTrigger, target, models.ResultSkipped, nil)
		writeJSON(w, http.StatusOK, TriggerBuildResponse{
			ID:      id,
			Status:  models.StatusSkipped,
			Message: fmt.Sprintf("Build of %s skipped", target),
		})
		return
	}

	if err := h.store.MarkQueued(ctx, id, string(ref)); err != nil {
		logger.Error("Failed to mark build queued", "error", err, "build_id", id)
	}
	audit(r, h.store, http.StatusAccepted, models.ActionTrigger, target, models.ResultSuccess, nil)
	writeJSON(w, http.StatusAccepted, TriggerBuildResponse{
		ID:        id,
		Status:    models.StatusQueued,
		Reference: string(ref),
		Message:   fmt.Sprintf("Build of %s dispatched", target),
	})
}

// List handles GET /api/v1/builds
func (h *BuildsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	builds, err := h.store.ListBuilds(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to list builds")
		return
	}
	writeJSON(w, http.StatusOK, builds)
}

// Get handles GET /api/v1/builds/{id}
func (h *BuildsHandler) Get(w http.ResponseWriter, r *http.Request) {
	build, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, build)
}

// Output handles GET /api/v1/builds/{id}/output
func (h *BuildsHandler) Output(w http.ResponseWriter, r *http.Request) {
	build, ok := h.lookup(w, r)
	if !ok {
		return
	}

	// The URL reported by the CI callback wins over the queue reference returned on dispatch
	ref := build.URL
	if ref == "" {
		ref = build.Reference
	}
	if ref == "" {
		writeError(w, r, http.StatusConflict, "Build has not been dispatched")
		return
	}

	output, err := h.builder.Output(r.Context(), engine.BuildReference(ref))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, engine.ErrOutputUnavailable) {
			status = http.StatusNotFound
		}
		logger.Warn("Failed to fetch build output", "error", err, "build_id", build.ID)
		writeError(w, r, status, "Build output unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(output))
}

func (h *BuildsHandler) lookup(w http.ResponseWriter, r *http.Request) (models.Build, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, r, http.StatusBadRequest, "Invalid build id")
		return models.Build{}, false
	}

	build, err := h.store.GetBuild(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Build not found")
		return models.Build{}, false
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to load build")
		return models.Build{}, false
	}
	return build, true
}
