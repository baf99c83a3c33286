package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
	"buildrelay/internal/metrics"
	"buildrelay/internal/notify"
	"buildrelay/internal/storage"
	"buildrelay/internal/storage/models"
)

// CallbackHandler receives build phase notifications from the CI server
type CallbackHandler struct {
	store    *storage.Store
	notifier notify.Notifier
}

// NewCallbackHandler creates a new CallbackHandler instance
func NewCallbackHandler(store *storage.Store, notifier notify.Notifier) *CallbackHandler {
	return &CallbackHandler{store: store, notifier: notifier}
}

// Receive handles the CI server's POST to the callback URL
func (h *CallbackHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var n engine.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid notification payload")
		return
	}
	metrics.Callbacks.WithLabelValues(n.Build.Phase, n.Build.Status).Inc()

	id, err := strconv.ParseInt(n.Build.Parameters[engine.ParamID], 10, 64)
	if err != nil || id < 1 {
		logger.Warn("Notification without build id", "job", n.Name, "phase", n.Build.Phase)
		writeError(w, r, http.StatusBadRequest, "Missing "+engine.ParamID+" parameter")
		return
	}

	ctx := r.Context()
	now := time.Now()

	var changed bool
	switch {
	case n.Build.Phase == engine.PhaseStarted:
		changed, err = h.store.MarkStarted(ctx, id, n.Build.FullURL, n.Build.Number, now)
	case n.Completed():
		changed, err = h.store.MarkCompleted(ctx, id, n.Green(), n.Build.FullURL, n.Build.Number, now)
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Build not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Failed to update build")
		return
	}

	if !changed {
		// Jenkins sends FINALIZED after COMPLETED
		logger.Debug("Build already finished, ignoring phase", "build_id", id, "job", n.Name, "phase", n.Build.Phase)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger.Info("Build phase recorded", "build_id", id, "job", n.Name, "phase", n.Build.Phase, "status", n.Build.Status)

	if n.Completed() {
		h.announce(r, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// announce tells the build's room how it went. The CI server cannot act on a
// failed announcement, so errors are only logged.
func (h *CallbackHandler) announce(r *http.Request, id int64) {
	build, err := h.store.GetBuild(r.Context(), id)
	if err != nil {
		logger.Error("Failed to load completed build", "error", err, "build_id", id)
		return
	}
	if err := h.notifier.Speak(r.Context(), ResultMessage(build), build.RoomID); err != nil {
		logger.Warn("Failed to announce build result", "error", err, "build_id", id)
	}
}

// ResultMessage is the chat message announcing a finished build
func ResultMessage(b models.Build) string {
	outcome := "failed"
	if b.Status == models.StatusSuccess {
		outcome = "was successful"
	}
	sha := b.SHA1
	if len(sha) > 7 {
		sha = sha[:7]
	}
	msg := fmt.Sprintf("Build #%d (%s) of %s/%s %s", b.Number, sha, b.RepoName, b.BranchName, outcome)
	if b.URL != "" {
		msg += " " + b.URL
	}
	return msg
}
