package builder

import (
	"strings"

	"buildrelay/internal/engine"
)

// ShouldSkip reports whether req carries the skip marker while skipping is active.
// Active must equal "true" ignoring case; the marker match is case-sensitive.
func ShouldSkip(settings engine.SkipSettings, req engine.BuildRequest) bool {
	if strings.ToLower(settings.Active) != "true" {
		return false
	}
	if settings.Marker == "" || req.CommitMessage == "" {
		return false
	}
	return strings.Contains(req.CommitMessage, settings.Marker)
}

// skipMessage is the chat message announcing a skipped build
func skipMessage(req engine.BuildRequest) string {
	return "Skipping build of " + req.RepoName + "/" + req.BranchName + ": skip marker found in commit message"
}
