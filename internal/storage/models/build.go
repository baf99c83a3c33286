package models

import (
	"time"
)

// Build statuses
const (
	StatusPending = "pending"
	StatusSkipped = "skipped"
	StatusQueued  = "queued"
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Build is a build request and what became of it
type Build struct {
	ID            int64      `json:"id"`
	RepoName      string     `json:"repo"`
	BranchName    string     `json:"branch"`
	SHA1          string     `json:"sha1"`
	CommitMessage string     `json:"commit_message"`
	RoomID        string     `json:"room"`
	JobName       string     `json:"job_name"`
	Reference     string     `json:"reference,omitempty"`
	URL           string     `json:"url,omitempty"`
	Number        int        `json:"number,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the build reached a final status
func (b Build) Completed() bool {
	return b.Status == StatusSuccess || b.Status == StatusFailure || b.Status == StatusSkipped
}
