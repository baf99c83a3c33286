package models

import (
	"time"
)

// Audited actions
const (
	ActionTrigger = "trigger"
	ActionSetup   = "setup"
)

// Outcomes of an audited action
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// AuditLog records who asked buildrelay to do what, and how it went.
// Action is ActionTrigger or ActionSetup. Target names what the action applied
// to: "repo/branch" for a trigger, the Jenkins job name for a setup. Result is
// ResultSkipped only for triggers the skip policy declined; Error carries the
// CI server's failure when Result is ResultFailed.
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// APIKey is the key the caller authenticated with
	APIKey string `json:"api_key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	// Status is the HTTP status the caller got back
	Status int    `json:"status"`
	Action string `json:"action"`
	Target string `json:"target"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}
