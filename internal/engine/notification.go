package engine

import "net/url"

// DefaultCallbackPath receives callbacks when the callback URL has no path of its own
const DefaultCallbackPath = "/_builder"

// CallbackPath returns the route the CI server posts notifications to for callbackURL.
// Everything that renders, serves or replays callbacks derives the path from here.
func CallbackPath(callbackURL string) string {
	u, err := url.Parse(callbackURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultCallbackPath
	}
	return u.Path
}

// Build parameters passed to every CI job. Callbacks are correlated on ParamID.
const (
	ParamID     = "RELAY_ID"
	ParamSHA1   = "RELAY_SHA1"
	ParamBranch = "RELAY_BRANCH"
	ParamRoom   = "RELAY_ROOM"
)

// Build phases reported by the CI server
const (
	PhaseQueued    = "QUEUED"
	PhaseStarted   = "STARTED"
	PhaseCompleted = "COMPLETED"
	PhaseFinalized = "FINALIZED"
)

// Build results reported with the completed phase
const (
	StatusSuccess  = "SUCCESS"
	StatusFailure  = "FAILURE"
	StatusUnstable = "UNSTABLE"
	StatusAborted  = "ABORTED"
)

// Notification is the payload the CI server posts to the callback URL
// (Jenkins Notification plugin JSON format).
type Notification struct {
	Name  string            `json:"name"`
	URL   string            `json:"url"`
	Build NotificationBuild `json:"build"`
}

// NotificationBuild describes the build a notification is about
type NotificationBuild struct {
	FullURL    string            `json:"full_url"`
	Number     int               `json:"number"`
	Phase      string            `json:"phase"`
	Status     string            `json:"status,omitempty"`
	URL        string            `json:"url"`
	Parameters map[string]string `json:"parameters"`
}

// Completed reports whether the notification marks the end of a build
func (n Notification) Completed() bool {
	return n.Build.Phase == PhaseCompleted || n.Build.Phase == PhaseFinalized
}

// Green reports whether a completed build succeeded
func (n Notification) Green() bool {
	return n.Build.Status == StatusSuccess
}
