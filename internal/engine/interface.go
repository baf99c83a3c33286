package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrConfiguration is returned when a server or callback URL is malformed
	ErrConfiguration = errors.New("invalid builder configuration")
	// ErrDispatch is returned when the CI server cannot accept a build
	ErrDispatch = errors.New("build dispatch failed")
	// ErrOutputUnavailable is returned when a build reference is unknown or its log cannot be read
	ErrOutputUnavailable = errors.New("build output unavailable")
	// ErrNotification is returned when the chat service rejects a message
	ErrNotification = errors.New("notification failed")
	// ErrTestModeMisuse is returned when a simulated transition is requested outside test mode
	ErrTestModeMisuse = errors.New("simulated transition requested outside test mode")
	// ErrProvision is returned when a job definition cannot be created or updated
	ErrProvision = errors.New("job provisioning failed")
)

// BuildRequest is one request to build a repository branch at a commit
type BuildRequest struct {
	ID            int64  `json:"id"`
	RepoName      string `json:"repo"`
	BranchName    string `json:"branch"`
	SHA1          string `json:"sha1"`
	CommitMessage string `json:"commit_message,omitempty"`
	RoomID        string `json:"room"`
}

var jobNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// JobName returns the CI job name used for the request's repository
func (r BuildRequest) JobName() string {
	return JobNameFor(r.RepoName)
}

// JobNameFor maps a repository name such as "org/app" to a job name such as "org-app"
func JobNameFor(repoName string) string {
	name := jobNameUnsafe.ReplaceAllString(strings.TrimSpace(repoName), "-")
	return strings.Trim(name, "-.")
}

// BuildReference identifies a dispatched build, usually its URL on the CI server
type BuildReference string

// SkipSettings holds the environment-provided skip switches
type SkipSettings struct {
	Active string
	Marker string
}

// Strategy dispatches builds and reads their console output
type Strategy interface {
	// Run dispatches the build and returns a reference to it
	Run(ctx context.Context, req BuildRequest) (BuildReference, error)

	// Output returns the console log of a previously dispatched build
	Output(ctx context.Context, ref BuildReference) (string, error)
}

// Simulator is implemented by strategies that can replay CI callbacks
type Simulator interface {
	Start(ctx context.Context) error
	Complete(ctx context.Context) error
}

// Provisioner creates or updates a CI job definition
type Provisioner interface {
	Run(ctx context.Context, name, repoURI, templatePath string) error
}
