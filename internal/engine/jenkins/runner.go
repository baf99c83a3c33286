package jenkins

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
)

// Runner is the live build strategy backed by a Jenkins server
type Runner struct {
	client *Client
}

// NewRunner creates a Runner bound to client
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// BuildParameters returns the form parameters sent with a build request
func BuildParameters(req engine.BuildRequest) url.Values {
	params := url.Values{}
	params.Set(engine.ParamID, strconv.FormatInt(req.ID, 10))
	params.Set(engine.ParamSHA1, req.SHA1)
	params.Set(engine.ParamBranch, req.BranchName)
	params.Set(engine.ParamRoom, req.RoomID)
	return params
}

// Run triggers the repository's job and returns the URL Jenkins assigned to it
func (r *Runner) Run(ctx context.Context, req engine.BuildRequest) (engine.BuildReference, error) {
	jobName := req.JobName()
	if err := validateJobName(jobName); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrDispatch, err)
	}

	buildPath := fmt.Sprintf("/job/%s/buildWithParameters", url.PathEscape(jobName))
	body := strings.NewReader(BuildParameters(req).Encode())

	_, header, err := r.client.doRequest(ctx, http.MethodPost, buildPath, body, formContentType)
	if err != nil {
		return "", fmt.Errorf("%w: job %s: %w", engine.ErrDispatch, jobName, err)
	}

	ref := engine.BuildReference(r.client.resolveLocation(header.Get("Location"), jobName))
	logger.Info("Triggered Jenkins build", "job", jobName, "branch", req.BranchName, "reference", ref)
	return ref, nil
}

// Output returns the console log of the build at ref
func (r *Runner) Output(ctx context.Context, ref engine.BuildReference) (string, error) {
	path, ok := r.client.relativePath(string(ref))
	if !ok {
		return "", fmt.Errorf("%w: %s is not a build on %s", engine.ErrOutputUnavailable, ref, r.client.URL())
	}

	body, _, err := r.client.doRequest(ctx, http.MethodGet, strings.TrimSuffix(path, "/")+"/consoleText", nil, "")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", engine.ErrOutputUnavailable, ref, err)
	}
	return string(body), nil
}
