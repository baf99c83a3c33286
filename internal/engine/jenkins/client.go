package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
)

const (
	formContentType = "application/x-www-form-urlencoded"
	xmlContentType  = "application/xml"
)

// Client represents a Jenkins API client
type Client struct {
	url      string
	username string
	password string
	client   *http.Client
}

// apiError is a non-2xx answer from Jenkins
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return formatJenkinsError(e.StatusCode).Error()
}

// NewClient creates a Jenkins client for serverURL. Basic auth credentials are taken
// from the URL userinfo. A zero timeout leaves requests unbounded.
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%w: server url: %w", engine.ErrConfiguration, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: server url %q must be absolute", engine.ErrConfiguration, serverURL)
	}

	var username, password string
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	// Credentials are sent as a header, never as part of request URLs
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""

	return &Client{
		url:      strings.TrimSuffix(u.String(), "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// URL returns the server URL without credentials
func (c *Client) URL() string {
	return c.url
}

func (c *Client) setAuth(req *http.Request) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// doRequest sends a request to path, which is relative to the server URL.
// POSTs carry the CSRF crumb when the server issues one.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, http.Header, error) {
	fullURL := c.url + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.setAuth(req)

	if method == http.MethodPost {
		crumbField, crumbValue, err := c.getCrumb(ctx)
		if err != nil {
			logger.Debug("No CSRF crumb available, proceeding without it", "error", err)
		} else if crumbField != "" && crumbValue != "" {
			req.Header.Set(crumbField, crumbValue)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("Jenkins API request failed", "status", resp.Status, "body", truncate(string(respBody), 512), "url", fullURL)
		return nil, nil, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, resp.Header, nil
}

// getCrumb retrieves the CSRF crumb field name and value
func (c *Client) getCrumb(ctx context.Context) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/crumbIssuer/api/json", nil)
	if err != nil {
		return "", "", err
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to get crumb: %s", resp.Status)
	}

	var crumbData struct {
		Crumb             string `json:"crumb"`
		CrumbRequestField string `json:"crumbRequestField"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&crumbData); err != nil {
		return "", "", err
	}

	crumbField := crumbData.CrumbRequestField
	if crumbField == "" {
		crumbField = "Jenkins-Crumb"
	}

	return crumbField, crumbData.Crumb, nil
}

// relativePath turns an absolute URL on this server into a request path
func (c *Client) relativePath(absolute string) (string, bool) {
	u, err := url.Parse(absolute)
	if err != nil || u.Host == "" {
		return "", false
	}
	u.User = nil
	s := u.String()
	if !strings.HasPrefix(s, c.url+"/") {
		return "", false
	}
	return strings.TrimPrefix(s, c.url), true
}

// resolveLocation turns a Location header into an absolute URL on this server.
// Jenkins answers buildWithParameters with a queue item, older versions with the build itself.
// Absolute locations keep only their path, which already carries any prefix Jenkins is served under.
func (c *Client) resolveLocation(location, jobName string) string {
	fallback := fmt.Sprintf("%s/job/%s/", c.url, url.PathEscape(jobName))
	if location == "" {
		return fallback
	}

	base, err := url.Parse(c.url + "/")
	if err != nil {
		return fallback
	}
	loc, err := url.Parse(location)
	if err != nil {
		return fallback
	}
	// Jenkins may advertise a root URL other than the one we reach it on
	loc.Scheme, loc.Host, loc.User = "", "", nil

	resolved := base.ResolveReference(loc)
	resolved.RawQuery, resolved.Fragment = "", ""
	ref := resolved.String()
	if !strings.HasSuffix(ref, "/") {
		ref += "/"
	}
	return ref
}

func isNotFound(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// validateJobName rejects names that would escape the job path
func validateJobName(name string) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") {
		return fmt.Errorf("invalid job name format: %s", name)
	}
	return nil
}

// formatJenkinsError maps Jenkins status codes to messages without leaking response bodies
func formatJenkinsError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("authentication failed: invalid credentials")
	case http.StatusForbidden:
		return fmt.Errorf("access denied: insufficient permissions")
	case http.StatusNotFound:
		return fmt.Errorf("resource not found")
	case http.StatusBadRequest:
		return fmt.Errorf("invalid request")
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("jenkins server error (status %d)", statusCode)
	default:
		return fmt.Errorf("jenkins api request failed (status %d)", statusCode)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
