package jenkins

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/template"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
)

// JobTemplateData is the data a job config template is rendered with.
// Values are XML-escaped before rendering.
type JobTemplateData struct {
	Name        string
	RepoURI     string
	CallbackURL string
}

// JobCreator creates or updates Jenkins jobs from a config.xml template
type JobCreator struct {
	client      *Client
	callbackURL string
}

// NewJobCreator creates a JobCreator whose jobs notify callbackURL
func NewJobCreator(client *Client, callbackURL string) *JobCreator {
	return &JobCreator{client: client, callbackURL: callbackURL}
}

// RenderJobConfig renders the template at templatePath
func RenderJobConfig(templatePath string, data JobTemplateData) ([]byte, error) {
	raw, err := os.ReadFile(templatePath) //nolint:gosec // Operator-supplied template path
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("job").Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", templatePath, err)
	}

	escaped := JobTemplateData{
		Name:        xmlEscape(data.Name),
		RepoURI:     xmlEscape(data.RepoURI),
		CallbackURL: xmlEscape(data.CallbackURL),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, escaped); err != nil {
		return nil, fmt.Errorf("render template %s: %w", templatePath, err)
	}
	return buf.Bytes(), nil
}

// Run creates the job when it is absent and replaces its config otherwise
func (j *JobCreator) Run(ctx context.Context, name, repoURI, templatePath string) error {
	if err := validateJobName(name); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrProvision, err)
	}

	config, err := RenderJobConfig(templatePath, JobTemplateData{
		Name:        name,
		RepoURI:     repoURI,
		CallbackURL: j.callbackURL,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrProvision, err)
	}

	configPath := fmt.Sprintf("/job/%s/config.xml", url.PathEscape(name))
	_, _, err = j.client.doRequest(ctx, http.MethodGet, configPath, nil, "")
	switch {
	case isNotFound(err):
		createPath := "/createItem?name=" + url.QueryEscape(name)
		if _, _, err := j.client.doRequest(ctx, http.MethodPost, createPath, bytes.NewReader(config), xmlContentType); err != nil {
			return fmt.Errorf("%w: create %s: %w", engine.ErrProvision, name, err)
		}
		logger.Info("Created Jenkins job", "job", name, "repo", repoURI)
	case err != nil:
		return fmt.Errorf("%w: lookup %s: %w", engine.ErrProvision, name, err)
	default:
		if _, _, err := j.client.doRequest(ctx, http.MethodPost, configPath, bytes.NewReader(config), xmlContentType); err != nil {
			return fmt.Errorf("%w: update %s: %w", engine.ErrProvision, name, err)
		}
		logger.Info("Updated Jenkins job", "job", name, "repo", repoURI)
	}

	return nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
