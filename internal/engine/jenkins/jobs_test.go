package jenkins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildrelay/internal/engine"
)

const testTemplate = `<project>
  <description>{{.Name}}</description>
  <scm class="hudson.plugins.git.GitSCM">
    <url>{{.RepoURI}}</url>
  </scm>
  <properties>
    <com.tikal.hudson.plugins.notification.HudsonNotificationProperty>
      <url>{{.CallbackURL}}</url>
    </com.tikal.hudson.plugins.notification.HudsonNotificationProperty>
  </properties>
</project>
`

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.xml.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRenderJobConfig(t *testing.T) {
	path := writeTemplate(t, testTemplate)

	out, err := RenderJobConfig(path, JobTemplateData{
		Name:        "app",
		RepoURI:     "git@github.com:org/app.git?a=1&b=2",
		CallbackURL: "https://relay.example.com/_builder",
	})
	require.NoError(t, err)

	assert.Contains(t, string(out), "<url>git@github.com:org/app.git?a=1&amp;b=2</url>")
	assert.Contains(t, string(out), "<url>https://relay.example.com/_builder</url>")
	assert.Contains(t, string(out), "<description>app</description>")
}

func TestRenderJobConfigErrors(t *testing.T) {
	_, err := RenderJobConfig(filepath.Join(t.TempDir(), "missing.tmpl"), JobTemplateData{})
	assert.Error(t, err)

	_, err = RenderJobConfig(writeTemplate(t, "{{.Unknown}}"), JobTemplateData{})
	assert.Error(t, err)

	_, err = RenderJobConfig(writeTemplate(t, "{{"), JobTemplateData{})
	assert.Error(t, err)
}

func TestJobCreatorIsIdempotent(t *testing.T) {
	f := newFakeJenkins(t)
	client, err := NewClient(f.URL(), 0)
	require.NoError(t, err)
	creator := NewJobCreator(client, "https://relay.example.com/_builder")
	path := writeTemplate(t, testTemplate)
	ctx := context.Background()

	require.NoError(t, creator.Run(ctx, "org-app", "git@github.com:org/app.git", path))
	require.NoError(t, creator.Run(ctx, "org-app", "git@github.com:org/app.git", path))

	assert.Len(t, f.jobs, 1)
	assert.Equal(t, 1, f.creates)
	assert.Equal(t, 1, f.updates)
	assert.Contains(t, f.jobs["org-app"], "https://relay.example.com/_builder")
}

func TestJobCreatorUpdatesChangedRepo(t *testing.T) {
	f := newFakeJenkins(t)
	client, err := NewClient(f.URL(), 0)
	require.NoError(t, err)
	creator := NewJobCreator(client, "https://relay.example.com/_builder")
	path := writeTemplate(t, testTemplate)
	ctx := context.Background()

	require.NoError(t, creator.Run(ctx, "app", "git@github.com:org/old.git", path))
	require.NoError(t, creator.Run(ctx, "app", "git@github.com:org/new.git", path))

	assert.Contains(t, f.jobs["app"], "org/new.git")
	assert.NotContains(t, f.jobs["app"], "org/old.git")
}

func TestJobCreatorErrors(t *testing.T) {
	f := newFakeJenkins(t)
	client, err := NewClient(f.URL(), 0)
	require.NoError(t, err)
	creator := NewJobCreator(client, "https://relay.example.com/_builder")
	ctx := context.Background()

	err = creator.Run(ctx, "", "git@github.com:org/app.git", writeTemplate(t, testTemplate))
	assert.True(t, errors.Is(err, engine.ErrProvision))

	err = creator.Run(ctx, "app", "git@github.com:org/app.git", filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, engine.ErrProvision))

	bad, err := NewClient("http://wrong:creds@"+f.server.Listener.Addr().String(), 0)
	require.NoError(t, err)
	err = NewJobCreator(bad, "https://relay.example.com/_builder").Run(ctx, "app", "git@github.com:org/app.git", writeTemplate(t, testTemplate))
	assert.True(t, errors.Is(err, engine.ErrProvision))
	assert.Empty(t, f.jobs)
}

func TestRenderShippedTemplate(t *testing.T) {
	rendered, err := RenderJobConfig(filepath.Join("..", "..", "..", "config", "jobs", "default.xml.tmpl"), JobTemplateData{
		Name:        "org-app",
		RepoURI:     "git@github.com:org/app.git",
		CallbackURL: "https://relay.example.com/_builder?token=a&b",
	})
	require.NoError(t, err)
	out := string(rendered)

	assert.Contains(t, out, "<url>git@github.com:org/app.git</url>")
	assert.Contains(t, out, "<urlOrId>https://relay.example.com/_builder?token=a&amp;b</urlOrId>")
	for _, param := range []string{engine.ParamID, engine.ParamSHA1, engine.ParamBranch, engine.ParamRoom} {
		assert.Contains(t, out, "<name>"+param+"</name>")
	}
}
