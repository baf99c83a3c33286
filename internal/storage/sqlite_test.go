package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildrelay/internal/storage/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newBuild() models.Build {
	return models.Build{
		RepoName:      "org/app",
		BranchName:    "main",
		SHA1:          "abc123",
		CommitMessage: "fix bug",
		RoomID:        "dev",
		JobName:       "org-app",
	}
}

func TestCloseNil(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}

func TestCreateAndGetBuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)
	assert.Positive(t, id)

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "org/app", b.RepoName)
	assert.Equal(t, "main", b.BranchName)
	assert.Equal(t, "abc123", b.SHA1)
	assert.Equal(t, "fix bug", b.CommitMessage)
	assert.Equal(t, "dev", b.RoomID)
	assert.Equal(t, "org-app", b.JobName)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.False(t, b.CreatedAt.IsZero())
	assert.Nil(t, b.StartedAt)
	assert.Nil(t, b.CompletedAt)
}

func TestGetBuildNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBuild(context.Background(), 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBuildLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)

	require.NoError(t, s.MarkQueued(ctx, id, "https://ci.example.com/queue/item/3/"))
	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, b.Status)
	assert.Equal(t, "https://ci.example.com/queue/item/3/", b.Reference)

	changed, err := s.MarkStarted(ctx, id, "https://ci.example.com/job/org-app/7/", 7, now)
	require.NoError(t, err)
	assert.True(t, changed)
	b, err = s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, b.Status)
	assert.Equal(t, "https://ci.example.com/job/org-app/7/", b.URL)
	assert.Equal(t, 7, b.Number)
	assert.NotNil(t, b.StartedAt)
	assert.False(t, b.Completed())

	changed, err = s.MarkCompleted(ctx, id, false, "", 7, now)
	require.NoError(t, err)
	assert.True(t, changed)
	b, err = s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, b.Status)
	assert.Equal(t, "https://ci.example.com/job/org-app/7/", b.URL, "empty url keeps the previous one")
	assert.NotNil(t, b.CompletedAt)
	assert.True(t, b.Completed())
}

func TestMarkCompletedWithoutStart(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)
	_, err = s.MarkCompleted(ctx, id, true, "https://ci.example.com/job/org-app/1/", 1, time.Now())
	require.NoError(t, err)

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, b.Status)
	assert.NotNil(t, b.StartedAt)
}

func TestMarkQueuedKeepsCallbackStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)
	_, err = s.MarkStarted(ctx, id, "https://ci.example.com/job/org-app/1/", 1, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.MarkQueued(ctx, id, "https://ci.example.com/queue/item/1/"))

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, b.Status)
	assert.Equal(t, "https://ci.example.com/queue/item/1/", b.Reference)
}

func TestMarkSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)
	require.NoError(t, s.MarkSkipped(ctx, id, time.Now()))

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, b.Status)
	assert.True(t, b.Completed())
}

func TestUpdateUnknownBuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.True(t, errors.Is(s.MarkQueued(ctx, 42, "ref"), ErrNotFound))
	_, err := s.MarkStarted(ctx, 42, "", 1, time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.MarkCompleted(ctx, 42, true, "", 1, time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFirstOutcomeWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	completedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)
	changed, err := s.MarkCompleted(ctx, id, true, "https://ci.example.com/job/org-app/1/", 1, completedAt)
	require.NoError(t, err)
	assert.True(t, changed)

	// FINALIZED follows COMPLETED for the same build
	changed, err = s.MarkCompleted(ctx, id, false, "", 1, completedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	// a late STARTED must not reopen it
	changed, err = s.MarkStarted(ctx, id, "", 1, completedAt.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, b.Status)
	require.NotNil(t, b.CompletedAt)
	assert.True(t, completedAt.Equal(*b.CompletedAt))
}

func TestCallbacksIgnoredForSkippedBuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateBuild(ctx, newBuild())
	require.NoError(t, err)
	require.NoError(t, s.MarkSkipped(ctx, id, time.Now()))

	changed, err := s.MarkCompleted(ctx, id, false, "", 1, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, b.Status)
}

func TestListBuilds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateBuild(ctx, newBuild())
		require.NoError(t, err)
	}

	builds, err := s.ListBuilds(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, int64(5), builds[0].ID)
	assert.Equal(t, int64(4), builds[1].ID)

	builds, err = s.ListBuilds(ctx, 10, 4)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, int64(1), builds[0].ID)
}

func TestAuditLogs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, result := range []string{models.ResultSuccess, models.ResultFailed, models.ResultSkipped} {
		require.NoError(t, s.InsertAuditLog(ctx, models.AuditLog{
			Timestamp: time.Now(),
			APIKey:    "key",
			Method:    "POST",
			Path:      "/api/v1/builds",
			Status:    200 + i,
			Action:    models.ActionTrigger,
			Target:    "org/app/main",
			Result:    result,
		}))
	}

	logs, err := s.GetAuditLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.ResultSkipped, logs[0].Result)
	assert.Equal(t, models.ActionTrigger, logs[0].Action)
	assert.Equal(t, "org/app/main", logs[0].Target)
	assert.False(t, logs[0].Timestamp.IsZero())

	logs, err = s.GetAuditLogs(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].Result)
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping())
}
