package simulated

import (
	"context"
	"fmt"
	"sync"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
)

// Job is a job definition held by JobCreator
type Job struct {
	Name         string
	RepoURI      string
	TemplatePath string
}

// JobCreator keeps job definitions in memory instead of provisioning them
type JobCreator struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewJobCreator creates an empty JobCreator
func NewJobCreator() *JobCreator {
	return &JobCreator{jobs: make(map[string]Job)}
}

// Run creates or replaces the named job
func (j *JobCreator) Run(_ context.Context, name, repoURI, templatePath string) error {
	if name == "" {
		return fmt.Errorf("%w: job name cannot be empty", engine.ErrProvision)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[name] = Job{Name: name, RepoURI: repoURI, TemplatePath: templatePath}

	logger.Debug("Simulated job provisioned", "job", name, "repo", repoURI)
	return nil
}

// Jobs returns the current job definitions keyed by name
func (j *JobCreator) Jobs() map[string]Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[string]Job, len(j.jobs))
	for name, job := range j.jobs {
		out[name] = job
	}
	return out
}
