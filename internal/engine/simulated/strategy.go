// Package simulated provides in-memory stand-ins for the Jenkins strategy and job creator.
// They never touch the network and replay CI callbacks against an in-process handler.
package simulated

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
)

const referencePrefix = "sim://builds/"

// Build is a build recorded by the simulated strategy
type Build struct {
	Number    int
	Request   engine.BuildRequest
	Reference engine.BuildReference
	Phase     string
	Status    string
}

// Strategy records builds and lets a test driver advance the latest one
type Strategy struct {
	green        bool
	app          http.Handler
	callbackPath string

	mu     sync.Mutex
	builds []*Build
	byRef  map[engine.BuildReference]*Build
}

// New creates a Strategy whose builds finish green or red. When app is non-nil,
// Start and Complete deliver notifications to it at the callback path of callbackURL.
func New(green bool, app http.Handler, callbackURL string) *Strategy {
	return &Strategy{
		green:        green,
		app:          app,
		callbackPath: engine.CallbackPath(callbackURL),
		byRef:        make(map[engine.BuildReference]*Build),
	}
}

// Run records the request and returns a synthetic reference
func (s *Strategy) Run(_ context.Context, req engine.BuildRequest) (engine.BuildReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	build := &Build{
		Number:    len(s.builds) + 1,
		Request:   req,
		Reference: engine.BuildReference(referencePrefix + uuid.NewString()),
		Phase:     engine.PhaseQueued,
	}
	s.builds = append(s.builds, build)
	s.byRef[build.Reference] = build

	logger.Debug("Simulated build queued", "repo", req.RepoName, "branch", req.BranchName, "reference", build.Reference)
	return build.Reference, nil
}

// Output returns a synthetic console log for a recorded build
func (s *Strategy) Output(_ context.Context, ref engine.BuildReference) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	build, ok := s.byRef[ref]
	if !ok {
		return "", fmt.Errorf("%w: unknown simulated build %q", engine.ErrOutputUnavailable, ref)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Simulated build #%d of %s/%s\n", build.Number, build.Request.RepoName, build.Request.BranchName)
	if build.Request.SHA1 != "" {
		fmt.Fprintf(&buf, "Checking out %s\n", build.Request.SHA1)
	}
	if build.Phase == engine.PhaseCompleted {
		fmt.Fprintf(&buf, "Finished: %s\n", build.Status)
	}
	return buf.String(), nil
}

// Start moves the latest build to the started phase and replays the callback
func (s *Strategy) Start(ctx context.Context) error {
	n, err := s.advance(engine.PhaseStarted, "")
	if err != nil {
		return err
	}
	return s.deliver(ctx, n)
}

// Complete finishes the latest build with the configured outcome and replays the callback
func (s *Strategy) Complete(ctx context.Context) error {
	status := engine.StatusFailure
	if s.green {
		status = engine.StatusSuccess
	}
	n, err := s.advance(engine.PhaseCompleted, status)
	if err != nil {
		return err
	}
	return s.deliver(ctx, n)
}

// Builds returns a snapshot of every recorded build, oldest first
func (s *Strategy) Builds() []Build {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Build, 0, len(s.builds))
	for _, b := range s.builds {
		out = append(out, *b)
	}
	return out
}

func (s *Strategy) advance(phase, status string) (engine.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.builds) == 0 {
		return engine.Notification{}, fmt.Errorf("%w: no build has been run", engine.ErrTestModeMisuse)
	}
	build := s.builds[len(s.builds)-1]
	build.Phase = phase
	build.Status = status

	jobName := build.Request.JobName()
	return engine.Notification{
		Name: jobName,
		URL:  "job/" + jobName + "/",
		Build: engine.NotificationBuild{
			FullURL: string(build.Reference),
			Number:  build.Number,
			Phase:   phase,
			Status:  status,
			URL:     fmt.Sprintf("job/%s/%d/", jobName, build.Number),
			Parameters: map[string]string{
				engine.ParamID:     strconv.FormatInt(build.Request.ID, 10),
				engine.ParamSHA1:   build.Request.SHA1,
				engine.ParamBranch: build.Request.BranchName,
				engine.ParamRoom:   build.Request.RoomID,
			},
		},
	}, nil
}

// deliver posts the notification to the in-process app the way Jenkins would
func (s *Strategy) deliver(ctx context.Context, n engine.Notification) error {
	if s.app == nil {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.callbackPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.RequestURI = s.callbackPath
	req.Header.Set("Content-Type", "application/json")
	rec := newResponseRecorder()
	s.app.ServeHTTP(rec, req)

	if rec.code < 200 || rec.code >= 300 {
		return fmt.Errorf("simulated %s callback for %s rejected: status %d: %s", n.Build.Phase, n.Name, rec.code, rec.body.String())
	}
	return nil
}

// responseRecorder captures what the app answers a replayed callback
type responseRecorder struct {
	header      http.Header
	code        int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), code: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.code = code
	r.wroteHeader = true
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}
