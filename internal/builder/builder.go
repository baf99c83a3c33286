// Package builder decides whether a build request reaches the CI server and dispatches
// it through the current strategy: the live Jenkins runner or an in-memory simulation.
package builder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"buildrelay/internal/config"
	"buildrelay/internal/engine"
	"buildrelay/internal/engine/jenkins"
	"buildrelay/internal/engine/simulated"
	"buildrelay/internal/logger"
	"buildrelay/internal/metrics"
	"buildrelay/internal/notify"
)

// Mode is the strategy a Client dispatches builds through
type Mode int

const (
	// ModeLive dispatches to the Jenkins server
	ModeLive Mode = iota
	// ModeSimulatedGreen records builds in memory and completes them successfully
	ModeSimulatedGreen
	// ModeSimulatedRed records builds in memory and completes them as failures
	ModeSimulatedRed
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulatedGreen:
		return "simulated-green"
	case ModeSimulatedRed:
		return "simulated-red"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Option configures a Client
type Option func(*Client)

// WithNotifier sets the chat service used to announce skipped builds
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithSkipSource sets where skip settings are read from on every dispatch
func WithSkipSource(source func() engine.SkipSettings) Option {
	return func(c *Client) { c.skipSource = source }
}

// WithTimeout bounds every request to the Jenkins server. The default is no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithApp sets the handler simulated builds deliver their callbacks to
func WithApp(app http.Handler) Option {
	return func(c *Client) { c.app = app }
}

// Client is the build façade. Callers must serialize mode switches with dispatches
// when they need a switch to apply to a specific request.
type Client struct {
	url         *url.URL
	callbackURL *url.URL
	timeout     time.Duration
	api         *jenkins.Client
	notifier    notify.Notifier
	skipSource  func() engine.SkipSettings

	mu         sync.Mutex
	app        http.Handler
	mode       Mode
	strategy   engine.Strategy
	jobCreator engine.Provisioner
}

// New creates a Client for the Jenkins server at serverURL whose jobs report to callbackURL
func New(serverURL, callbackURL string, opts ...Option) (*Client, error) {
	server, err := parseAbsolute(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%w: server url: %w", engine.ErrConfiguration, err)
	}
	callback, err := parseAbsolute(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%w: callback url: %w", engine.ErrConfiguration, err)
	}
	// Jenkins must be told the same path the callback route is served on
	callback.Path = engine.CallbackPath(callbackURL)
	callback.RawPath = ""

	c := &Client{
		url:         server,
		callbackURL: callback,
		notifier:    notify.Log{},
		skipSource:  config.SkipFromEnv,
		mode:        ModeLive,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.api, err = jenkins.NewClient(serverURL, c.timeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute URL", raw)
	}
	return u, nil
}

// URL returns the Jenkins server URL with any password masked, safe to log
func (c *Client) URL() string {
	return c.url.Redacted()
}

// CallbackURL returns the URL Jenkins jobs report build phases to
func (c *Client) CallbackURL() string {
	return c.callbackURL.String()
}

// SetApp sets the handler simulated builds deliver callbacks to.
// It applies to strategies created by later calls to Green or Red.
func (c *Client) SetApp(app http.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.app = app
}

// Mode returns the current strategy mode
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Run dispatches req unless its commit message carries the skip marker.
// The returned bool is false when the build was skipped.
func (c *Client) Run(ctx context.Context, req engine.BuildRequest) (engine.BuildReference, bool, error) {
	skip, err := c.skip(ctx, req)
	if err != nil {
		return "", false, err
	}
	if skip {
		metrics.BuildsSkipped.Inc()
		return "", false, nil
	}

	strategy, mode := c.ensureStrategy()
	ref, err := strategy.Run(ctx, req)
	if err != nil {
		metrics.DispatchErrors.WithLabelValues(mode.String()).Inc()
		return "", false, err
	}

	metrics.BuildsDispatched.WithLabelValues(mode.String()).Inc()
	return ref, true, nil
}

// skip evaluates the skip policy with freshly read settings and announces a skip.
// A failed announcement fails the whole check.
func (c *Client) skip(ctx context.Context, req engine.BuildRequest) (bool, error) {
	if !ShouldSkip(c.skipSource(), req) {
		return false, nil
	}

	logger.Info("Sending skip message to chat service", "repo", req.RepoName, "branch", req.BranchName, "room", req.RoomID)
	if err := c.notifier.Speak(ctx, skipMessage(req), req.RoomID); err != nil {
		return false, fmt.Errorf("announce skipped build of %s/%s: %w", req.RepoName, req.BranchName, err)
	}
	logger.Info("Skip marker found, skipping build", "repo", req.RepoName, "branch", req.BranchName)
	return true, nil
}

// Output returns the console log of the build at ref using the current strategy
func (c *Client) Output(ctx context.Context, ref engine.BuildReference) (string, error) {
	strategy, _ := c.ensureStrategy()
	return strategy.Output(ctx, ref)
}

// Setup creates or updates the CI job name for repoURI from the template at templatePath
func (c *Client) Setup(ctx context.Context, name, repoURI, templatePath string) error {
	creator, mode := c.ensureJobCreator()
	err := creator.Run(ctx, name, repoURI, templatePath)
	metrics.JobProvisions.WithLabelValues(mode.String(), metrics.Result(err)).Inc()
	return err
}

// Green switches to the simulated strategy and job creator; builds complete successfully
func (c *Client) Green() {
	c.simulate(ModeSimulatedGreen)
}

// Red switches to the simulated strategy and job creator; builds complete as failures
func (c *Client) Red() {
	c.simulate(ModeSimulatedRed)
}

func (c *Client) simulate(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode
	c.strategy = simulated.New(mode == ModeSimulatedGreen, c.app, c.callbackURL.String())
	c.jobCreator = simulated.NewJobCreator()
	logger.Info("Switched build strategy", "mode", mode.String())
}

// Start replays the started callback for the latest simulated build
func (c *Client) Start(ctx context.Context) error {
	sim, err := c.simulator()
	if err != nil {
		return err
	}
	return sim.Start(ctx)
}

// Complete replays the completed callback for the latest simulated build
func (c *Client) Complete(ctx context.Context) error {
	sim, err := c.simulator()
	if err != nil {
		return err
	}
	return sim.Complete(ctx)
}

func (c *Client) simulator() (engine.Simulator, error) {
	strategy, mode := c.ensureStrategy()
	sim, ok := strategy.(engine.Simulator)
	if !ok {
		return nil, fmt.Errorf("%w: strategy is %s", engine.ErrTestModeMisuse, mode)
	}
	return sim, nil
}

// ensureStrategy returns the current strategy, creating the live runner on first use
func (c *Client) ensureStrategy() (engine.Strategy, Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.strategy == nil {
		c.strategy = jenkins.NewRunner(c.api)
	}
	return c.strategy, c.mode
}

// ensureJobCreator returns the current job creator, creating the live one on first use
func (c *Client) ensureJobCreator() (engine.Provisioner, Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jobCreator == nil {
		c.jobCreator = jenkins.NewJobCreator(c.api, c.callbackURL.String())
	}
	return c.jobCreator, c.mode
}
