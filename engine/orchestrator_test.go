package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/identity"
	"github.com/propintel/harvest/models"
)

// stubEngine replays a scripted sequence of outcomes and records every
// request it receives.
type stubEngine struct {
	name  string
	shell bool // LooksLikeShell verdict for successful responses

	mu       sync.Mutex
	requests []FetchRequest
	script   []stubOutcome
}

type stubOutcome struct {
	result *FetchResult
	err    error
	block  bool // wait for ctx cancellation instead of returning
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, *req)
	var out stubOutcome
	if len(s.script) > 0 {
		out = s.script[0]
		if len(s.script) > 1 {
			s.script = s.script[1:]
		}
	}
	s.mu.Unlock()

	if out.block {
		<-ctx.Done()
		return nil, models.NewError(models.ErrCodeNetwork, "aborted", ctx.Err())
	}
	return out.result, out.err
}

func (s *stubEngine) LooksLikeShell(string) bool { return s.shell }

func (s *stubEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubEngine) request(i int) FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func okResult(name string) *FetchResult {
	return &FetchResult{HTML: "<html><body>rendered content</body></html>", EngineName: name, StatusCode: 200}
}

func orchestratorConfig() config.FetchConfig {
	return config.FetchConfig{
		AttemptTimeout: time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     2 * time.Millisecond,
	}
}

func newTestOrchestrator(light, render Engine, hosts *config.HostsConfig) *Orchestrator {
	if hosts == nil {
		hosts = &config.HostsConfig{}
	}
	o := NewOrchestrator(light, render, identity.NewPool(), orchestratorConfig(), hosts)
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

func TestOrchestratorLightweightSuccess(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{{result: okResult("http")}}}
	render := &stubEngine{name: "browser"}
	o := newTestOrchestrator(light, render, nil)

	result, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	assert.Equal(t, "http", result.EngineName)
	assert.Equal(t, 1, light.calls())
	assert.Equal(t, 0, render.calls())
}

func TestOrchestratorSoftBlockEscalatesImmediately(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{
		{err: models.NewError(models.ErrCodeAntiBot, "soft-block signature (status 403)", nil)},
	}}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o := newTestOrchestrator(light, render, nil)

	result, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	assert.Equal(t, "browser", result.EngineName)
	// No lightweight retries after a soft-block: they would only feed the
	// blocker more samples of the same fingerprint.
	assert.Equal(t, 1, light.calls())
	assert.Equal(t, 1, render.calls())
}

func TestOrchestratorRetriesThenEscalates(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{
		{err: models.NewError(models.ErrCodeNetwork, "request failed", nil)},
	}}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o := newTestOrchestrator(light, render, nil)

	result, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	assert.Equal(t, "browser", result.EngineName)
	assert.Equal(t, 3, light.calls(), "full lightweight retry budget first")
}

func TestOrchestratorShellResponseEscalates(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", shell: true, script: []stubOutcome{{result: okResult("http")}}}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o := newTestOrchestrator(light, render, nil)

	result, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	assert.Equal(t, "browser", result.EngineName)
	assert.Equal(t, 1, light.calls())
}

func TestOrchestratorShellWithoutFallbackIsRenderingUnavailable(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", shell: true, script: []stubOutcome{{result: okResult("http")}}}

	// No rendering transport at all.
	o := newTestOrchestrator(light, nil, nil)
	_, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeRenderingDown, models.CodeOf(err),
		"a page that merely needs client-side rendering is not an anti-bot wall")

	// Rendering available but forced off by the caller.
	light2 := &stubEngine{name: "http", shell: true, script: []stubOutcome{{result: okResult("http")}}}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o2 := newTestOrchestrator(light2, render, nil)
	_, err = o2.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyHTTP})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeRenderingDown, models.CodeOf(err))
	assert.Equal(t, 0, render.calls())
}

func TestOrchestratorClampsZeroAttemptBudget(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{{result: okResult("http")}}}
	cfg := orchestratorConfig()
	cfg.MaxAttempts = 0
	o := NewOrchestrator(light, &stubEngine{name: "browser"}, identity.NewPool(), cfg, &config.HostsConfig{})
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	result, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, light.calls(), "a zero budget still gets one attempt")
}

func TestOrchestratorHTTPStrategyNeverEscalates(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{
		{err: models.NewError(models.ErrCodeAntiBot, "soft-block", nil)},
	}}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o := newTestOrchestrator(light, render, nil)

	_, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyHTTP})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeAntiBot, models.CodeOf(err))
	assert.Equal(t, 0, render.calls())
}

func TestOrchestratorBrowserStrategySkipsLightweight(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http"}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o := newTestOrchestrator(light, render, nil)

	result, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyBrowser})

	require.NoError(t, err)
	assert.Equal(t, "browser", result.EngineName)
	assert.Equal(t, 0, light.calls())
}

func TestOrchestratorHostRuleForcesRendering(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http"}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	hosts := &config.HostsConfig{Rules: []config.HostRule{{
		Suffix:              "heavy.example",
		RequiresRendering:   true,
		AllowHeavyResources: true,
		ExtraWait:           time.Second,
	}}}
	o := newTestOrchestrator(light, render, hosts)

	_, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://www.heavy.example/listing/1", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	assert.Equal(t, 0, light.calls())
	require.Equal(t, 1, render.calls())
	assert.True(t, render.request(0).AllowHeavyResources)
	assert.Equal(t, time.Second, render.request(0).ExtraWait)
}

func TestOrchestratorDeadlineIsTerminal(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{{block: true}}}
	render := &stubEngine{name: "browser", script: []stubOutcome{{result: okResult("browser")}}}
	o := newTestOrchestrator(light, render, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := o.Run(ctx, &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
	assert.Equal(t, 1, light.calls(), "the in-flight attempt is torn down, not retried")
	assert.Equal(t, 0, render.calls(), "no escalation past the deadline")
	assert.Less(t, time.Since(start), 300*time.Millisecond, "deadline enforced with small overhead")
}

func TestOrchestratorIdentityRotation(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{
		{err: models.NewError(models.ErrCodeNetwork, "request failed", nil)},
		{result: okResult("http")},
	}}
	o := newTestOrchestrator(light, &stubEngine{name: "browser"}, nil)

	_, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	require.Equal(t, 2, light.calls())
	assert.False(t, light.request(0).Identity.Mobile, "first attempt presents a desktop identity")
	assert.True(t, light.request(1).Identity.Mobile, "retries diversify to mobile")
}

func TestOrchestratorPreferMobileRule(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{{result: okResult("http")}}}
	hosts := &config.HostsConfig{Rules: []config.HostRule{{Suffix: "mobilefirst.example", PreferMobile: true}}}
	o := newTestOrchestrator(light, &stubEngine{name: "browser"}, hosts)

	_, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://mobilefirst.example/x", Strategy: models.StrategyAuto})

	require.NoError(t, err)
	require.Equal(t, 1, light.calls())
	assert.True(t, light.request(0).Identity.Mobile)
}

func TestOrchestratorRenderingUnavailable(t *testing.T) {
	t.Parallel()

	light := &stubEngine{name: "http", script: []stubOutcome{
		{err: models.NewError(models.ErrCodeAntiBot, "soft-block", nil)},
	}}
	o := newTestOrchestrator(light, nil, nil)

	_, err := o.Run(context.Background(), &models.AcquireRequest{URL: "https://example.com/a", Strategy: models.StrategyAuto})

	require.Error(t, err)
	assert.Equal(t, models.ErrCodeAntiBot, models.CodeOf(err), "lightweight outcome survives when no fallback exists")
}
