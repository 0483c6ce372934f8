package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/identity"
	"github.com/propintel/harvest/models"
)

// shellChecker is implemented by the lightweight transport so the
// orchestrator can escalate "successful" responses that are really
// unrendered shells.
type shellChecker interface {
	LooksLikeShell(html string) bool
}

// errUnrenderedShell marks a lightweight success whose markup is an empty
// client-side shell. It is an internal escalation signal: when no
// rendering fallback exists it surfaces as RENDERING_UNAVAILABLE, never
// as an anti-bot verdict.
var errUnrenderedShell = errors.New("response is an unrendered client-side shell")

// Orchestrator composes the lightweight and rendering transports into the
// escalation state machine:
//
//	LightweightAttempt -> (Success | SoftBlocked | HardFailed)
//	                   -> RenderingFallback (at most once)
//	                   -> (Success | HardFailed)
//
// Attempts within one call are strictly sequential; the caller's context
// deadline is the hard ceiling over everything.
type Orchestrator struct {
	light  Engine
	render Engine
	ids    *identity.Pool
	cfg    config.FetchConfig
	hosts  *config.HostsConfig

	// sleep is injectable for tests; defaults to a context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the transports. render may be nil, in which case
// escalation fails with the lightweight outcome.
func NewOrchestrator(light, render Engine, ids *identity.Pool, cfg config.FetchConfig, hosts *config.HostsConfig) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		light:  light,
		render: render,
		ids:    ids,
		cfg:    cfg,
		hosts:  hosts,
		sleep:  sleepCtx,
	}
}

// Run executes one acquisition under the caller's deadline and returns the
// raw markup result or a terminal classified error.
func (o *Orchestrator) Run(ctx context.Context, req *models.AcquireRequest) (*FetchResult, error) {
	rid := uuid.NewString()[:8]
	log := slog.With("rid", rid, "url", req.URL)

	hostname := ""
	if u, err := url.Parse(req.URL); err == nil {
		hostname = u.Hostname()
	}
	rule := o.hosts.RuleFor(hostname)

	startBrowser := req.Strategy == models.StrategyBrowser ||
		(req.Strategy == models.StrategyAuto && rule != nil && rule.RequiresRendering)

	if !startBrowser {
		result, err := o.lightweightPhase(ctx, req, rule, log)
		if err == nil {
			return result, nil
		}
		if req.Strategy == models.StrategyHTTP || o.render == nil {
			return nil, o.terminal(ctx, err)
		}
		// Only the caller's deadline stops escalation; a timed-out attempt
		// is just another reason to try the heavier transport.
		if ctx.Err() != nil {
			return nil, o.terminal(ctx, err)
		}
		log.Info("escalating to rendering transport", "reason", escalationReason(err))
	}

	return o.renderingPhase(ctx, req, rule, log)
}

// lightweightPhase runs up to MaxAttempts lightweight fetches with human
// pauses, exponential backoff, and identity rotation. A soft-block or a
// shell-looking success aborts the loop early so escalation can take over
// instead of burning retries on a doomed strategy.
func (o *Orchestrator) lightweightPhase(ctx context.Context, req *models.AcquireRequest, rule *config.HostRule, log *slog.Logger) (*FetchResult, error) {
	var lastErr error

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 1 {
			if err := o.sleep(ctx, o.attemptDelay(attempt)); err != nil {
				return nil, err
			}
		}

		fetchReq := &FetchRequest{
			URL:      req.URL,
			Identity: o.pickIdentity(attempt, rule),
			Timeout:  o.cfg.AttemptTimeout,
		}

		result, err := o.light.Fetch(ctx, fetchReq)
		if err == nil {
			if sc, ok := o.light.(shellChecker); ok && sc.LooksLikeShell(result.HTML) {
				log.Debug("lightweight response looks like an unrendered shell",
					"attempt", attempt, "bytes", len(result.HTML))
				return nil, errUnrenderedShell
			}
			log.Debug("lightweight fetch succeeded", "attempt", attempt, "status", result.StatusCode)
			return result, nil
		}

		if models.CodeOf(err) == models.ErrCodeAntiBot {
			log.Debug("soft-block detected", "attempt", attempt)
			return nil, err
		}

		log.Debug("lightweight attempt failed", "attempt", attempt, "error", err)
		lastErr = err
	}

	return nil, lastErr
}

// renderingPhase runs the single rendering fallback. A soft-block signature
// surviving a full render is terminal anti-bot.
func (o *Orchestrator) renderingPhase(ctx context.Context, req *models.AcquireRequest, rule *config.HostRule, log *slog.Logger) (*FetchResult, error) {
	if o.render == nil {
		return nil, models.NewError(models.ErrCodeRenderingDown, "no rendering transport available", nil)
	}

	fetchReq := &FetchRequest{
		URL:      req.URL,
		Identity: o.pickIdentity(1, rule),
	}
	if rule != nil {
		fetchReq.AllowHeavyResources = rule.AllowHeavyResources
		fetchReq.ExtraWait = rule.ExtraWait
	}

	result, err := o.render.Fetch(ctx, fetchReq)
	if err != nil {
		log.Debug("rendering fallback failed", "error", err)
		return nil, o.terminal(ctx, err)
	}
	log.Debug("rendering fallback succeeded", "bytes", len(result.HTML))
	return result, nil
}

// pickIdentity rotates desktop -> mobile after the first failed attempt;
// host rules can prefer mobile from the start.
func (o *Orchestrator) pickIdentity(attempt int, rule *config.HostRule) identity.Identity {
	if rule != nil && rule.PreferMobile {
		return o.ids.NextMobile()
	}
	if attempt > 1 {
		return o.ids.NextMobile()
	}
	return o.ids.NextDesktop()
}

// attemptDelay is the randomized "human" pause plus exponential backoff
// with jitter for the given attempt number (attempt >= 2).
func (o *Orchestrator) attemptDelay(attempt int) time.Duration {
	pause := o.cfg.HumanPauseMin
	if span := o.cfg.HumanPauseMax - o.cfg.HumanPauseMin; span > 0 {
		pause += time.Duration(rand.Int64N(int64(span)))
	}

	backoff := o.cfg.BackoffBase << (attempt - 2)
	if backoff > o.cfg.BackoffCap || backoff <= 0 {
		backoff = o.cfg.BackoffCap
	}
	// Jitter: 50-150% of the computed backoff.
	backoff = time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	return pause + backoff
}

// terminal maps an internal failure to the classified outcome surfaced to
// callers. Deadline expiry always wins over whatever the transport was
// reporting when it was torn down.
func (o *Orchestrator) terminal(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewError(models.ErrCodeTimeout, "overall deadline exceeded", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) || err == context.Canceled {
		return models.NewError(models.ErrCodeTimeout, "request canceled", err)
	}
	if errors.Is(err, errUnrenderedShell) {
		return models.NewError(models.ErrCodeRenderingDown,
			"page requires rendering and no rendering transport is available", err)
	}
	if models.CodeOf(err) != "" {
		return err
	}
	return models.NewError(models.ErrCodeNetwork, "transport failure", err)
}

func escalationReason(err error) string {
	if errors.Is(err, errUnrenderedShell) {
		return "unrendered shell"
	}
	if code := models.CodeOf(err); code != "" {
		return code
	}
	return "retries exhausted"
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
