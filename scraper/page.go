package scraper

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/propintel/harvest/engine"
	"github.com/propintel/harvest/models"
)

// Render is the rendering transport entry point (wired into the
// orchestrator as an engine.RenderFunc).
//
// Lifecycle:
//
//  1. Lazy browser launch    – first render pays for Chrome, later ones reuse it
//  2. Acquire page           – borrow a tab from the pool
//  3. DEFER: cleanup         – about:blank + return to pool (leak prevention)
//  4. Stealth injection      – mask navigator.webdriver etc. (before navigation!)
//  5. Identity               – user-agent override, headers, randomized viewport
//  6. Hijack mount           – block heavy resources unless the host needs them
//  7. Navigate + DOM stable  – bounded by the navigation timeout
//  8. Humanize               – consent dismissal, pointer drift, scrolling
//  9. Readiness loop         – poll title/body until real content or deadline
//  10. Extract               – page.HTML() + title + final URL
//
// Steps 4-6 must precede 7: stealth JS and request interception only apply
// to navigations that happen after they are installed. Step 3 uses the
// ORIGINAL page reference (no request context) so cleanup succeeds even
// after the request deadline has expired.
func (s *Scraper) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	if err := s.ensureBrowser(); err != nil {
		return nil, err
	}

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewError(models.ErrCodeRenderingDown, "failed to acquire page from pool", acquireErr)
	}

	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	s.applyIdentity(page, req)

	var router *rod.HijackRouter
	if !req.AllowHeavyResources {
		router = setupHijack(page, s.browserCfg.BlockedResourceTypes)
	}
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	navCtx, navCancel := context.WithTimeout(ctx, s.browserCfg.NavigationTimeout)
	defer navCancel()
	if navErr := page.Context(navCtx).Navigate(req.URL); navErr != nil {
		return nil, categorizeRenderError(navErr, "navigation to target URL failed")
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	humanize(ctx, p)

	probe := &rodProbe{page: p}
	err := awaitReadiness(ctx, probe, readinessParams{
		deadline:           s.det.ReadinessDeadline,
		poll:               s.det.ReadinessPoll,
		interstitialTitles: s.det.InterstitialTitles,
		minBodyLen:         s.det.MinVisibleText,
	})
	if err != nil {
		return nil, categorizeRenderError(err, "content readiness wait failed")
	}

	if req.ExtraWait > 0 {
		select {
		case <-ctx.Done():
			return nil, categorizeRenderError(ctx.Err(), "extra wait aborted")
		case <-time.After(req.ExtraWait):
		}
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeRenderError(htmlErr, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &engine.FetchResult{
		HTML:     rawHTML,
		Title:    title,
		FinalURL: finalURL,
	}, nil
}

// applyIdentity sets the user agent, a plausible referer, the identity's
// header set, and a randomized realistic viewport.
func (s *Scraper) applyIdentity(page *rod.Page, req *engine.FetchRequest) {
	if req.Identity.UserAgent != "" {
		_ = (proto.NetworkSetUserAgentOverride{
			UserAgent:      req.Identity.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}).Call(page)
	}

	extraHeaders := make(map[string]string, len(req.Identity.Headers)+1)
	if u, parseErr := url.Parse(req.URL); parseErr == nil {
		extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	for k, v := range req.Identity.Headers {
		extraHeaders[k] = v
	}
	if len(extraHeaders) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(extraHeaders),
		}.Call(page)
	}

	width, height := 1280+rand.IntN(640), 720+rand.IntN(360)
	mobile := req.Identity.Mobile
	if mobile {
		width, height = 360+rand.IntN(80), 740+rand.IntN(160)
	}
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  width,
		Height: height,
		Mobile: mobile,
	})
}

// rodProbe samples a live page for the readiness loop. Evaluation calls
// are retried transparently when a concurrent navigation destroys the
// page's execution context, up to evalRetryCap.
type rodProbe struct {
	page *rod.Page
}

const evalRetryCap = 3

func (r *rodProbe) Sample(ctx context.Context) (ReadinessSample, error) {
	p := r.page.Context(ctx)

	return sampleWithRetry(func() (ReadinessSample, error) {
		res, err := p.Eval(`() => ({
			title: document.title || "",
			bodyLen: (document.body && document.body.innerText || "").trim().length,
		})`)
		if err != nil {
			return ReadinessSample{}, err
		}
		return ReadinessSample{
			Title:   res.Value.Get("title").Str(),
			BodyLen: res.Value.Get("bodyLen").Int(),
		}, nil
	})
}

// sampleWithRetry runs eval up to evalRetryCap times, retrying only the
// transient destroyed-context condition. Any other failure is final on
// first sight.
func sampleWithRetry(eval func() (ReadinessSample, error)) (ReadinessSample, error) {
	var lastErr error
	for i := 0; i < evalRetryCap; i++ {
		sample, err := eval()
		if err == nil {
			return sample, nil
		}
		lastErr = err
		if !isContextDestroyed(err) {
			break
		}
	}
	return ReadinessSample{}, lastErr
}

func (r *rodProbe) Reload(ctx context.Context) error {
	p := r.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return err
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("reload: WaitDOMStable did not converge", "error", err)
	}
	return nil
}

// isContextDestroyed matches the transient CDP condition raised when a
// navigation invalidates the page's JS world mid-evaluation.
func isContextDestroyed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "context was destroyed") ||
		strings.Contains(msg, "Cannot find context with specified id") ||
		strings.Contains(msg, "Execution context was destroyed")
}

// evalStringOrEmpty evaluates a JS expression and returns the string
// result, swallowing errors (optional metadata only).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders
// type (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeRenderError wraps raw rod errors into the classified taxonomy.
func categorizeRenderError(err error, msg string) error {
	switch {
	case models.CodeOf(err) != "":
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewError(models.ErrCodeNetwork, msg, err)
	}
}
