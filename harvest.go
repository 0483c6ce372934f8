// Package harvest acquires the rendered content of a public web page
// under adversarial conditions and turns it into a normalized document of
// text plus image metadata.
//
// The pipeline is: host safety filter -> fetch orchestrator (lightweight
// HTTP with a browser-fingerprint TLS stack, escalating to a headless
// browser on soft-block signals) -> content normalizer.
package harvest

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/engine"
	"github.com/propintel/harvest/hostcheck"
	"github.com/propintel/harvest/identity"
	"github.com/propintel/harvest/models"
	"github.com/propintel/harvest/normalize"
	"github.com/propintel/harvest/scraper"
)

// runner is the orchestrator seam, stubbed in tests.
type runner interface {
	Run(ctx context.Context, req *models.AcquireRequest) (*engine.FetchResult, error)
}

// Client is the public entry point. One Client serves any number of
// concurrent acquisitions; calls share only the read-only identity pool,
// configuration, and the (lazily launched) browser.
type Client struct {
	cfg        *config.Config
	checker    *hostcheck.Checker
	orch       runner
	scraper    *scraper.Scraper
	normalizer *normalize.Normalizer
}

// New builds a Client from configuration. No browser is launched until
// the first acquisition that needs rendering.
func New(cfg *config.Config) *Client {
	sc := scraper.NewScraper(cfg.Browser, cfg.Detection)
	pool := identity.NewPool()

	light := engine.NewHTTPEngine(cfg.Fetch, cfg.Detection)
	render := engine.NewRenderEngine(sc.Render)

	return &Client{
		cfg:        cfg,
		checker:    hostcheck.New(cfg.Hosts.Denylist),
		orch:       engine.NewOrchestrator(light, render, pool, cfg.Fetch, &cfg.Hosts),
		scraper:    sc,
		normalizer: normalize.New(cfg.Detection),
	}
}

// Close releases the browser process, if one was ever launched.
func (c *Client) Close() {
	c.scraper.Close()
}

// Acquire fetches the URL and returns its normalized document.
func (c *Client) Acquire(ctx context.Context, req *models.AcquireRequest) (*models.NormalizedDocument, error) {
	result, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	base := result.FinalURL
	if base == "" {
		base = req.URL
	}
	// Normalization failures (an unparseable final URL, a broken reader)
	// are not transport faults; they surface as-is.
	doc, err := c.normalizer.Normalize(result.HTML, base)
	if err != nil {
		return nil, err
	}
	if doc.Title == "" {
		doc.Title = result.Title
	}
	return doc, nil
}

// AcquireRaw fetches the URL and returns the raw markup, for callers that
// only need unprocessed content.
func (c *Client) AcquireRaw(ctx context.Context, req *models.AcquireRequest) (string, error) {
	result, err := c.fetch(ctx, req)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

// AcquireMarkdown fetches the URL and returns the main content rendered
// as Markdown.
func (c *Client) AcquireMarkdown(ctx context.Context, req *models.AcquireRequest) (string, error) {
	result, err := c.fetch(ctx, req)
	if err != nil {
		return "", err
	}
	base := result.FinalURL
	if base == "" {
		base = req.URL
	}
	md, err := c.normalizer.RenderMarkdown(result.HTML, base)
	if err != nil {
		return "", err
	}
	return md, nil
}

// fetch runs the pre-flight checks and the orchestrator under the
// request deadline. The checks fail fast: no network I/O happens for an
// unsupported scheme or a blocked host.
func (c *Client) fetch(ctx context.Context, req *models.AcquireRequest) (*engine.FetchResult, error) {
	req.Defaults(c.cfg.Fetch.DefaultDeadline)

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, models.NewError(models.ErrCodeUnsupportedProtocol, "unparseable URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, models.NewError(models.ErrCodeUnsupportedProtocol, "scheme must be http or https", nil)
	}

	if res := c.checker.Check(ctx, u.Hostname()); res.Blocked {
		slog.Debug("host blocked", "host", u.Hostname(), "reason", res.Reason)
		return nil, models.NewError(models.ErrCodeBlockedHost, res.Reason, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Deadline)
	defer cancel()

	start := time.Now()
	result, err := c.orch.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	slog.Info("acquisition complete",
		"url", req.URL,
		"engine", result.EngineName,
		"bytes", len(result.HTML),
		"elapsed", time.Since(start),
	)
	return result, nil
}
