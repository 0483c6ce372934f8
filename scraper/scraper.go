// Package scraper is the rendering transport: it drives a headless
// browser to load pages that defeat the lightweight path, simulates human
// interaction, and polls until the page shows real content instead of an
// interstitial verification screen.
package scraper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/models"
)

// Scraper manages the browser lifecycle and the page pool. The browser is
// launched lazily on the first render so lightweight-only runs never pay
// for Chrome. Safe for concurrent use.
type Scraper struct {
	browserCfg config.BrowserConfig
	det        config.DetectionConfig

	launchOnce sync.Once
	launchErr  error
	browser    *rod.Browser
	pagePool   rod.Pool[rod.Page]
	startTime  time.Time
}

// NewScraper prepares a Scraper. No browser process is started yet.
func NewScraper(browserCfg config.BrowserConfig, det config.DetectionConfig) *Scraper {
	return &Scraper{
		browserCfg: browserCfg,
		det:        det,
		startTime:  time.Now(),
	}
}

// ensureBrowser launches and connects the browser exactly once. A failed
// launch is sticky: every later render reports RENDERING_UNAVAILABLE.
func (s *Scraper) ensureBrowser() error {
	s.launchOnce.Do(func() {
		l := launcher.New().
			Headless(s.browserCfg.Headless).
			NoSandbox(s.browserCfg.NoSandbox)

		if s.browserCfg.Bin != "" {
			l = l.Bin(s.browserCfg.Bin)
		}
		if s.browserCfg.Proxy != "" {
			l = l.Proxy(s.browserCfg.Proxy)
		}

		// Flags that strip the obvious automation fingerprint.
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-ipc-flooding-protection"))
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-prompt-on-repost"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))
		l.Set(flags.Flag("lang"), "en-US")

		controlURL, err := l.Launch()
		if err != nil {
			s.launchErr = models.NewError(models.ErrCodeRenderingDown, "failed to launch browser", err)
			return
		}
		slog.Info("browser launched", "controlURL", controlURL)

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			s.launchErr = models.NewError(models.ErrCodeRenderingDown, "failed to connect to browser", err)
			return
		}

		s.browser = browser
		s.pagePool = rod.NewPagePool(s.browserCfg.MaxPages)
		slog.Info("page pool created", "maxPages", s.browserCfg.MaxPages)
	})
	return s.launchErr
}

// Close drains the page pool and kills the browser process, if one was
// ever launched. Call on shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	if s.browser == nil {
		return
	}
	slog.Info("scraper shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("scraper shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("scraper shutdown complete")
}
