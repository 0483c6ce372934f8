package scraper

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// humanize performs the bounded human-simulation pass: dismiss consent
// banners, drift the pointer, and scroll incrementally so lazy content and
// behavioral bot scoring both see something resembling a person. Every
// step, including its pauses, is cancelled by the request context.
func humanize(ctx context.Context, p *rod.Page) {
	dismissConsent(ctx, p)
	pointerDrift(ctx, p)
	incrementalScroll(ctx, p)
}

// pause waits for d unless the request context ends first; reports whether
// the full pause elapsed.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// consentJS finds and clicks a consent/accept control, first by selector,
// then by button text. Returns whether anything was clicked.
const consentJS = `() => {
	const selectors = [
		"#onetrust-accept-btn-handler",
		"button[id*='accept']",
		"button[id*='consent']",
		"button[class*='accept']",
		"button[class*='consent']",
		".cookie-accept",
		"[data-consent='accept']",
		"[data-action='accept']",
	];
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (el && el.offsetParent !== null) {
			el.click();
			return true;
		}
	}
	const buttons = document.querySelectorAll("button, a, div[role='button']");
	for (const btn of buttons) {
		const text = (btn.textContent || "").toLowerCase().trim();
		if ((text.includes("accept") || text.includes("agree")) &&
			!text.includes("decline") && !text.includes("reject") &&
			btn.offsetParent !== null) {
			btn.click();
			return true;
		}
	}
	return false;
}`

func dismissConsent(ctx context.Context, p *rod.Page) {
	res, err := p.Eval(consentJS)
	if err != nil {
		slog.Debug("consent dismissal eval failed", "error", err)
		return
	}
	if res.Value.Bool() {
		slog.Debug("consent banner dismissed")
		pause(ctx, 500*time.Millisecond)
	}
}

// pointerDrift moves the mouse through a few random in-viewport points.
func pointerDrift(ctx context.Context, p *rod.Page) {
	res, err := p.Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return
	}
	w := float64(res.Value.Get("w").Int())
	h := float64(res.Value.Get("h").Int())
	if w <= 0 || h <= 0 {
		return
	}

	for i := 0; i < 3; i++ {
		if ctx.Err() != nil {
			return
		}
		x := w * (0.2 + 0.6*rand.Float64())
		y := h * (0.2 + 0.6*rand.Float64())
		if err := p.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
			return
		}
		if !pause(ctx, time.Duration(80+rand.IntN(170))*time.Millisecond) {
			return
		}
	}
}

// incrementalScroll pages down the viewport a few times with human pauses
// between steps, triggering lazy-loaded content along the way.
func incrementalScroll(ctx context.Context, p *rod.Page) {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return
	}
	step := float64(res.Value.Int())
	if step <= 0 {
		step = 600
	}

	for i := 0; i < 4; i++ {
		if ctx.Err() != nil {
			return
		}
		if err := p.Mouse.Scroll(0, step*(0.7+0.6*rand.Float64()), 0); err != nil {
			return
		}
		if !pause(ctx, time.Duration(250+rand.IntN(500))*time.Millisecond) {
			return
		}
	}

	// Back to the top so extraction sees the page as first painted.
	_, _ = p.Eval(`() => window.scrollTo(0, 0)`)
}
