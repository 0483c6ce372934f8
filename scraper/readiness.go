package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/propintel/harvest/models"
)

// ReadinessSample is one observation of a live page: its title and the
// extracted body text length. Recomputed every poll, never persisted.
type ReadinessSample struct {
	Title   string
	BodyLen int
}

// pageProbe abstracts the live page for the readiness loop so the state
// machine is testable without a browser.
type pageProbe interface {
	Sample(ctx context.Context) (ReadinessSample, error)
	Reload(ctx context.Context) error
}

// readinessParams bounds one readiness wait.
type readinessParams struct {
	deadline           time.Duration
	poll               time.Duration
	interstitialTitles []string
	minBodyLen         int
}

// isInterstitial reports whether a sample still looks like a transient
// verification screen: a known challenge title, or a body too short to be
// real content.
func isInterstitial(s ReadinessSample, titles []string, minBodyLen int) bool {
	lower := strings.ToLower(s.Title)
	for _, t := range titles {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return s.BodyLen < minBodyLen
}

// awaitReadiness polls the page until it is judged to contain real content
// or the readiness deadline elapses.
//
// A page observed as interstitial on two consecutive samples triggers one
// full reload to break a stuck challenge loop; never more than one. If the
// deadline elapses while the title still matches a challenge pattern the
// wall is considered terminal (anti-bot); a short body under a normal
// title degrades gracefully to whatever content is present.
func awaitReadiness(ctx context.Context, probe pageProbe, p readinessParams) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	reloaded := false
	interstitialStreak := 0
	var last ReadinessSample

	for {
		sample, err := probe.Sample(waitCtx)
		if err != nil {
			if waitCtx.Err() == nil {
				return err
			}
			// The readiness window closed mid-sample; judge the last
			// complete observation, same as the timer arm below.
			return settleReadiness(ctx, last, p)
		}
		last = sample

		if !isInterstitial(sample, p.interstitialTitles, p.minBodyLen) {
			return nil
		}
		interstitialStreak++

		if interstitialStreak >= 2 && !reloaded {
			if err := probe.Reload(waitCtx); err != nil {
				return err
			}
			reloaded = true
		}

		t := time.NewTimer(p.poll)
		select {
		case <-waitCtx.Done():
			t.Stop()
			return settleReadiness(ctx, last, p)
		case <-t.C:
		}
	}
}

// settleReadiness decides the terminal outcome once the readiness window
// has closed without a ready page. The caller's own deadline expiring
// always surfaces as-is; a surviving challenge title is an anti-bot wall;
// a thin body under a normal title degrades to whatever content loaded.
func settleReadiness(ctx context.Context, last ReadinessSample, p readinessParams) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if titleMatchesChallenge(last.Title, p.interstitialTitles) {
		return models.NewError(models.ErrCodeAntiBot, "interstitial persisted through rendering", nil)
	}
	return nil
}

func titleMatchesChallenge(title string, patterns []string) bool {
	lower := strings.ToLower(title)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
