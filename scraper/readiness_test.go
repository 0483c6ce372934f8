package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propintel/harvest/models"
)

// scriptedProbe replays a fixed sequence of samples and records reloads.
type scriptedProbe struct {
	samples []ReadinessSample
	calls   int
	reloads int
}

func (s *scriptedProbe) Sample(_ context.Context) (ReadinessSample, error) {
	i := s.calls
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	s.calls++
	return s.samples[i], nil
}

func (s *scriptedProbe) Reload(_ context.Context) error {
	s.reloads++
	return nil
}

func fastParams() readinessParams {
	return readinessParams{
		deadline:           time.Second,
		poll:               time.Millisecond,
		interstitialTitles: []string{"just a moment", "checking your browser", "please wait", "verifying"},
		minBodyLen:         200,
	}
}

func longBody() int { return 5000 }

func TestAwaitReadiness_ReadyImmediately(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{samples: []ReadinessSample{
		{Title: "3 Bed House For Sale", BodyLen: longBody()},
	}}

	err := awaitReadiness(context.Background(), probe, fastParams())
	require.NoError(t, err)
	assert.Equal(t, 1, probe.calls)
	assert.Zero(t, probe.reloads)
}

func TestAwaitReadiness_InterstitialThenReady_OneReload(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{samples: []ReadinessSample{
		{Title: "Please Wait...", BodyLen: 40},
		{Title: "Please Wait...", BodyLen: 40},
		{Title: "3 Bed House For Sale", BodyLen: longBody()},
	}}

	err := awaitReadiness(context.Background(), probe, fastParams())
	require.NoError(t, err)
	assert.Equal(t, 3, probe.calls, "must succeed only at the third sample")
	assert.Equal(t, 1, probe.reloads, "exactly one reload")
}

func TestAwaitReadiness_PersistentInterstitialIsAntiBot(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{samples: []ReadinessSample{
		{Title: "Checking your browser before accessing", BodyLen: 20},
	}}

	p := fastParams()
	p.deadline = 20 * time.Millisecond
	p.poll = 2 * time.Millisecond

	err := awaitReadiness(context.Background(), probe, p)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeAntiBot, models.CodeOf(err))
	assert.LessOrEqual(t, probe.reloads, 1)
}

func TestAwaitReadiness_ShortBodyNormalTitleDegrades(t *testing.T) {
	t.Parallel()

	// A page that never grows past the body threshold but shows a real
	// title is returned as-is once the readiness window closes.
	probe := &scriptedProbe{samples: []ReadinessSample{
		{Title: "Tiny Listing", BodyLen: 50},
	}}

	p := fastParams()
	p.deadline = 20 * time.Millisecond
	p.poll = 2 * time.Millisecond

	err := awaitReadiness(context.Background(), probe, p)
	assert.NoError(t, err)
}

func TestAwaitReadiness_CallerDeadlineWins(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{samples: []ReadinessSample{
		{Title: "Please Wait...", BodyLen: 10},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	p := fastParams()
	p.deadline = time.Minute
	p.poll = 2 * time.Millisecond

	err := awaitReadiness(ctx, probe, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// stallProbe returns one scripted sample, then blocks until the sampling
// context ends, mimicking an eval caught by the expiring readiness window.
type stallProbe struct {
	first ReadinessSample
	calls int
}

func (s *stallProbe) Sample(ctx context.Context) (ReadinessSample, error) {
	s.calls++
	if s.calls == 1 {
		return s.first, nil
	}
	<-ctx.Done()
	return ReadinessSample{}, ctx.Err()
}

func (s *stallProbe) Reload(context.Context) error { return nil }

func TestAwaitReadiness_WindowClosesMidSample_ChallengeTitle(t *testing.T) {
	t.Parallel()

	probe := &stallProbe{first: ReadinessSample{Title: "Just a moment...", BodyLen: 30}}

	p := fastParams()
	p.deadline = 20 * time.Millisecond
	p.poll = 2 * time.Millisecond

	err := awaitReadiness(context.Background(), probe, p)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeAntiBot, models.CodeOf(err),
		"a wall observed before the window closed is anti-bot, not a timeout")
}

func TestAwaitReadiness_WindowClosesMidSample_NormalTitleDegrades(t *testing.T) {
	t.Parallel()

	probe := &stallProbe{first: ReadinessSample{Title: "Tiny Listing", BodyLen: 50}}

	p := fastParams()
	p.deadline = 20 * time.Millisecond
	p.poll = 2 * time.Millisecond

	assert.NoError(t, awaitReadiness(context.Background(), probe, p))
}

func TestAwaitReadiness_SampleFailurePropagates(t *testing.T) {
	t.Parallel()

	probe := &failingProbe{err: assert.AnError}

	err := awaitReadiness(context.Background(), probe, fastParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

type failingProbe struct {
	err error
}

func (f *failingProbe) Sample(context.Context) (ReadinessSample, error) {
	return ReadinessSample{}, f.err
}

func (f *failingProbe) Reload(context.Context) error { return nil }

func TestIsInterstitial(t *testing.T) {
	t.Parallel()

	titles := []string{"just a moment", "please wait"}

	tests := []struct {
		name   string
		sample ReadinessSample
		want   bool
	}{
		{"challenge title", ReadinessSample{Title: "Just a moment...", BodyLen: 9000}, true},
		{"short body", ReadinessSample{Title: "Real Title", BodyLen: 10}, true},
		{"ready", ReadinessSample{Title: "Real Title", BodyLen: 900}, false},
		{"case insensitive", ReadinessSample{Title: "PLEASE WAIT", BodyLen: 9000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInterstitial(tt.sample, titles, 200))
		})
	}
}
