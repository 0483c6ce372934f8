package models

import "time"

// Fetch strategies accepted by AcquireRequest.Strategy.
const (
	StrategyAuto    = "auto"
	StrategyHTTP    = "http"
	StrategyBrowser = "browser"
)

// AcquireRequest describes one acquisition call. Immutable once defaulted;
// created fresh per call.
type AcquireRequest struct {
	// URL is the validated absolute http/https target.
	URL string

	// Deadline is the hard ceiling for the entire call (all transports,
	// all retries). Zero means the configured default applies.
	Deadline time.Duration

	// Strategy optionally forces the initial transport.
	// "auto" (default): lightweight first with rendering fallback.
	// "http": lightweight only, no escalation.
	// "browser": go straight to rendering.
	Strategy string
}

// Defaults applies default values to unset fields.
func (r *AcquireRequest) Defaults(defaultDeadline time.Duration) {
	if r.Deadline <= 0 {
		r.Deadline = defaultDeadline
	}
	if r.Strategy == "" {
		r.Strategy = StrategyAuto
	}
}
