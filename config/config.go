package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process-wide configuration. It is loaded once at start
// and read-only afterwards, so it is safe for concurrent use.
type Config struct {
	Fetch     FetchConfig
	Browser   BrowserConfig
	Detection DetectionConfig
	Hosts     HostsConfig
	Log       LogConfig
}

// FetchConfig controls the lightweight transport and the orchestrator.
type FetchConfig struct {
	// DefaultDeadline is the overall per-acquisition ceiling.
	DefaultDeadline time.Duration // default: 45s

	// AttemptTimeout is the deadline for a single lightweight attempt.
	AttemptTimeout time.Duration // default: 10s

	// MaxAttempts is the lightweight retry budget (attempts, not retries).
	MaxAttempts int // default: 4

	// MaxRedirects caps redirect following per attempt.
	MaxRedirects int // default: 5

	// MaxBodyBytes caps the response body read per attempt.
	MaxBodyBytes int64 // default: 10 MiB

	// BackoffBase and BackoffCap bound the exponential backoff applied
	// after a failed attempt, before jitter.
	BackoffBase time.Duration // default: 800ms
	BackoffCap  time.Duration // default: 5s

	// HumanPauseMin/Max bound the randomized pause inserted between
	// attempts on top of backoff.
	HumanPauseMin time.Duration // default: 800ms
	HumanPauseMax time.Duration // default: 2500ms

	// HostRPS is the sustained per-host request rate for politeness
	// pacing; HostBurst is the per-host burst allowance.
	HostRPS   float64 // default: 1.0
	HostBurst int     // default: 2
}

// BrowserConfig controls the rod browser used by the rendering transport.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string

	// Proxy is an optional proxy URL for all browser traffic.
	Proxy string

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 4

	// NavigationTimeout bounds page.Navigate alone. Materially longer
	// than the lightweight attempt timeout: rendering is the last resort.
	NavigationTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types blocked during a light
	// render. Ignored when a host rule forces heavy resources.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// DetectionConfig holds the heuristic tables used to tell real content
// from interstitials and soft-blocks. Tuned per deployment via env; the
// defaults cover the common challenge-page families.
type DetectionConfig struct {
	// InterstitialTitles are lowercase substrings that mark a page title
	// as a transient verification screen.
	InterstitialTitles []string

	// BlockSignatures are lowercase substrings in a response body that
	// mark it as an anti-bot wall despite the transport-level status.
	BlockSignatures []string

	// MinBodyBytes is the raw markup size below which a "successful"
	// lightweight response is treated as an unrendered shell.
	MinBodyBytes int // default: 2048

	// MinVisibleText is the visible body text length (chars) below which
	// a rendered page still counts as interstitial / shell.
	MinVisibleText int // default: 200

	// ReadinessDeadline bounds the content-readiness polling loop.
	ReadinessDeadline time.Duration // default: 20s

	// ReadinessPoll is the sampling interval of the readiness loop.
	ReadinessPoll time.Duration // default: 1s

	// MinImageDim excludes images whose declared width or height is at
	// or below this many pixels (icons, tracking pixels).
	MinImageDim int // default: 150

	// MetadataBlobCap caps each harvested metadata blob (JSON-LD, app
	// state, OpenGraph) appended to the normalized text, in bytes.
	MetadataBlobCap int // default: 4096

	// StripSelectors are extra CSS selectors removed before text
	// extraction, on top of the built-in chrome tags.
	StripSelectors []string
}

// HostRule carries per-host-family quirks as data rather than code paths.
// Suffix matches the hostname or any parent domain.
type HostRule struct {
	Suffix string

	// RequiresRendering sends the host straight to the browser.
	RequiresRendering bool

	// AllowHeavyResources disables resource blocking during rendering.
	AllowHeavyResources bool

	// PreferMobile picks a mobile identity for retry diversification.
	PreferMobile bool

	// ExtraWait is added after the page is judged ready.
	ExtraWait time.Duration
}

// HostsConfig holds the denylist and the host quirk table.
type HostsConfig struct {
	// Denylist hosts are rejected by the safety filter (suffix match).
	Denylist []string

	// Rules is the quirk table consulted by the orchestrator.
	Rules []HostRule
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// RuleFor returns the first rule whose suffix matches the hostname or a
// parent domain, or nil.
func (h *HostsConfig) RuleFor(hostname string) *HostRule {
	host := strings.ToLower(hostname)
	for i := range h.Rules {
		if hostMatches(host, h.Rules[i].Suffix) {
			return &h.Rules[i]
		}
	}
	return nil
}

func hostMatches(host, suffix string) bool {
	suffix = strings.ToLower(suffix)
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Fetch: FetchConfig{
			DefaultDeadline: envDurationOr("HARVEST_DEADLINE", 45*time.Second),
			AttemptTimeout:  envDurationOr("HARVEST_ATTEMPT_TIMEOUT", 10*time.Second),
			MaxAttempts:     envIntOr("HARVEST_MAX_ATTEMPTS", 4),
			MaxRedirects:    envIntOr("HARVEST_MAX_REDIRECTS", 5),
			MaxBodyBytes:    int64(envIntOr("HARVEST_MAX_BODY_BYTES", 10<<20)),
			BackoffBase:     envDurationOr("HARVEST_BACKOFF_BASE", 800*time.Millisecond),
			BackoffCap:      envDurationOr("HARVEST_BACKOFF_CAP", 5*time.Second),
			HumanPauseMin:   envDurationOr("HARVEST_PAUSE_MIN", 800*time.Millisecond),
			HumanPauseMax:   envDurationOr("HARVEST_PAUSE_MAX", 2500*time.Millisecond),
			HostRPS:         envFloatOr("HARVEST_HOST_RPS", 1.0),
			HostBurst:       envIntOr("HARVEST_HOST_BURST", 2),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("HARVEST_HEADLESS", true),
			NoSandbox:         envBoolOr("HARVEST_NO_SANDBOX", false),
			Bin:               os.Getenv("HARVEST_BROWSER_BIN"),
			Proxy:             os.Getenv("HARVEST_PROXY"),
			MaxPages:          envIntOr("HARVEST_MAX_PAGES", 4),
			NavigationTimeout: envDurationOr("HARVEST_NAV_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Detection: DetectionConfig{
			InterstitialTitles: envSliceOr("HARVEST_INTERSTITIAL_TITLES", []string{
				"just a moment",
				"checking your browser",
				"please wait",
				"verifying",
				"attention required",
				"ddos-guard",
				"access denied",
			}),
			BlockSignatures: envSliceOr("HARVEST_BLOCK_SIGNATURES", []string{
				"access denied",
				"captcha",
				"just a moment",
				"challenge-platform",
				"cf-chl",
				"pardon our interruption",
				"are you a robot",
				"verify you are human",
			}),
			MinBodyBytes:      envIntOr("HARVEST_MIN_BODY_BYTES", 2048),
			MinVisibleText:    envIntOr("HARVEST_MIN_VISIBLE_TEXT", 200),
			ReadinessDeadline: envDurationOr("HARVEST_READINESS_DEADLINE", 20*time.Second),
			ReadinessPoll:     envDurationOr("HARVEST_READINESS_POLL", time.Second),
			MinImageDim:       envIntOr("HARVEST_MIN_IMAGE_DIM", 150),
			MetadataBlobCap:   envIntOr("HARVEST_METADATA_BLOB_CAP", 4096),
			StripSelectors:    envSliceOr("HARVEST_STRIP_SELECTORS", nil),
		},
		Hosts: HostsConfig{
			Denylist: envSliceOr("HARVEST_DENYLIST", nil),
			Rules:    defaultHostRules(),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "json"),
		},
	}
}

// defaultHostRules seeds the quirk table with listing-site families that
// serve empty shells (or walls) to non-rendering clients.
func defaultHostRules() []HostRule {
	return []HostRule{
		{Suffix: "zillow.com", RequiresRendering: true, AllowHeavyResources: true, ExtraWait: 2 * time.Second},
		{Suffix: "realtor.com", RequiresRendering: true, AllowHeavyResources: true},
		{Suffix: "redfin.com", RequiresRendering: true, AllowHeavyResources: true, PreferMobile: true},
		{Suffix: "trulia.com", RequiresRendering: true, AllowHeavyResources: true},
		{Suffix: "apartments.com", RequiresRendering: true},
		{Suffix: "rightmove.co.uk", RequiresRendering: true},
		{Suffix: "zoopla.co.uk", RequiresRendering: true},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
