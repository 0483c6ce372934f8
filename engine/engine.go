package engine

import (
	"context"
	"time"

	"github.com/propintel/harvest/identity"
)

// Engine is the interface all fetch transports implement.
type Engine interface {
	// Name returns the transport identifier ("http", "browser").
	Name() string

	// Fetch retrieves the page content for the given request. Failures
	// are returned as *models.ClassifiedError so the orchestrator can
	// branch on the code; soft-blocks carry ErrCodeAntiBot.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything a transport needs for one attempt.
type FetchRequest struct {
	URL      string
	Identity identity.Identity
	Timeout  time.Duration

	// AllowHeavyResources disables resource blocking in the rendering
	// transport. Ignored by the lightweight transport.
	AllowHeavyResources bool

	// ExtraWait is added after the rendering transport judges the page
	// ready. Ignored by the lightweight transport.
	ExtraWait time.Duration
}

// FetchResult is the output of a successful transport fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}
