package engine

import (
	"context"

	"github.com/propintel/harvest/models"
)

// RenderFunc wraps the browser-based scraper. It is injected from the
// facade to avoid a circular import (engine/ -> scraper/).
type RenderFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RenderEngine is the rendering transport adapter: it delegates to the
// rod-based scraper via a callback function.
type RenderEngine struct {
	render RenderFunc
}

// NewRenderEngine creates a RenderEngine around the injected callback.
func NewRenderEngine(render RenderFunc) *RenderEngine {
	return &RenderEngine{render: render}
}

func (e *RenderEngine) Name() string { return "browser" }

func (e *RenderEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.render == nil {
		return nil, models.NewError(models.ErrCodeRenderingDown, "rendering transport not configured", nil)
	}
	result, err := e.render(ctx, req)
	if err != nil {
		return nil, err
	}
	result.EngineName = e.Name()
	return result, nil
}
