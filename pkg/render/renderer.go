package render

import (
	"context"

	"github.com/goliatone/go-formbind/pkg/engine"
)

// Renderer turns the widget tree of a context into a debug preview (plain
// text, HTML). Renderers do no layout; they walk the tree as built.
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, ectx *engine.Context, options RenderOptions) ([]byte, error)
}
