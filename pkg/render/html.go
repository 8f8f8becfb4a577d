package render

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/render/template"
)

// HTMLRendererName is the registry name of the HTML renderer.
const HTMLRendererName = "html"

//go:embed templates/*.tpl
var builtinTemplates embed.FS

// HTMLRenderer renders the widget tree into a static HTML form through a
// pongo2 template. The default template is embedded.
type HTMLRenderer struct {
	engine   template.TemplateRenderer
	template string
}

// HTMLOption configures an HTMLRenderer.
type HTMLOption func(*htmlConfig)

type htmlConfig struct {
	files      fs.FS
	name       string
	translator engine.Translator
	onMissing  engine.MissingTranslationHandler
	renderer   template.TemplateRenderer
}

// WithHTMLTemplates replaces the embedded templates. name is the template to
// execute, without extension.
func WithHTMLTemplates(files fs.FS, name string) HTMLOption {
	return func(cfg *htmlConfig) {
		cfg.files = files
		if name != "" {
			cfg.name = name
		}
	}
}

// WithHTMLTranslator translates the preview chrome.
func WithHTMLTranslator(t engine.Translator, onMissing engine.MissingTranslationHandler) HTMLOption {
	return func(cfg *htmlConfig) {
		cfg.translator = t
		cfg.onMissing = onMissing
	}
}

// WithTemplateRenderer uses an existing template renderer. The translate
// helper is then expected to be registered by the caller.
func WithTemplateRenderer(r template.TemplateRenderer) HTMLOption {
	return func(cfg *htmlConfig) {
		cfg.renderer = r
	}
}

// NewHTMLRenderer builds the renderer and its template engine.
func NewHTMLRenderer(opts ...HTMLOption) (*HTMLRenderer, error) {
	cfg := &htmlConfig{name: "preview"}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.renderer != nil {
		return &HTMLRenderer{engine: cfg.renderer, template: cfg.name}, nil
	}
	files := cfg.files
	if files == nil {
		sub, err := fs.Sub(builtinTemplates, "templates")
		if err != nil {
			return nil, fmt.Errorf("render: embedded templates: %w", err)
		}
		files = sub
	}
	eng, err := template.New(
		template.WithFS(files),
		template.WithTemplateFuncs(TemplateI18nFuncs(cfg.translator, TemplateI18nConfig{OnMissing: cfg.onMissing})),
	)
	if err != nil {
		return nil, fmt.Errorf("render: html engine: %w", err)
	}
	return &HTMLRenderer{engine: eng, template: cfg.name}, nil
}

func (r *HTMLRenderer) Name() string        { return HTMLRendererName }
func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

// Render executes the preview template with the flattened widget tree.
func (r *HTMLRenderer) Render(ctx context.Context, ectx *engine.Context, options RenderOptions) ([]byte, error) {
	if ectx == nil {
		return nil, fmt.Errorf("render: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := Snapshot(ectx, options)

	title := options.Title
	if title == "" {
		title = ectx.Extension()
	}
	var rows []map[string]any
	for _, child := range root.Children {
		rows = appendRows(rows, child, 0)
	}
	hidden := make([]map[string]any, 0, len(options.Hidden))
	for _, field := range SortedHiddenFields(options.Hidden) {
		hidden = append(hidden, map[string]any{"name": field.Name, "value": field.Value})
	}
	actions := make([]map[string]any, 0)
	for _, a := range ectx.Actions() {
		actions = append(actions, map[string]any{"name": a.Name, "label": a.Label, "method": a.Method})
	}

	data := map[string]any{
		"title":       title,
		"locale":      options.Locale,
		"extension":   ectx.Extension(),
		"rows":        rows,
		"hidden":      hidden,
		"actions":     actions,
		"form_errors": formMessages(root, options),
	}
	out, err := r.engine.RenderTemplate(r.template, data)
	if err != nil {
		return nil, fmt.Errorf("render: html: %w", err)
	}
	return []byte(out), nil
}

// appendRows flattens the tree depth first. pongo2 includes are resolved at
// parse time, so the template cannot recurse.
func appendRows(rows []map[string]any, n *Node, depth int) []map[string]any {
	rows = append(rows, map[string]any{
		"class":      n.Class,
		"model_path": n.ModelPath,
		"label":      n.Label,
		"for":        n.For,
		"value":      n.DisplayValue(),
		"input":      n.Input(),
		"visible":    n.Visible,
		"enabled":    n.Enabled,
		"read_only":  n.ReadOnly,
		"valid":      n.Valid,
		"messages":   n.Messages,
		"indent":     depth,
	})
	for _, child := range n.Children {
		rows = appendRows(rows, child, depth+1)
	}
	return rows
}
