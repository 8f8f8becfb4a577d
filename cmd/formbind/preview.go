package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	formbind "github.com/goliatone/go-formbind"
	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/render"
)

type previewFlags struct {
	config        string
	template      string
	dn            string
	mock          bool
	renderer      string
	paths         string
	classes       string
	title         string
	output        string
	includeHidden bool
}

func runPreview(ctx context.Context, args []string, stdout io.Writer) error {
	var f previewFlags
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "", "configuration file")
	fs.StringVar(&f.template, "template", "", "template to render (all object templates when empty)")
	fs.StringVar(&f.dn, "dn", "", "object to hydrate the widgets from")
	fs.BoolVar(&f.mock, "mock", false, "use the in-process mock directory")
	fs.StringVar(&f.renderer, "renderer", "", "renderer name (text, html)")
	fs.StringVar(&f.paths, "paths", "", "comma separated or JSON list of model paths to render")
	fs.StringVar(&f.classes, "classes", "", "comma separated or JSON list of widget classes to render")
	fs.StringVar(&f.title, "title", "", "document title")
	fs.StringVar(&f.output, "output", "", "output file (stdout if empty)")
	fs.BoolVar(&f.includeHidden, "include-hidden", false, "render hidden widgets")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	if f.renderer == "" {
		f.renderer = cfg.Renderer
	}
	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	registry, err := render.NewDefaultRegistry()
	if err != nil {
		return err
	}
	renderer, err := registry.Get(f.renderer)
	if err != nil {
		return err
	}

	options := render.RenderOptions{
		Title:         f.title,
		Locale:        cfg.Locale,
		Subset:        render.ParseSubset(f.paths, f.classes),
		IncludeHidden: f.includeHidden,
	}

	var out []byte
	if f.dn == "" {
		if f.template == "" {
			return errors.New("-template or -dn is required")
		}
		out, err = previewTemplate(ctx, session, renderer, f.template, options)
	} else {
		b, berr := backend(ctx, cfg, f.mock)
		if berr != nil {
			return berr
		}
		out, err = previewObject(ctx, newFactory(cfg, b), session, renderer, f.dn, f.template, options)
	}
	if err != nil {
		return err
	}

	if f.output != "" {
		if err := os.WriteFile(f.output, out, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(stdout, "Preview written to %s\n", f.output)
		return nil
	}
	_, err = stdout.Write(out)
	return err
}

// previewTemplate renders name with empty widgets.
func previewTemplate(ctx context.Context, session *engine.Session, renderer render.Renderer, name string, options render.RenderOptions) ([]byte, error) {
	tpl, err := session.Template(name)
	if err != nil {
		return nil, err
	}
	root := engine.NewContainer()
	ectx, err := session.NewContext(tpl, root, name)
	if err != nil {
		return nil, err
	}
	defer ectx.Dispose()
	root.Appear()
	if err := ectx.Err(); err != nil {
		return nil, err
	}
	return renderer.Render(ctx, ectx, options)
}

// previewObject opens dn and renders every visible context, or only the one
// named only when set.
func previewObject(ctx context.Context, factory *proxy.Factory, session *engine.Session, renderer render.Renderer, dn, only string, options render.RenderOptions) ([]byte, error) {
	editor, err := formbind.OpenEditor(ctx, factory, session, proxy.OpenRequest{DN: dn})
	if err != nil {
		return nil, err
	}
	defer editor.Close(ctx)

	options.Hidden = render.ObjectFields(editor.Object.DN(), editor.Object.UUID())
	var buf bytes.Buffer
	rendered := 0
	for _, ectx := range editor.Contexts {
		if only != "" && ectx.Extension() != only {
			continue
		}
		if only == "" && !ectx.Root().Visible() {
			continue
		}
		out, err := renderer.Render(ctx, ectx, options)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", ectx.Extension(), err)
		}
		if rendered > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(out)
		rendered++
	}
	if rendered == 0 {
		return nil, fmt.Errorf("no template %q for %s", only, dn)
	}
	return buf.Bytes(), nil
}
