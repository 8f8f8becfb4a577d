package template_test

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formbind/pkg/render/template"
	"github.com/goliatone/go-formbind/pkg/testsupport"
)

//go:embed testdata/templates/*.tpl
var embeddedTemplates embed.FS

func TestEngine_RenderTemplate(t *testing.T) {
	engine := newEngine(t)

	result, written := testsupport.CaptureRenderOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("hello", map[string]any{"name": "Ada"}, w)
	})

	want := testsupport.MustReadGoldenString(t, filepath.Join("testdata", "hello.golden"))
	if result != want {
		t.Fatalf("render template mismatch result\nwant: %q\n got: %q", want, result)
	}
	if written != want {
		t.Fatalf("render template mismatch writer\nwant: %q\n got: %q", want, written)
	}
}

func TestEngine_GlobalContextAndDefaultFilters(t *testing.T) {
	engine := newEngine(t)
	if err := engine.GlobalContext(map[string]any{
		"settings": map[string]any{"env": "staging"},
	}); err != nil {
		t.Fatalf("global context: %v", err)
	}

	result, err := engine.RenderTemplate("use-global", map[string]any{"class": "MultiEditWidget"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := testsupport.MustReadGoldenString(t, filepath.Join("testdata", "use-global.golden"))
	if result != want {
		t.Fatalf("render template mismatch\nwant: %q\n got: %q", want, result)
	}
}

func TestEngine_RegisterFilter(t *testing.T) {
	engine := newEngine(t)
	if !pongo2.FilterExists("shout") {
		err := engine.RegisterFilter("shout", func(input any, _ any) (any, error) {
			if input == nil {
				return "", nil
			}
			return fmt.Sprintf("%s!", strings.ToUpper(fmt.Sprint(input))), nil
		})
		if err != nil {
			t.Fatalf("register filter: %v", err)
		}
	}
	if err := engine.RegisterFilter("shout", func(any, any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate filter error")
	}

	result, err := engine.RenderTemplate("use-filter", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := testsupport.MustReadGoldenString(t, filepath.Join("testdata", "use-filter.golden"))
	if result != want {
		t.Fatalf("render template mismatch\nwant: %q\n got: %q", want, result)
	}
}

func TestEngine_RenderStringAndFuncs(t *testing.T) {
	engine, err := template.New(
		template.WithFS(mustSub(t)),
		template.WithTemplateFuncs(map[string]any{
			"greet": func(name string) string { return "hi " + name },
		}),
		template.WithGlobalData(map[string]any{"site": "directory"}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	got, err := engine.Render(`{{ greet(user.name) }} @ {{ site }}`, struct {
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}{User: struct {
		Name string `json:"name"`
	}{Name: "alice"}})
	if err != nil {
		t.Fatalf("render string: %v", err)
	}
	if got != "hi alice @ directory" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestEngine_RequiresSource(t *testing.T) {
	if _, err := template.New(); err == nil {
		t.Fatalf("expected error without templates")
	}
	if _, err := newEngine(t).RenderTemplate("missing", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func mustSub(t *testing.T) fs.FS {
	t.Helper()
	templatesFS, err := fs.Sub(embeddedTemplates, "testdata/templates")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}
	return templatesFS
}

func newEngine(t *testing.T) *template.Engine {
	t.Helper()
	engine, err := template.New(template.WithFS(mustSub(t)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}
