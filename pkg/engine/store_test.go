package engine_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formbind/pkg/engine"
)

func templateFS() fstest.MapFS {
	return fstest.MapFS{
		"templates/user.json": {Data: []byte(`{"class": "Composite", "children": [{"class": "Label", "properties": {"value": tr("Name")}}]}`)},
		"templates/posix.yaml": {Data: []byte(`
class: Composite
children:
  - class: Label
    properties:
      value: tr("Name")
  - class: TextField
    modelPath: uidNumber
`)},
		"templates/README.md": {Data: []byte("ignored")},
	}
}

func TestLoadFS_JSONAndYAML(t *testing.T) {
	store, err := engine.LoadFS(templateFS())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"posix", "user"}, store.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	fr := engine.TranslatorFunc(func(locale, key string, _ ...any) (string, error) {
		if locale == "fr" && key == "Name" {
			return "Nom", nil
		}
		return "", nil
	})
	session := engine.NewSession(engine.WithTemplateStore(store), engine.WithLocale("fr"), engine.WithTranslator(fr))

	posix, err := session.Template("posix")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if got := posix.Root.Children[0].Properties["value"]; got != "Nom" {
		t.Fatalf("expected YAML marker translated, got %v", got)
	}
	if posix.Root.Children[1].ModelPath != "uidNumber" {
		t.Fatalf("expected modelPath from YAML, got %q", posix.Root.Children[1].ModelPath)
	}

	again, err := session.Template("posix")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if again != posix {
		t.Fatalf("expected cached template for the same locale")
	}

	en := engine.NewSession(engine.WithTemplateStore(store), engine.WithLocale("en"), engine.WithTranslator(fr))
	other, err := en.Template("posix")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if got := other.Root.Children[0].Properties["value"]; got != "Name" {
		t.Fatalf("expected untranslated key for en, got %v", got)
	}
}

func TestLoadFS_DuplicateNames(t *testing.T) {
	fsys := templateFS()
	fsys["other/user.yml"] = &fstest.MapFile{Data: []byte("class: Label\n")}

	_, err := engine.LoadFS(fsys)
	var cfg *engine.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoadFS_NilFS(t *testing.T) {
	store, err := engine.LoadFS(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !store.Empty() {
		t.Fatalf("expected empty store")
	}
	session := engine.NewSession(engine.WithTemplateStore(store))
	if _, err := session.Template("missing"); err == nil {
		t.Fatalf("expected error for missing template")
	}
}
