package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseLayersOverDefault(t *testing.T) {
	raw := []byte(`
endpoint: https://directory.example.net/rpc
locale: de
debounce: 250ms
theme:
  name: acme
  variant: dark
  prefix: /assets/acme
  files:
    brand.logo: logo.png
  variants:
    dark:
      brand.logo: logo-dark.png
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Endpoint != "https://directory.example.net/rpc" || cfg.Locale != "de" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Debounce != 250*time.Millisecond {
		t.Fatalf("debounce = %s", cfg.Debounce)
	}
	if cfg.WriteTimeout != Default().WriteTimeout || cfg.Mock.Addr != ":8089" {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	m := cfg.Theme.Manifest()
	if m == nil || m.Name != "acme" {
		t.Fatalf("expected manifest, got %+v", m)
	}
	if diff := cmp.Diff(map[string]string{"brand.logo": "logo-dark.png"}, m.Variants["dark"].Assets.Files); diff != "" {
		t.Fatalf("variant files mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative debounce": "debounce: -1s",
		"variant only":      "theme: {variant: dark}",
		"bad yaml":          "endpoint: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("default mismatch (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "formbind.yaml")
	if err := os.WriteFile(path, []byte("renderer: html\nstrict: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Renderer != "html" || !cfg.Strict {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Theme.Manifest() != nil {
		t.Fatalf("expected no manifest without a theme name")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestThemeSelectorFromInlineManifest(t *testing.T) {
	cfg, err := Parse([]byte(`
theme:
  name: acme
  variant: dark
  prefix: /assets/acme
  files:
    brand.logo: logo.png
  variants:
    dark:
      brand.logo: logo-dark.png
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selector, err := cfg.Theme.Selector()
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	selection, err := selector.Select("", "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if selection.Theme != "acme" || selection.Variant != "dark" {
		t.Fatalf("unexpected selection %s/%s", selection.Theme, selection.Variant)
	}
	if url, ok := selection.Asset("brand.logo"); !ok || url != "/assets/acme/logo-dark.png" {
		t.Fatalf("asset = %q (ok=%v)", url, ok)
	}
}

func TestThemeSelectorFromManifestFile(t *testing.T) {
	dir := t.TempDir()
	manifest := []byte(`
name: corp
version: 2.1.0
assets:
  prefix: https://cdn.example.net/corp
  files:
    brand.logo: logo.svg
`)
	path := filepath.Join(dir, "theme.yaml")
	if err := os.WriteFile(path, manifest, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	selector, err := ThemeConfig{File: path}.Selector()
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	if selector.DefaultTheme != "corp" {
		t.Fatalf("default theme = %q", selector.DefaultTheme)
	}
	selection, err := selector.Select("", "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if url, _ := selection.Asset("brand.logo"); url != "https://cdn.example.net/corp/logo.svg" {
		t.Fatalf("asset = %q", url)
	}

	if _, err := (ThemeConfig{File: filepath.Join(dir, "missing.yaml")}).Selector(); err == nil {
		t.Fatalf("expected error for missing manifest file")
	}
	none, err := ThemeConfig{}.Selector()
	if err != nil || none != nil {
		t.Fatalf("expected no selector without a theme, got %v (%v)", none, err)
	}
}
