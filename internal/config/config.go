// Package config loads the formbind CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	theme "github.com/goliatone/go-theme"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// Config is the CLI configuration. Zero values fall back to Default.
type Config struct {
	// Endpoint is the JSON-RPC URL of the object backend.
	Endpoint string `yaml:"endpoint"`
	// Events is the websocket URL of the push channel. Empty disables it.
	Events string `yaml:"events"`
	// Templates is the directory holding the form templates. Empty selects
	// the embedded templates.
	Templates string `yaml:"templates"`
	Locale    string `yaml:"locale"`
	// Strict makes undeclared widget properties an error.
	Strict       bool          `yaml:"strict"`
	Debounce     time.Duration `yaml:"debounce"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	Renderer     string        `yaml:"renderer"`
	Theme        ThemeConfig   `yaml:"theme"`
	Mock         MockConfig    `yaml:"mock"`
}

// ThemeConfig describes the asset theme for resource references, either
// inline or as a go-theme manifest file.
type ThemeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Variant string `yaml:"variant"`
	// File is a go-theme manifest (JSON or YAML). Its name is used when Name
	// is empty.
	File     string                       `yaml:"file"`
	Prefix   string                       `yaml:"prefix"`
	Files    map[string]string            `yaml:"files"`
	Variants map[string]map[string]string `yaml:"variants"`
}

// MockConfig configures the serve-mock command.
type MockConfig struct {
	Addr string `yaml:"addr"`
	// Seed is a YAML file whose objects are added to the embedded ones.
	Seed string `yaml:"seed"`
}

const defaultThemeVersion = "1.0.0"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:     "http://localhost:8089/rpc",
		Events:       "ws://localhost:8089/events",
		Locale:       "en",
		Debounce:     proxy.DefaultDebounce,
		WriteTimeout: 30 * time.Second,
		Renderer:     "text",
		Mock:         MockConfig{Addr: ":8089"},
	}
}

// Load reads path and layers it over Default. A missing file is not an error
// when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML over Default and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields the commands rely on.
func (c Config) Validate() error {
	var errs []error
	if c.Debounce < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("writeTimeout must not be negative"))
	}
	if c.Theme.Variant != "" && c.Theme.Name == "" && c.Theme.File == "" {
		errs = append(errs, errors.New("theme.variant needs theme.name or theme.file"))
	}
	for name := range c.Theme.Variants {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("theme.variants: empty variant name"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Manifest converts the theme section into a go-theme manifest, or nil when
// no theme is configured.
func (t ThemeConfig) Manifest() *theme.Manifest {
	if t.Name == "" {
		return nil
	}
	version := t.Version
	if version == "" {
		version = defaultThemeVersion
	}
	m := &theme.Manifest{
		Name:    t.Name,
		Version: version,
		Assets: theme.Assets{
			Prefix: t.Prefix,
			Files:  copyStrings(t.Files),
		},
	}
	if len(t.Variants) > 0 {
		m.Variants = make(map[string]theme.Variant, len(t.Variants))
		for name, files := range t.Variants {
			m.Variants[name] = theme.Variant{Assets: theme.Assets{Files: copyStrings(files)}}
		}
	}
	return m
}

// Selector registers the configured manifests in a go-theme registry and
// returns a selector defaulting to the configured theme and variant. It
// returns nil when no theme is configured.
func (t ThemeConfig) Selector() (*theme.Selector, error) {
	registry := theme.NewRegistry()
	defaultTheme := t.Name

	if t.File != "" {
		loaded, err := theme.LoadFile(os.DirFS(filepath.Dir(t.File)), filepath.Base(t.File))
		if err != nil {
			return nil, fmt.Errorf("config: theme: %w", err)
		}
		if err := registry.Register(loaded); err != nil {
			return nil, fmt.Errorf("config: theme %s: %w", t.File, err)
		}
		if defaultTheme == "" {
			defaultTheme = loaded.Name
		}
	}
	if m := t.Manifest(); m != nil && (t.File == "" || m.Assets.Prefix != "" || len(m.Assets.Files) > 0) {
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("config: theme %s: %w", m.Name, err)
		}
	}
	if defaultTheme == "" {
		return nil, nil
	}
	return &theme.Selector{Registry: registry, DefaultTheme: defaultTheme, DefaultVariant: t.Variant}, nil
}

func copyStrings(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
