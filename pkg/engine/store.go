package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TemplateStore holds raw template sources keyed by template name. Sources are
// kept untranslated so each locale compiles its own tree.
type TemplateStore struct {
	sources map[string]storedTemplate
}

type storedTemplate struct {
	path string
	raw  []byte
}

// NewTemplateStore returns an empty store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{sources: make(map[string]storedTemplate)}
}

// LoadFS walks fsys and loads every .json, .yaml and .yml file as a template
// named after the file without its extension. YAML documents are converted to
// JSON so every template goes through the same strict parser. A nil fsys
// yields an empty store.
func LoadFS(fsys fs.FS) (*TemplateStore, error) {
	store := NewTemplateStore()
	if fsys == nil {
		return store, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isTemplateFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("engine: read %s: %w", path, err)
		}
		return store.add(templateName(path), path, data)
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Add registers raw under name. YAML sources are recognised by a .yaml or
// .yml source path.
func (s *TemplateStore) Add(name, source string, raw []byte) error {
	return s.add(strings.TrimSpace(name), source, raw)
}

func (s *TemplateStore) add(name, path string, data []byte) error {
	if name == "" {
		return fmt.Errorf("engine: template %s has an empty name", path)
	}
	if existing, exists := s.sources[name]; exists {
		return &ConfigurationError{
			Template: name,
			Reason:   fmt.Sprintf("duplicate template (files %s and %s)", existing.path, path),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("engine: template file %s is empty", path)
	}

	raw := data
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		converted, err := yamlToJSON(data)
		if err != nil {
			return &ParseError{Source: path, Err: err}
		}
		raw = converted
	}
	s.sources[name] = storedTemplate{path: path, raw: raw}
	return nil
}

// Raw returns the untranslated JSON source for name.
func (s *TemplateStore) Raw(name string) ([]byte, string, bool) {
	if s == nil {
		return nil, "", false
	}
	entry, ok := s.sources[name]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), entry.raw...), entry.path, true
}

// Names returns the template names in sorted order.
func (s *TemplateStore) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether the store holds any templates.
func (s *TemplateStore) Empty() bool {
	return s == nil || len(s.sources) == 0
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	normalised, err := normaliseYAML(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalised)
}

func normaliseYAML(value any) (any, error) {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			n, err := normaliseYAML(v)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := normaliseYAML(v)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			n, err := normaliseYAML(v)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return value, nil
	}
}

func isTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func templateName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
