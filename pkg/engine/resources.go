package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	theme "github.com/goliatone/go-theme"
	"github.com/microcosm-cc/bluemonday"
)

var resourceRefPattern = regexp.MustCompile(`^@Res{1,2}ource\(\s*([^)]*?)\s*\)$`)

// ResourceManager resolves resource references embedded in template property
// values, such as "@Resource(user-icon)", to asset references. Declared
// resources come from the template root; asset keys are resolved through the
// active go-theme selection.
type ResourceManager struct {
	declared map[string]string

	selector theme.ThemeSelector
	theme    string
	variant  string
	query    []theme.QueryOption

	once      sync.Once
	selection *theme.Selection
	selectErr error
}

// ResourceOption customises a ResourceManager.
type ResourceOption func(*ResourceManager)

// WithResourceTheme resolves asset keys through selector using the named theme
// and variant. Query options are passed to every Select call.
func WithResourceTheme(selector theme.ThemeSelector, name, variant string, query ...theme.QueryOption) ResourceOption {
	return func(m *ResourceManager) {
		m.selector = selector
		m.theme = strings.TrimSpace(name)
		m.variant = strings.TrimSpace(variant)
		m.query = append([]theme.QueryOption(nil), query...)
	}
}

// NewResourceManager builds a manager for the resources a template declares.
func NewResourceManager(declared map[string]string, opts ...ResourceOption) *ResourceManager {
	m := &ResourceManager{declared: make(map[string]string, len(declared))}
	for id, value := range declared {
		m.declared[strings.TrimSpace(id)] = value
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// IsReference reports whether raw is a resource reference.
func IsReference(raw string) bool {
	return resourceRefPattern.MatchString(strings.TrimSpace(raw))
}

// Resolve returns the asset reference for a "@Resource(id)" expression. Strings
// that are not references are returned unchanged with ok=false.
func (m *ResourceManager) Resolve(raw string) (string, bool, error) {
	match := resourceRefPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return raw, false, nil
	}
	id := match[1]
	if id == "" {
		return "", true, fmt.Errorf("engine: empty resource reference")
	}
	value, ok := m.declared[id]
	if !ok {
		value = id
	}
	if isInlineSVG(value) {
		cleaned := sanitizeIconMarkup(value)
		if cleaned == "" {
			return "", true, fmt.Errorf("engine: resource %q: markup rejected", id)
		}
		return cleaned, true, nil
	}
	return m.assetURL(value), true, nil
}

// ResolveValue resolves references in string values, recursing into lists and
// maps. Other values are returned as is.
func (m *ResourceManager) ResolveValue(value any) (any, error) {
	switch typed := value.(type) {
	case string:
		resolved, _, err := m.Resolve(typed)
		return resolved, err
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			v, err := m.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			v, err := m.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return value, nil
	}
}

// IDs returns the declared resource ids.
func (m *ResourceManager) IDs() []string {
	ids := make([]string, 0, len(m.declared))
	for id := range m.declared {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Selection returns the resolved theme selection, or nil when no theme is set.
func (m *ResourceManager) Selection() (*theme.Selection, error) {
	if m.selector == nil {
		return nil, nil
	}
	m.once.Do(func() {
		m.selection, m.selectErr = m.selector.Select(m.theme, m.variant, m.query...)
	})
	return m.selection, m.selectErr
}

func (m *ResourceManager) assetURL(key string) string {
	selection, err := m.Selection()
	if err != nil || selection == nil {
		return key
	}
	if url, ok := selection.Asset(key); ok {
		return url
	}
	return key
}

func isInlineSVG(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "<")
}

var (
	iconPolicyOnce sync.Once
	iconPolicy     *bluemonday.Policy
)

func sanitizeIconMarkup(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(iconSanitizer().Sanitize(trimmed))
}

func iconSanitizer() *bluemonday.Policy {
	iconPolicyOnce.Do(func() {
		policy := bluemonday.StrictPolicy()
		policy.AllowElements(
			"svg", "g", "path", "circle", "rect", "line", "polyline", "polygon",
			"ellipse", "title", "desc", "defs", "use",
		)
		policy.AllowAttrs(
			"xmlns", "viewBox", "width", "height", "fill", "stroke",
			"stroke-width", "aria-hidden", "role", "focusable", "class",
		).OnElements("svg")
		policy.AllowAttrs("href", "xlink:href").OnElements("use")
		for _, el := range []string{"path", "circle", "rect", "line", "polyline", "polygon", "ellipse"} {
			policy.AllowAttrs(
				"d", "cx", "cy", "r", "x", "y", "x1", "y1", "x2", "y2",
				"points", "rx", "ry", "fill", "stroke", "stroke-width", "class",
			).OnElements(el)
		}
		policy.AllowAttrs("id").OnElements("g", "defs")
		iconPolicy = policy
	})
	return iconPolicy
}
