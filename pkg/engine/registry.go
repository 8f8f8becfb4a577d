package engine

import (
	"fmt"
	"sort"
	"strings"
)

// WidgetRegistry maps model paths to the primary widget bound to the attribute
// and, separately, to its buddy (label) widget. Each Context owns one.
type WidgetRegistry struct {
	widgets map[string]*Widget
	buddies map[string]*Widget
}

// NewWidgetRegistry returns an empty registry.
func NewWidgetRegistry() *WidgetRegistry {
	return &WidgetRegistry{
		widgets: make(map[string]*Widget),
		buddies: make(map[string]*Widget),
	}
}

// Register binds w as the primary widget for path.
func (r *WidgetRegistry) Register(path string, w *Widget) error {
	return r.put(r.widgets, "widget", path, w)
}

// RegisterBuddy binds w as the buddy widget for path.
func (r *WidgetRegistry) RegisterBuddy(path string, w *Widget) error {
	return r.put(r.buddies, "buddy", path, w)
}

func (r *WidgetRegistry) put(target map[string]*Widget, kind, path string, w *Widget) error {
	path = strings.TrimSpace(path)
	if path == "" || w == nil {
		return nil
	}
	if existing, ok := target[path]; ok && existing != w {
		return &ConfigurationError{Path: path, Reason: fmt.Sprintf("duplicate %s for model path %q", kind, path)}
	}
	target[path] = w
	return nil
}

// Widget returns the primary widget for path.
func (r *WidgetRegistry) Widget(path string) (*Widget, bool) {
	w, ok := r.widgets[path]
	return w, ok
}

// Buddy returns the buddy widget for path.
func (r *WidgetRegistry) Buddy(path string) (*Widget, bool) {
	w, ok := r.buddies[path]
	return w, ok
}

// Paths returns the registered primary model paths in sorted order.
func (r *WidgetRegistry) Paths() []string {
	return sortedPaths(r.widgets)
}

// BuddyPaths returns the registered buddy model paths in sorted order.
func (r *WidgetRegistry) BuddyPaths() []string {
	return sortedPaths(r.buddies)
}

// Widgets returns a copy of the primary widget map.
func (r *WidgetRegistry) Widgets() map[string]*Widget {
	return copyWidgets(r.widgets)
}

// Buddies returns a copy of the buddy widget map.
func (r *WidgetRegistry) Buddies() map[string]*Widget {
	return copyWidgets(r.buddies)
}

// LinkBuddies points every buddy at the primary widget sharing its model path
// and returns the number of links made.
func (r *WidgetRegistry) LinkBuddies() int {
	linked := 0
	for path, buddy := range r.buddies {
		if w, ok := r.widgets[path]; ok {
			buddy.Buddy = w
			linked++
		}
	}
	return linked
}

// Clear drops every entry.
func (r *WidgetRegistry) Clear() {
	r.widgets = make(map[string]*Widget)
	r.buddies = make(map[string]*Widget)
}

func sortedPaths(m map[string]*Widget) []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func copyWidgets(m map[string]*Widget) map[string]*Widget {
	out := make(map[string]*Widget, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
