package engine

import (
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// Widget is an in-memory UI component created from a template node.
type Widget struct {
	ID           string
	Class        string
	Layout       string
	LayoutConfig map[string]any
	AddOptions   map[string]any
	ModelPath    string
	Symbol       string

	// Buddy points from a label widget to the input it describes.
	Buddy *Widget

	class      *Class
	properties map[string]any
	dynamic    map[string]any
	parent     *Widget
	children   []*Widget
	visible    bool
	enabled    bool
	value      any
	valid      bool
	invalidMsg string

	nextHandler     int
	appearHandlers  map[int]func()
	valueHandlers   map[int]func(old, new any)
	visibleHandlers map[int]func(visible bool)
}

// NewWidget instantiates a widget of the given class with its declared
// defaults applied.
func NewWidget(class *Class) *Widget {
	w := &Widget{
		ID:         uuid.NewString(),
		class:      class,
		properties: make(map[string]any),
		visible:    true,
		enabled:    true,
		valid:      true,
	}
	if class != nil {
		w.Class = class.Name
		for name, spec := range class.Properties {
			if spec.Default != nil {
				w.properties[name] = spec.Default
			}
		}
	}
	return w
}

// NewContainer returns a bare container widget, typically the root an edit
// window hands to a Context.
func NewContainer() *Widget {
	return NewWidget(&Class{Name: ClassComposite, Container: true})
}

// Parent returns the widget this one is attached to, or nil.
func (w *Widget) Parent() *Widget { return w.parent }

// Children returns a copy of the child list.
func (w *Widget) Children() []*Widget {
	return append([]*Widget(nil), w.children...)
}

// Add attaches child to w. opts carries layout slot information such as
// {"flex": 1} or {"row": 0, "column": 1}.
func (w *Widget) Add(child *Widget, opts map[string]any) {
	if child == nil || child == w {
		return
	}
	if child.parent != nil {
		child.parent.Remove(child)
	}
	if len(opts) > 0 {
		child.AddOptions = cloneMap(opts)
	}
	child.parent = w
	w.children = append(w.children, child)
}

// Remove detaches child from w.
func (w *Widget) Remove(child *Widget) {
	for i, c := range w.children {
		if c == child {
			w.children = append(w.children[:i], w.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Property returns a declared or dynamically assigned property value.
func (w *Widget) Property(name string) (any, bool) {
	if v, ok := w.properties[name]; ok {
		return v, true
	}
	v, ok := w.dynamic[name]
	return v, ok
}

// Properties returns a copy of the declared property values.
func (w *Widget) Properties() map[string]any {
	return cloneMap(w.properties)
}

// DynamicProperties returns the properties assigned without a declaration.
func (w *Widget) DynamicProperties() map[string]any {
	return cloneMap(w.dynamic)
}

// HasProperty reports whether the widget class declares name.
func (w *Widget) HasProperty(name string) bool {
	if w.class == nil {
		return false
	}
	_, ok := w.class.Properties[name]
	return ok
}

// Set assigns a declared property after coercing it to the declared kind.
func (w *Widget) Set(name string, value any) error {
	spec, ok := w.class.property(name)
	if !ok {
		return &ConfigurationError{Path: w.Class, Reason: "undeclared property " + name}
	}
	coerced, err := spec.Kind.coerce(value)
	if err != nil {
		return &ConfigurationError{Path: w.Class + "." + name, Err: err}
	}
	switch name {
	case "value":
		w.SetValue(coerced)
		return nil
	case "visibility":
		w.SetVisible(coerced != "excluded" && coerced != "hidden")
	case "enabled":
		w.enabled, _ = coerced.(bool)
	}
	w.properties[name] = coerced
	return nil
}

// SetDynamic assigns a property the class does not declare.
func (w *Widget) SetDynamic(name string, value any) {
	if w.dynamic == nil {
		w.dynamic = make(map[string]any)
	}
	w.dynamic[name] = value
}

// Value returns the widget's bound value.
func (w *Widget) Value() any { return w.value }

// SetValue updates the value and notifies listeners when it changed.
func (w *Widget) SetValue(v any) {
	if reflect.DeepEqual(w.value, v) {
		return
	}
	old := w.value
	w.value = v
	for _, id := range sortedKeys(w.valueHandlers) {
		if fn, ok := w.valueHandlers[id]; ok {
			fn(old, v)
		}
	}
}

// OnValueChange registers fn for value changes. The returned function removes
// the listener.
func (w *Widget) OnValueChange(fn func(old, new any)) func() {
	if w.valueHandlers == nil {
		w.valueHandlers = make(map[int]func(old, new any))
	}
	id := w.nextID()
	w.valueHandlers[id] = fn
	return func() { delete(w.valueHandlers, id) }
}

// Visible reports the widget's own visibility flag.
func (w *Widget) Visible() bool { return w.visible }

// SetVisible shows or hides (excludes) the widget.
func (w *Widget) SetVisible(v bool) {
	if w.visible == v {
		return
	}
	w.visible = v
	for _, id := range sortedKeys(w.visibleHandlers) {
		if fn, ok := w.visibleHandlers[id]; ok {
			fn(v)
		}
	}
}

// OnVisibilityChange registers fn for visibility changes.
func (w *Widget) OnVisibilityChange(fn func(visible bool)) func() {
	if w.visibleHandlers == nil {
		w.visibleHandlers = make(map[int]func(bool))
	}
	id := w.nextID()
	w.visibleHandlers[id] = fn
	return func() { delete(w.visibleHandlers, id) }
}

// Enabled reports whether the widget accepts input.
func (w *Widget) Enabled() bool { return w.enabled }

// Valid reports the validation state and message.
func (w *Widget) Valid() (bool, string) { return w.valid, w.invalidMsg }

// SetValid updates the validation state. Invalid state is forwarded to the
// buddies registered for the same model path by the caller.
func (w *Widget) SetValid(valid bool, message string) {
	w.valid = valid
	if valid {
		w.invalidMsg = ""
		return
	}
	w.invalidMsg = message
}

// OnAppear registers fn to run whenever the widget appears.
func (w *Widget) OnAppear(fn func()) func() {
	if w.appearHandlers == nil {
		w.appearHandlers = make(map[int]func())
	}
	id := w.nextID()
	w.appearHandlers[id] = fn
	return func() { delete(w.appearHandlers, id) }
}

// Appear signals that the widget became part of the visible tree. Handlers run
// on every call; consumers guard their own idempotency.
func (w *Widget) Appear() {
	for _, id := range sortedKeys(w.appearHandlers) {
		if fn, ok := w.appearHandlers[id]; ok {
			fn()
		}
	}
}

// Find returns the first descendant (including w) matching fn.
func (w *Widget) Find(fn func(*Widget) bool) *Widget {
	if w == nil {
		return nil
	}
	if fn(w) {
		return w
	}
	for _, child := range w.children {
		if found := child.Find(fn); found != nil {
			return found
		}
	}
	return nil
}

// Descendants counts every widget below w.
func (w *Widget) Descendants() int {
	n := 0
	for _, child := range w.children {
		n += 1 + child.Descendants()
	}
	return n
}

func (w *Widget) nextID() int {
	w.nextHandler++
	return w.nextHandler
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
