package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Built-in widget class names.
const (
	ClassComposite       = "Composite"
	ClassTabView         = "TabView"
	ClassPage            = "Page"
	ClassGroupBox        = "GroupBox"
	ClassLabel           = "Label"
	ClassImage           = "Image"
	ClassTextField       = "TextField"
	ClassPasswordField   = "PasswordField"
	ClassTextArea        = "TextArea"
	ClassCheckBox        = "CheckBox"
	ClassSelectBox       = "SelectBox"
	ClassMultiEdit       = "MultiEditWidget"
	ClassButton          = "Button"
	ClassSingleRenderer  = "SingleRenderer"
	ClassTwoColRenderer  = "TwoColumnRenderer"
	ClassFormErrorRegion = "FormErrorRegion"
)

// PropertyKind enumerates the value shapes a declared property accepts.
type PropertyKind int

const (
	KindAny PropertyKind = iota
	KindString
	KindBool
	KindInt
	KindNumber
	KindStringList
	KindMap
)

func (k PropertyKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindNumber:
		return "number"
	case KindStringList:
		return "string list"
	case KindMap:
		return "map"
	default:
		return "any"
	}
}

func (k PropertyKind) coerce(value any) (any, error) {
	switch k {
	case KindAny:
		return value, nil
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		}
	case KindNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
	case KindStringList:
		switch v := value.(type) {
		case []string:
			return append([]string(nil), v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected %s, got element %T", k, item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	case KindMap:
		if m, ok := value.(map[string]any); ok {
			return cloneMap(m), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", k, value)
}

// PropertySpec declares one configurable widget property.
type PropertySpec struct {
	Kind    PropertyKind
	Default any
}

// Class describes a widget kind: its declared properties and whether it can
// hold children.
type Class struct {
	Name       string
	Container  bool
	Properties map[string]PropertySpec
}

func (c *Class) property(name string) (PropertySpec, bool) {
	if c == nil {
		return PropertySpec{}, false
	}
	spec, ok := c.Properties[name]
	return spec, ok
}

// FieldHints summarises attribute metadata used to pick a default class for
// form elements that declare a model path but no class.
type FieldHints struct {
	Type       string
	Multivalue bool
	ReadOnly   bool
	Mandatory  bool
	Pattern    string
	Enum       []any
}

// Matcher decides whether a class should handle the supplied field.
type Matcher func(FieldHints) bool

type rule struct {
	name     string
	priority int
	match    Matcher
	order    int
}

// ClassCatalog maps class names to widget classes and resolves default classes
// for attributes. Higher matcher priority wins; ties fall back to registration
// order.
type ClassCatalog struct {
	mu      sync.RWMutex
	classes map[string]*Class
	rules   []rule
}

// NewClassCatalog constructs a catalog with the built-in classes and matchers
// registered.
func NewClassCatalog() *ClassCatalog {
	c := &ClassCatalog{classes: make(map[string]*Class)}
	c.registerBuiltins()
	return c
}

// Register adds a class. Duplicate names return an error.
func (c *ClassCatalog) Register(class *Class) error {
	if class == nil {
		return fmt.Errorf("engine: class is required")
	}
	name := strings.TrimSpace(class.Name)
	if name == "" {
		return fmt.Errorf("engine: class name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.classes[name]; exists {
		return fmt.Errorf("engine: class %q already registered", name)
	}
	c.classes[name] = class
	return nil
}

// MustRegister panics on registration failure.
func (c *ClassCatalog) MustRegister(class *Class) {
	if err := c.Register(class); err != nil {
		panic(err)
	}
}

// Lookup returns the class registered under name. A "gosa.ui." style
// namespace prefix is ignored so templates may use qualified names.
func (c *ClassCatalog) Lookup(name string) (*Class, bool) {
	if c == nil {
		return nil, false
	}
	name = strings.TrimSpace(name)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.classes[name]
	return class, ok
}

// Names returns the sorted class names.
func (c *ClassCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.classes))
	for name := range c.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterMatcher adds a default-class matcher.
func (c *ClassCatalog) RegisterMatcher(class string, priority int, matcher Matcher) {
	if c == nil || matcher == nil {
		return
	}
	trimmed := strings.TrimSpace(class)
	if trimmed == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{
		name:     trimmed,
		priority: priority,
		match:    matcher,
		order:    len(c.rules),
	})
}

// Resolve returns the default class name for a field.
func (c *ClassCatalog) Resolve(hints FieldHints) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	rules := append([]rule(nil), c.rules...)
	c.mu.RUnlock()
	if len(rules) == 0 {
		return "", false
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].priority == rules[j].priority {
			return rules[i].order < rules[j].order
		}
		return rules[i].priority > rules[j].priority
	})
	for _, entry := range rules {
		if entry.match(hints) {
			return entry.name, true
		}
	}
	return "", false
}

func (c *ClassCatalog) registerBuiltins() {
	common := func(extra map[string]PropertySpec) map[string]PropertySpec {
		props := map[string]PropertySpec{
			"enabled":    {Kind: KindBool, Default: true},
			"visibility": {Kind: KindString},
			"toolTip":    {Kind: KindString},
			"width":      {Kind: KindInt},
			"height":     {Kind: KindInt},
			"tabIndex":   {Kind: KindInt},
			"cssClass":   {Kind: KindString},
		}
		for name, spec := range extra {
			props[name] = spec
		}
		return props
	}
	input := func(extra map[string]PropertySpec) map[string]PropertySpec {
		props := map[string]PropertySpec{
			"value":       {Kind: KindAny},
			"placeholder": {Kind: KindString},
			"readOnly":    {Kind: KindBool},
			"required":    {Kind: KindBool},
			"maxLength":   {Kind: KindInt},
		}
		for name, spec := range extra {
			props[name] = spec
		}
		return common(props)
	}

	builtins := []*Class{
		{Name: ClassComposite, Container: true, Properties: common(nil)},
		{Name: ClassTabView, Container: true, Properties: common(nil)},
		{Name: ClassPage, Container: true, Properties: common(map[string]PropertySpec{
			"label": {Kind: KindString},
			"icon":  {Kind: KindString},
		})},
		{Name: ClassGroupBox, Container: true, Properties: common(map[string]PropertySpec{
			"legend": {Kind: KindString},
		})},
		{Name: ClassLabel, Properties: common(map[string]PropertySpec{
			"value": {Kind: KindString},
			"rich":  {Kind: KindBool},
		})},
		{Name: ClassImage, Properties: common(map[string]PropertySpec{
			"source": {Kind: KindString},
			"scale":  {Kind: KindBool},
		})},
		{Name: ClassTextField, Properties: input(nil)},
		{Name: ClassPasswordField, Properties: input(nil)},
		{Name: ClassTextArea, Properties: input(map[string]PropertySpec{
			"rows": {Kind: KindInt},
		})},
		{Name: ClassCheckBox, Properties: common(map[string]PropertySpec{
			"value":    {Kind: KindBool},
			"label":    {Kind: KindString},
			"readOnly": {Kind: KindBool},
		})},
		{Name: ClassSelectBox, Properties: input(map[string]PropertySpec{
			"options": {Kind: KindAny},
		})},
		{Name: ClassMultiEdit, Properties: input(map[string]PropertySpec{
			"widgetName": {Kind: KindString},
		})},
		{Name: ClassButton, Properties: common(map[string]PropertySpec{
			"label":  {Kind: KindString},
			"icon":   {Kind: KindString},
			"action": {Kind: KindString},
		})},
		{Name: ClassSingleRenderer, Container: true, Properties: common(map[string]PropertySpec{
			"legend": {Kind: KindString},
		})},
		{Name: ClassTwoColRenderer, Container: true, Properties: common(map[string]PropertySpec{
			"legend": {Kind: KindString},
		})},
		{Name: ClassFormErrorRegion, Properties: common(map[string]PropertySpec{
			"value": {Kind: KindString},
		})},
	}
	for _, class := range builtins {
		c.MustRegister(class)
	}

	c.RegisterMatcher(ClassCheckBox, 90, func(h FieldHints) bool {
		return strings.EqualFold(h.Type, "boolean") && !h.Multivalue
	})
	c.RegisterMatcher(ClassMultiEdit, 80, func(h FieldHints) bool {
		return h.Multivalue
	})
	c.RegisterMatcher(ClassSelectBox, 70, func(h FieldHints) bool {
		return len(h.Enum) > 0
	})
	c.RegisterMatcher(ClassPasswordField, 60, func(h FieldHints) bool {
		return strings.EqualFold(h.Type, "password")
	})
	c.RegisterMatcher(ClassTextArea, 50, func(h FieldHints) bool {
		return strings.EqualFold(h.Type, "text")
	})
	c.RegisterMatcher(ClassTextField, 0, func(FieldHints) bool { return true })
}
