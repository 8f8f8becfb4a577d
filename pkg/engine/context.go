package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ContextState tracks widget construction.
type ContextState int

const (
	StateConstructed ContextState = iota
	StateWidgetsCreated
	StateDisposed
)

func (s ContextState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateWidgetsCreated:
		return "widgets-created"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Action is a named action declared by a template.
type Action struct {
	Name   string
	Label  string
	Icon   string
	Method string
	Target string
}

// HintsFunc returns attribute metadata for a model path. It lets forms pick
// default widget classes and validators for elements that declare none.
type HintsFunc func(modelPath string) (FieldHints, bool)

// Context owns one (template, root container, extension) triple: its widget
// registry, resource manager and processors. Widgets are created once, on the
// first appearance of the root container; root extension nodes are processed
// immediately.
type Context struct {
	session   *Session
	template  *Template
	root      *Widget
	extension string
	hints     HintsFunc

	registry   *WidgetRegistry
	resources  *ResourceManager
	widgetProc *WidgetProcessor
	formProc   *FormProcessor

	state    ContextState
	err      error
	actions  []Action
	forms    []*Form
	warnings []ConsistencyWarning
	cleanup  []func()
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithSession binds the Context to s. Without it a private Session with
// default settings is used.
func WithSession(s *Session) ContextOption {
	return func(c *Context) { c.session = s }
}

// WithFieldHints supplies attribute metadata for form elements.
func WithFieldHints(fn HintsFunc) ContextOption {
	return func(c *Context) { c.hints = fn }
}

// NewContext validates the template actions, processes the root extension
// nodes into root and defers everything else until root appears.
func NewContext(tpl *Template, root *Widget, extension string, opts ...ContextOption) (*Context, error) {
	c := &Context{extension: strings.TrimSpace(extension)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.session == nil {
		c.session = NewSession()
	}
	if tpl == nil || tpl.Root == nil {
		return nil, configErr("", "", "template is required")
	}
	if root == nil {
		return nil, configErr(tpl.Name, "", "root container is required")
	}
	if c.extension == "" {
		c.extension = tpl.Name
	}

	c.template = tpl
	c.root = root
	c.registry = NewWidgetRegistry()
	c.resources = NewResourceManager(tpl.Root.Resources,
		WithResourceTheme(c.session.selector, c.session.themeName, c.session.themeVariant, c.session.themeQuery...))
	c.widgetProc = &WidgetProcessor{ctx: c}
	c.formProc = &FormProcessor{ctx: c}

	actions, err := collectActions(tpl)
	if err != nil {
		return nil, err
	}
	c.actions = actions

	for i, ext := range tpl.Root.Extensions {
		if err := c.widgetProc.process(fmt.Sprintf("root.extensions[%d]", i), ext, root, false); err != nil {
			return nil, err
		}
	}

	c.cleanup = append(c.cleanup, root.OnAppear(func() {
		if err := c.Appear(); err != nil {
			c.session.logger.Printf("engine: context %q: %v", c.extension, err)
		}
	}))
	return c, nil
}

// Appear builds the deferred widget tree and links buddies. Only the first
// call does any work; later calls return the first call's error.
func (c *Context) Appear() error {
	if c.state != StateConstructed {
		return c.err
	}
	c.state = StateWidgetsCreated

	if err := c.widgetProc.process("root", c.template.Root, c.root, true); err != nil {
		c.err = err
		return err
	}
	c.registry.LinkBuddies()
	return nil
}

// State returns the construction state.
func (c *Context) State() ContextState { return c.state }

// Err returns the error raised while creating widgets, if any.
func (c *Context) Err() error { return c.err }

// Extension returns the extension name the Context was created for.
func (c *Context) Extension() string { return c.extension }

// Template returns the template the Context interprets.
func (c *Context) Template() *Template { return c.template }

// Root returns the root container.
func (c *Context) Root() *Widget { return c.root }

// Session returns the owning session.
func (c *Context) Session() *Session { return c.session }

// Registry returns the model path registry.
func (c *Context) Registry() *WidgetRegistry { return c.registry }

// Resources returns the resource manager.
func (c *Context) Resources() *ResourceManager { return c.resources }

// Symbols returns the session symbol table.
func (c *Context) Symbols() *SymbolTable { return c.session.symbols }

// Widgets returns the primary widgets keyed by model path.
func (c *Context) Widgets() map[string]*Widget { return c.registry.Widgets() }

// Buddies returns the buddy widgets keyed by model path.
func (c *Context) Buddies() map[string]*Widget { return c.registry.Buddies() }

// Widget returns the primary widget bound to path.
func (c *Context) Widget(path string) (*Widget, bool) { return c.registry.Widget(path) }

// Forms returns the forms the Context created.
func (c *Context) Forms() []*Form { return append([]*Form(nil), c.forms...) }

// Actions returns the declared actions in template order.
func (c *Context) Actions() []Action { return append([]Action(nil), c.actions...) }

// ActionNames returns the declared action names in template order.
func (c *Context) ActionNames() []string {
	names := make([]string, len(c.actions))
	for i, a := range c.actions {
		names[i] = a.Name
	}
	return names
}

// Warnings returns the consistency warnings raised so far.
func (c *Context) Warnings() []ConsistencyWarning {
	return append([]ConsistencyWarning(nil), c.warnings...)
}

// Validate runs every form's validation and reports whether all passed.
func (c *Context) Validate() bool {
	valid := true
	for _, form := range c.forms {
		if !form.Validate() {
			valid = false
		}
	}
	return valid
}

// Dispose detaches listeners and clears the registries. Symbols defined by the
// Context stay in the session table until redefined.
func (c *Context) Dispose() {
	if c.state == StateDisposed {
		return
	}
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil
	c.registry.Clear()
	c.forms = nil
	c.state = StateDisposed
}

func (c *Context) warn(subject, format string, args ...any) {
	w := ConsistencyWarning{Subject: subject, Message: fmt.Sprintf(format, args...)}
	c.warnings = append(c.warnings, w)
	c.session.warn(w)
}

func (c *Context) fieldHints(path string) (FieldHints, bool) {
	if c.hints == nil || path == "" {
		return FieldHints{}, false
	}
	return c.hints(path)
}

func collectActions(tpl *Template) ([]Action, error) {
	var actions []Action
	seen := make(map[string]bool)
	add := func(path string, a Action) error {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return configErr(tpl.Name, path, "action name is required")
		}
		if seen[a.Name] {
			return configErr(tpl.Name, path, "duplicate action %q", a.Name)
		}
		seen[a.Name] = true
		actions = append(actions, a)
		return nil
	}

	for i, spec := range tpl.Root.Actions {
		if spec == nil {
			continue
		}
		a := Action{Name: spec.Name, Label: spec.Label, Icon: spec.Icon, Method: spec.Method, Target: spec.Target}
		if err := add(fmt.Sprintf("root.actions[%d]", i), a); err != nil {
			return nil, err
		}
	}

	raw, ok := tpl.Root.Properties["actions"]
	if !ok {
		return actions, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, configErr(tpl.Name, "root.properties.actions", "expected a list, got %T", raw)
	}
	for i, item := range list {
		path := fmt.Sprintf("root.properties.actions[%d]", i)
		var a Action
		switch typed := item.(type) {
		case string:
			a.Name = typed
		case map[string]any:
			a.Name, _ = typed["name"].(string)
			a.Label, _ = typed["label"].(string)
			a.Icon, _ = typed["icon"].(string)
			a.Method, _ = typed["method"].(string)
			a.Target, _ = typed["target"].(string)
		default:
			return nil, configErr(tpl.Name, path, "unsupported action entry %T", item)
		}
		if err := add(path, a); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

func sortedPropertyKeys(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
