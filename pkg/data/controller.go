package data

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/render"
)

// Method names dispatched by the controller.
const (
	MethodCommit  = "commit"
	MethodExtend  = "extend"
	MethodRetract = "retract"
)

// ErrNotBound is returned for model paths without an attribute.
var ErrNotBound = errors.New("data: model path not bound")

// Dispatcher runs fn on the goroutine that owns the widget tree.
type Dispatcher func(fn func())

// ObjectEditController coordinates one edit session: the contexts of the
// window, the open object, its modification manager and action controller.
type ObjectEditController struct {
	object   *proxy.Object
	contexts []*engine.Context
	mods     *ModificationManager
	actions  *ActionController
	dispatch Dispatcher
	logger   *log.Logger

	mu        sync.Mutex
	bindings  map[string][]*engine.Widget
	bound     map[*engine.Context]bool
	applying  map[*engine.Widget]int
	cleanup   []func()
	formError []string
	closed    bool
}

// ControllerOption configures an ObjectEditController.
type ControllerOption func(*ObjectEditController)

// WithDispatcher routes object notifications through d. Without it they run
// on the notifying goroutine.
func WithDispatcher(d Dispatcher) ControllerOption {
	return func(c *ObjectEditController) {
		if d != nil {
			c.dispatch = d
		}
	}
}

// WithActionController replaces the default action controller.
func WithActionController(a *ActionController) ControllerOption {
	return func(c *ObjectEditController) {
		if a != nil {
			c.actions = a
		}
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger *log.Logger) ControllerOption {
	return func(c *ObjectEditController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewObjectEditController binds contexts to obj. Contexts whose widgets were
// not created yet are bound when their root container appears.
func NewObjectEditController(obj *proxy.Object, contexts []*engine.Context, opts ...ControllerOption) (*ObjectEditController, error) {
	if obj == nil {
		return nil, errors.New("data: object is required")
	}
	c := &ObjectEditController{
		object:   obj,
		contexts: append([]*engine.Context(nil), contexts...),
		logger:   log.Default(),
		dispatch: func(fn func()) { fn() },
		bindings: make(map[string][]*engine.Widget),
		bound:    make(map[*engine.Context]bool),
		applying: make(map[*engine.Widget]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.actions == nil {
		c.actions = NewActionController(16, c.logger)
	}
	c.mods = NewModificationManager(obj)

	if err := c.registerActions(); err != nil {
		return nil, err
	}

	c.cleanup = append(c.cleanup,
		obj.Subscribe(func(ch proxy.Change) {
			c.dispatch(func() { c.applyChange(ch) })
		}),
		obj.OnInfoChange(func() {
			c.dispatch(c.applyExtensionState)
		}),
		obj.OnError(func(err error) {
			c.dispatch(func() { c.ApplyErrors(err) })
			c.actions.Report(err)
		}),
	)

	for _, ctx := range c.contexts {
		if ctx == nil {
			continue
		}
		if ctx.State() == engine.StateWidgetsCreated {
			c.bindContext(ctx)
			continue
		}
		target := ctx
		c.cleanup = append(c.cleanup, ctx.Root().OnAppear(func() { c.bindContext(target) }))
	}
	c.applyExtensionState()
	return c, nil
}

// Object returns the edited object.
func (c *ObjectEditController) Object() *proxy.Object { return c.object }

// Contexts returns the bound contexts.
func (c *ObjectEditController) Contexts() []*engine.Context {
	return append([]*engine.Context(nil), c.contexts...)
}

// Modifications returns the modification manager.
func (c *ObjectEditController) Modifications() *ModificationManager { return c.mods }

// Actions returns the action controller.
func (c *ObjectEditController) Actions() *ActionController { return c.actions }

// Modified reports whether any bound attribute differs from its loaded value.
func (c *ObjectEditController) Modified() bool { return c.mods.Modified() }

// Extensions returns a finder over the object's current extension state.
func (c *ObjectEditController) Extensions() *ExtensionFinder { return FinderFor(c.object) }

// BoundPaths returns the model paths bound to attributes, sorted.
func (c *ObjectEditController) BoundPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.bindings))
	for path := range c.bindings {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// FormErrors returns the last form-level backend errors.
func (c *ObjectEditController) FormErrors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.formError...)
}

// SetValue edits the attribute bound to path through its widgets.
func (c *ObjectEditController) SetValue(path string, value any) error {
	c.mu.Lock()
	widgets := c.bindings[path]
	c.mu.Unlock()
	if len(widgets) == 0 {
		return fmt.Errorf("%w: %s", ErrNotBound, path)
	}
	attr, _ := c.object.Attribute(path)
	if attr.Meta.ReadOnly {
		return fmt.Errorf("data: %s: %w", path, proxy.ErrReadOnly)
	}
	widgets[0].SetValue(value)
	return nil
}

// Validate runs form validation in every context.
func (c *ObjectEditController) Validate() bool {
	valid := true
	for _, ctx := range c.contexts {
		if ctx != nil && !ctx.Validate() {
			valid = false
		}
	}
	return valid
}

// Save flushes pending write-backs and commits the object. Backend validation
// errors are mapped onto the widgets of their model path.
func (c *ObjectEditController) Save(ctx context.Context) error {
	c.object.WaitWriteBacks()
	c.ClearErrors()
	if _, err := c.object.Call(ctx, MethodCommit); err != nil {
		c.ApplyErrors(err)
		return fmt.Errorf("data: save: %w", err)
	}
	c.mods.UpdateAll()
	return nil
}

// AddExtension attaches name after every missing dependency, then refreshes
// the object.
func (c *ObjectEditController) AddExtension(ctx context.Context, name string) error {
	plan, err := c.Extensions().AddPlan(name)
	if err != nil {
		return err
	}
	return c.runPlan(ctx, MethodExtend, plan)
}

// RetractExtension detaches every attached extension depending on name, then
// name itself, then refreshes the object.
func (c *ObjectEditController) RetractExtension(ctx context.Context, name string) error {
	plan, err := c.Extensions().RetractPlan(name)
	if err != nil {
		return err
	}
	return c.runPlan(ctx, MethodRetract, plan)
}

func (c *ObjectEditController) runPlan(ctx context.Context, method string, plan []string) error {
	if len(plan) == 0 {
		return nil
	}
	c.object.WaitWriteBacks()
	for _, ext := range plan {
		if _, err := c.object.Call(ctx, method, ext); err != nil {
			c.ApplyErrors(err)
			if rerr := c.object.Refresh(ctx); rerr != nil {
				c.logger.Printf("data: refresh after failed %s: %v", method, rerr)
			}
			return fmt.Errorf("data: %s %s: %w", method, ext, err)
		}
	}
	return c.object.Refresh(ctx)
}

// ApplyErrors marks the widgets (and their buddies) of the model paths err
// refers to as invalid. Unmapped messages are kept as form errors.
func (c *ObjectEditController) ApplyErrors(err error) {
	if err == nil {
		return
	}
	mapping := render.MapError(c.BoundPaths(), err)
	for path, messages := range mapping.Fields {
		c.markInvalid(path, messages[0])
	}
	if len(mapping.Form) > 0 {
		c.mu.Lock()
		c.formError = render.MergeFormErrors(c.formError, mapping.Form...)
		c.mu.Unlock()
	}
}

// ClearErrors resets backend error marks.
func (c *ObjectEditController) ClearErrors() {
	c.mu.Lock()
	c.formError = nil
	paths := make([]string, 0, len(c.bindings))
	for path := range c.bindings {
		paths = append(paths, path)
	}
	c.mu.Unlock()
	for _, path := range paths {
		c.markValid(path)
	}
}

// Close detaches listeners, disposes the contexts and closes the object.
func (c *ObjectEditController) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cleanup := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	c.mods.Close()
	for _, ectx := range c.contexts {
		if ectx != nil {
			ectx.Dispose()
		}
	}
	err := c.object.Close(ctx)
	c.actions.Close()
	return err
}

func (c *ObjectEditController) registerActions() error {
	builtin := map[string]ActionFunc{
		"save": c.Save,
		"validate": func(context.Context) error {
			if !c.Validate() {
				return errors.New("validation failed")
			}
			return nil
		},
	}
	existing := make(map[string]bool)
	for _, name := range c.actions.Names() {
		existing[name] = true
	}
	for _, name := range []string{"save", "validate"} {
		if existing[name] {
			continue
		}
		if err := c.actions.Register(name, builtin[name]); err != nil {
			return err
		}
	}
	registered := make(map[string]bool)
	for _, name := range c.actions.Names() {
		registered[name] = true
	}
	for _, ectx := range c.contexts {
		if ectx == nil {
			continue
		}
		for _, action := range ectx.Actions() {
			if action.Method == "" {
				continue
			}
			if registered[action.Name] {
				c.logger.Printf("data: action %q already registered, skipping the one from %q", action.Name, ectx.Extension())
				continue
			}
			method := action.Method
			err := c.actions.Register(action.Name, func(ctx context.Context) error {
				_, err := c.object.Call(ctx, method)
				return err
			})
			if err != nil {
				return err
			}
			registered[action.Name] = true
		}
	}
	return nil
}

func (c *ObjectEditController) bindContext(ectx *engine.Context) {
	c.mu.Lock()
	if c.bound[ectx] || c.closed {
		c.mu.Unlock()
		return
	}
	c.bound[ectx] = true
	c.mu.Unlock()

	widgets := ectx.Widgets()
	paths := make([]string, 0, len(widgets))
	for path := range widgets {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		w := widgets[path]
		if path == ectx.Extension() {
			continue
		}
		attr, ok := c.object.Attribute(path)
		if !ok {
			c.logger.Printf("data: context %q: no attribute for model path %q", ectx.Extension(), path)
			continue
		}
		c.bindWidget(path, w, attr)
	}
	c.applyExtensionState()
}

func (c *ObjectEditController) bindWidget(path string, w *engine.Widget, attr proxy.Attribute) {
	c.mu.Lock()
	first := len(c.bindings[path]) == 0
	c.bindings[path] = append(c.bindings[path], w)
	c.mu.Unlock()

	c.setWidgetValue(w, widgetValue(attr.Values, attr.Meta.Multivalue))
	if attr.Meta.ReadOnly {
		if w.HasProperty("readOnly") {
			_ = w.Set("readOnly", true)
		} else {
			w.SetDynamic("readOnly", true)
		}
	}

	multivalue := attr.Meta.Multivalue
	unsubscribe := w.OnValueChange(func(_, value any) {
		c.mu.Lock()
		applying := c.applying[w] > 0
		c.mu.Unlock()
		if applying {
			return
		}
		if err := c.object.Set(path, toValues(value, multivalue)); err != nil {
			c.actions.Report(fmt.Errorf("data: set %s: %w", path, err))
			return
		}
		c.markValid(path)
		c.syncSiblings(path, w, value)
	})
	c.mu.Lock()
	c.cleanup = append(c.cleanup, unsubscribe)
	c.mu.Unlock()

	if first {
		if err := c.mods.Register(path); err != nil {
			c.logger.Printf("data: %v", err)
		}
	}
}

// syncSiblings copies an edit to the other widgets bound to the same path.
func (c *ObjectEditController) syncSiblings(path string, source *engine.Widget, value any) {
	c.mu.Lock()
	widgets := append([]*engine.Widget(nil), c.bindings[path]...)
	c.mu.Unlock()
	for _, w := range widgets {
		if w != source {
			c.setWidgetValue(w, value)
		}
	}
}

func (c *ObjectEditController) applyChange(ch proxy.Change) {
	c.mu.Lock()
	widgets := append([]*engine.Widget(nil), c.bindings[ch.Attribute]...)
	c.mu.Unlock()
	if len(widgets) == 0 {
		return
	}
	attr, ok := c.object.Attribute(ch.Attribute)
	if !ok {
		return
	}
	value := widgetValue(attr.Values, attr.Meta.Multivalue)
	for _, w := range widgets {
		c.setWidgetValue(w, value)
	}
}

// setWidgetValue updates a widget without writing the value back. Only w is
// muted; edits of other widgets made meanwhile still reach the object.
func (c *ObjectEditController) setWidgetValue(w *engine.Widget, value any) {
	c.mu.Lock()
	c.applying[w]++
	c.mu.Unlock()
	w.SetValue(value)
	c.mu.Lock()
	if c.applying[w]--; c.applying[w] <= 0 {
		delete(c.applying, w)
	}
	c.mu.Unlock()
}

// applyExtensionState shows the root of every extension context iff the
// extension is attached. Contexts not named after an extension stay visible.
func (c *ObjectEditController) applyExtensionState() {
	types := c.object.ExtensionTypes()
	for _, ectx := range c.contexts {
		if ectx == nil {
			continue
		}
		attached, isExtension := types[ectx.Extension()]
		if isExtension {
			ectx.Root().SetVisible(attached)
		}
	}
}

func (c *ObjectEditController) markInvalid(path, message string) {
	c.mu.Lock()
	widgets := append([]*engine.Widget(nil), c.bindings[path]...)
	c.mu.Unlock()
	for _, w := range widgets {
		w.SetValid(false, message)
		for _, ectx := range c.contexts {
			if buddy, ok := ectx.Registry().Buddy(path); ok && buddy.Buddy == w {
				buddy.SetValid(false, message)
			}
		}
	}
}

func (c *ObjectEditController) markValid(path string) {
	c.mu.Lock()
	widgets := append([]*engine.Widget(nil), c.bindings[path]...)
	c.mu.Unlock()
	for _, w := range widgets {
		if ok, _ := w.Valid(); ok {
			continue
		}
		w.SetValid(true, "")
		for _, ectx := range c.contexts {
			if buddy, ok := ectx.Registry().Buddy(path); ok && buddy.Buddy == w {
				buddy.SetValid(true, "")
			}
		}
	}
}

// widgetValue converts an attribute container into a widget value: the
// first element for single-valued attributes, a slice otherwise.
func widgetValue(values proxy.Values, multivalue bool) any {
	if multivalue {
		out := make([]any, len(values))
		copy(out, values)
		return out
	}
	return values.First()
}

// toValues converts a widget value into an attribute container.
func toValues(value any, multivalue bool) proxy.Values {
	switch typed := value.(type) {
	case nil:
		return proxy.Values{}
	case proxy.Values:
		return typed.Clone()
	case []any:
		if multivalue {
			return proxy.Values(typed).Clone()
		}
	case []string:
		if multivalue {
			out := make(proxy.Values, len(typed))
			for i, s := range typed {
				out[i] = s
			}
			return out
		}
	}
	if proxy.IsEmptyValue(value) {
		return proxy.Values{}
	}
	return proxy.Values{value}
}
