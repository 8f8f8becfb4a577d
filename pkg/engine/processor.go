package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// WidgetProcessor interprets widget and form-inclusion nodes, building the
// widget tree beneath a target container.
type WidgetProcessor struct {
	ctx *Context
}

// Process interprets node and attaches the result to target.
func (p *WidgetProcessor) Process(node *Node, target *Widget) error {
	return p.process("node", node, target, false)
}

func (p *WidgetProcessor) process(path string, node *Node, target *Widget, root bool) error {
	switch node.Kind() {
	case NodeWidget:
		return p.processWidget(path, node, target, root)
	case NodeFormRef:
		return p.attachForm(path, node, target)
	case NodeForm:
		return p.ctx.formProc.process(path, node, target)
	default:
		return nil
	}
}

func (p *WidgetProcessor) processWidget(path string, node *Node, target *Widget, root bool) error {
	ctx := p.ctx
	tplName := ctx.template.Name

	class, ok := ctx.session.catalog.Lookup(node.Class)
	if !ok {
		return configErr(tplName, path, "unknown widget class %q", node.Class)
	}
	if err := canHold(tplName, path, target); err != nil {
		return err
	}

	w := NewWidget(class)
	w.ModelPath = node.ModelPath
	w.Symbol = symbolKey(node.Symbol)
	w.Layout = node.Layout
	w.LayoutConfig = cloneMap(node.LayoutConfig)
	target.Add(w, node.AddOptions)

	if root {
		if err := ctx.registry.Register(ctx.extension, w); err != nil {
			return wrapConfig(tplName, path, err)
		}
	}
	if err := p.register(path, w, node.ModelPath, node.BuddyModelPath, node.Symbol); err != nil {
		return err
	}

	props := node.Properties
	if root && props != nil {
		if _, ok := props["actions"]; ok {
			props = cloneMap(props)
			delete(props, "actions")
		}
	}
	if err := p.applyProperties(path, w, props); err != nil {
		return err
	}

	if node.VisibilityDependsOn != "" {
		if err := p.bindVisibility(path, node.VisibilityDependsOn, w); err != nil {
			return err
		}
	}

	for i, child := range node.Children {
		if err := p.process(fmt.Sprintf("%s.children[%d]", path, i), child, w, false); err != nil {
			return err
		}
	}
	return nil
}

func (p *WidgetProcessor) attachForm(path string, node *Node, target *Widget) error {
	ctx := p.ctx
	form, ok := ctx.session.symbols.Form(node.Form)
	if !ok || form.Widget == nil {
		return configErr(ctx.template.Name, path, "form %q is not defined", node.Form)
	}
	if err := canHold(ctx.template.Name, path, target); err != nil {
		return err
	}
	target.Add(form.Widget, node.AddOptions)
	return nil
}

func (p *WidgetProcessor) register(path string, w *Widget, modelPath, buddyPath, symbol string) error {
	ctx := p.ctx
	if modelPath != "" {
		if err := ctx.registry.Register(modelPath, w); err != nil {
			return wrapConfig(ctx.template.Name, path, err)
		}
	}
	if buddyPath != "" {
		if err := ctx.registry.RegisterBuddy(buddyPath, w); err != nil {
			return wrapConfig(ctx.template.Name, path, err)
		}
	}
	if symbol != "" {
		ctx.session.symbols.Define(symbol, w)
	}
	return nil
}

// applyProperties assigns declared properties with type checking. Undeclared
// keys become dynamic properties and raise a warning, or fail in strict mode.
func (p *WidgetProcessor) applyProperties(path string, w *Widget, props map[string]any) error {
	ctx := p.ctx
	for _, name := range sortedPropertyKeys(props) {
		value, err := ctx.resources.ResolveValue(props[name])
		if err != nil {
			return configErr(ctx.template.Name, path+".properties."+name, "%v", err)
		}
		if !w.HasProperty(name) {
			if ctx.session.strict {
				return configErr(ctx.template.Name, path+".properties."+name, "class %s does not declare property %q", w.Class, name)
			}
			w.SetDynamic(name, value)
			ctx.warn(path, "class %s does not declare property %q, assigned dynamically", w.Class, name)
			continue
		}
		if err := w.Set(name, value); err != nil {
			return wrapConfig(ctx.template.Name, path+".properties."+name, err)
		}
	}
	return nil
}

// bindVisibility ties the visibility of targets to the value of a driver
// widget. "@sym" shows the targets while the driver value is truthy, "!@sym"
// while it is falsy. The leading "@" is optional.
func (p *WidgetProcessor) bindVisibility(path, expr string, targets ...*Widget) error {
	ctx := p.ctx
	negate, symbol, err := parseVisibilityRule(expr)
	if err != nil {
		return configErr(ctx.template.Name, path+".visibilityDependsOn", "%v", err)
	}
	driver, ok := ctx.session.symbols.Widget(symbol)
	if !ok {
		return configErr(ctx.template.Name, path+".visibilityDependsOn", "symbol %q is not defined", symbol)
	}

	apply := func(value any) {
		visible := truthy(value)
		if negate {
			visible = !visible
		}
		for _, t := range targets {
			if t != nil {
				t.SetVisible(visible)
			}
		}
	}
	apply(driver.Value())
	ctx.cleanup = append(ctx.cleanup, driver.OnValueChange(func(_, value any) {
		apply(value)
	}))
	return nil
}

func parseVisibilityRule(expr string) (bool, string, error) {
	rule := strings.TrimSpace(expr)
	negate := strings.HasPrefix(rule, "!")
	if negate {
		rule = strings.TrimSpace(rule[1:])
	}
	symbol := symbolKey(rule)
	if symbol == "" {
		return false, "", fmt.Errorf("empty visibility rule %q", expr)
	}
	if strings.ContainsAny(symbol, " &|!()") {
		return false, "", fmt.Errorf("visibility rule %q must name exactly one symbol", expr)
	}
	return negate, symbol, nil
}

func canHold(tplName, path string, target *Widget) error {
	if target == nil {
		return configErr(tplName, path, "no target container")
	}
	if target.class != nil && !target.class.Container {
		return configErr(tplName, path, "class %s cannot hold children", target.Class)
	}
	return nil
}

func wrapConfig(tplName, path string, err error) error {
	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		wrapped := *cfg
		if wrapped.Template == "" {
			wrapped.Template = tplName
		}
		wrapped.Path = path
		return &wrapped
	}
	return &ConfigurationError{Template: tplName, Path: path, Err: err}
}

// truthy mirrors loose boolean evaluation of widget values: nil, false, zero
// numbers, empty strings and empty collections are falsy.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
