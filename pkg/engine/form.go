package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	defaultRequiredMessage = "This field is required"
	defaultPatternMessage  = "Invalid format"
	defaultMinMessage      = "Value is too short"
	defaultMaxMessage      = "Value is too long"
	defaultEqualMessage    = "Values do not match"
	defaultOneOfMessage    = "At least one of these fields is required"
)

// Form groups the fields created from a form node together with the widget
// that renders them and the manager validating them.
type Form struct {
	Label      string
	Symbol     string
	Widget     *Widget
	Errors     *Widget
	Fields     []*FormField
	Groups     []string
	Validation *ValidationManager
}

// FormField is one input of a form.
type FormField struct {
	Name      string
	ModelPath string
	Label     string
	Group     string
	Widget    *Widget
	LabelW    *Widget
	Required  bool

	validators []fieldValidator
}

// Field returns the field whose model path or symbol equals name.
func (f *Form) Field(name string) (*FormField, bool) {
	name = symbolKey(name)
	for _, field := range f.Fields {
		if field.ModelPath == name || field.Name == name {
			return field, true
		}
	}
	return nil, false
}

// Validate re-runs every field and form constraint and updates the error
// display region.
func (f *Form) Validate() bool {
	valid := f.Validation.Validate()
	f.refreshErrors()
	return valid
}

func (f *Form) refreshErrors() {
	if f.Errors == nil {
		return
	}
	vm := f.Validation
	if !vm.Valid() && vm.Recognized(vm.Message()) {
		f.Errors.SetValue(vm.Message())
		f.Errors.SetVisible(true)
		return
	}
	f.Errors.SetValue("")
	f.Errors.SetVisible(false)
}

type fieldValidator struct {
	message string
	check   func(value any) bool
}

type formConstraint struct {
	rule    string
	fields  []string
	message string
}

// ValidationManager validates the fields of one form. Messages produced by the
// form's own validators form the recognised set; messages set from outside the
// form (for example by the backend) are tracked but not recognised.
type ValidationManager struct {
	form        *Form
	constraints []formConstraint
	recognized  map[string]bool
	reported    map[string]bool
	logf        func(format string, args ...any)

	valid   bool
	message string
}

func newValidationManager(form *Form, logf func(string, ...any)) *ValidationManager {
	return &ValidationManager{
		form:       form,
		recognized: make(map[string]bool),
		reported:   make(map[string]bool),
		logf:       logf,
		valid:      true,
	}
}

// Valid reports the result of the last validation.
func (m *ValidationManager) Valid() bool { return m.valid }

// Message returns the active invalid message.
func (m *ValidationManager) Message() string { return m.message }

// Recognized reports whether msg was produced by one of the form validators.
func (m *ValidationManager) Recognized(msg string) bool {
	return msg != "" && m.recognized[msg]
}

// SetInvalid marks the form invalid with an external message.
func (m *ValidationManager) SetInvalid(msg string) {
	m.valid = false
	m.message = msg
	m.form.refreshErrors()
}

// Reset clears the invalid state of the form and its fields.
func (m *ValidationManager) Reset() {
	m.valid = true
	m.message = ""
	for _, field := range m.form.Fields {
		setFieldValid(field, true, "")
	}
	m.form.refreshErrors()
}

func (m *ValidationManager) recognize(msg string) {
	if msg != "" {
		m.recognized[msg] = true
	}
}

// Validate runs field validators in field order, then form constraints. The
// first failure becomes the active message.
func (m *ValidationManager) Validate() bool {
	m.valid = true
	m.message = ""
	fail := func(msg string) {
		if m.valid {
			m.valid = false
			m.message = msg
		}
	}

	for _, field := range m.form.Fields {
		fieldOK, fieldMsg := true, ""
		if field.Widget.Visible() {
			for _, v := range field.validators {
				if !v.check(field.Widget.Value()) {
					fieldOK, fieldMsg = false, v.message
					break
				}
			}
		}
		setFieldValid(field, fieldOK, fieldMsg)
		if !fieldOK {
			fail(fieldMsg)
		}
	}

	for _, c := range m.constraints {
		if !m.checkConstraint(c) {
			fail(c.message)
		}
	}
	return m.valid
}

func (m *ValidationManager) checkConstraint(c formConstraint) bool {
	var values []any
	for _, name := range c.fields {
		field, ok := m.form.Field(name)
		if !ok {
			key := c.rule + "/" + name
			if !m.reported[key] {
				m.reported[key] = true
				m.logf("engine: constraint %s: no widget for %q, skipped", c.rule, name)
			}
			continue
		}
		values = append(values, field.Widget.Value())
	}
	if len(values) == 0 {
		return true
	}
	switch c.rule {
	case "equal":
		for _, v := range values[1:] {
			if !reflect.DeepEqual(values[0], v) {
				return false
			}
		}
		return true
	case "oneRequired":
		for _, v := range values {
			if !isEmpty(v) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func setFieldValid(field *FormField, valid bool, msg string) {
	field.Widget.SetValid(valid, msg)
	if field.LabelW != nil {
		field.LabelW.SetValid(valid, msg)
	}
}

// FormProcessor interprets form nodes.
type FormProcessor struct {
	ctx *Context
}

// Process builds the form described by node and attaches its renderer widget
// to target. A nil target only defines the form under its symbol.
func (p *FormProcessor) Process(node *Node, target *Widget) error {
	return p.process("form", node, target)
}

func (p *FormProcessor) process(path string, node *Node, target *Widget) error {
	ctx := p.ctx
	tplName := ctx.template.Name

	rendererClass := node.Renderer
	if rendererClass == "" {
		rendererClass = ClassSingleRenderer
	}
	class, ok := ctx.session.catalog.Lookup(rendererClass)
	if !ok {
		return configErr(tplName, path+".renderer", "unknown renderer class %q", rendererClass)
	}
	if !class.Container {
		return configErr(tplName, path+".renderer", "renderer class %s cannot hold fields", class.Name)
	}

	form := &Form{Label: node.Label, Symbol: symbolKey(node.Symbol)}
	form.Validation = newValidationManager(form, ctx.session.logger.Printf)
	form.Widget = NewWidget(class)
	form.Widget.Symbol = form.Symbol
	if node.Label != "" && form.Widget.HasProperty("legend") {
		if err := form.Widget.Set("legend", node.Label); err != nil {
			return wrapConfig(tplName, path, err)
		}
	}

	if errClass, ok := ctx.session.catalog.Lookup(ClassFormErrorRegion); ok {
		form.Errors = NewWidget(errClass)
		form.Errors.SetVisible(false)
		form.Widget.Add(form.Errors, map[string]any{"row": 0, "colSpan": 2})
	}

	group := form.Widget
	groupName := ""
	row := 1
	wp := ctx.widgetProc
	for i, element := range node.Elements {
		elPath := fmt.Sprintf("%s.elements[%d]", path, i)
		if element == nil {
			continue
		}
		if element.GroupOnly() {
			box, err := p.newGroup(elPath, element.Group)
			if err != nil {
				return err
			}
			form.Widget.Add(box, map[string]any{"row": row, "colSpan": 2})
			row++
			group = box
			groupName = element.Group
			form.Groups = append(form.Groups, element.Group)
			continue
		}

		field, err := p.newField(elPath, form, element)
		if err != nil {
			return err
		}
		field.Group = groupName
		if field.LabelW != nil {
			group.Add(field.LabelW, map[string]any{"row": row, "column": 0})
		}
		group.Add(field.Widget, map[string]any{"row": row, "column": 1})
		row++

		if err := wp.register(elPath, field.Widget, element.ModelPath, "", element.Symbol); err != nil {
			return err
		}
		if field.LabelW != nil && element.ModelPath != "" {
			if err := ctx.registry.RegisterBuddy(element.ModelPath, field.LabelW); err != nil {
				return wrapConfig(tplName, elPath, err)
			}
		}
		if element.VisibilityDependsOn != "" {
			if err := wp.bindVisibility(elPath, element.VisibilityDependsOn, field.Widget, field.LabelW); err != nil {
				return err
			}
		}
		form.Fields = append(form.Fields, field)
	}

	for i, c := range node.Constraints {
		if c == nil {
			continue
		}
		cPath := fmt.Sprintf("%s.constraints[%d]", path, i)
		switch c.Rule {
		case "equal", "oneRequired":
		default:
			return configErr(tplName, cPath, "unknown constraint rule %q", c.Rule)
		}
		msg := c.Message
		if msg == "" {
			msg = defaultEqualMessage
			if c.Rule == "oneRequired" {
				msg = defaultOneOfMessage
			}
		}
		form.Validation.constraints = append(form.Validation.constraints, formConstraint{
			rule:    c.Rule,
			fields:  append([]string(nil), c.Fields...),
			message: msg,
		})
		form.Validation.recognize(msg)
	}

	for _, field := range form.Fields {
		ctx.cleanup = append(ctx.cleanup, field.Widget.OnValueChange(func(_, _ any) {
			form.Validate()
		}))
	}

	if form.Symbol != "" {
		ctx.session.symbols.Define(form.Symbol, form)
	}
	ctx.forms = append(ctx.forms, form)

	if target != nil {
		if err := canHold(tplName, path, target); err != nil {
			return err
		}
		target.Add(form.Widget, node.AddOptions)
	}
	return nil
}

func (p *FormProcessor) newGroup(path, label string) (*Widget, error) {
	class, ok := p.ctx.session.catalog.Lookup(ClassGroupBox)
	if !ok {
		return nil, configErr(p.ctx.template.Name, path, "class %s is not registered", ClassGroupBox)
	}
	box := NewWidget(class)
	if err := box.Set("legend", label); err != nil {
		return nil, wrapConfig(p.ctx.template.Name, path, err)
	}
	return box, nil
}

func (p *FormProcessor) newField(path string, form *Form, element *Element) (*FormField, error) {
	ctx := p.ctx
	tplName := ctx.template.Name
	hints, hasHints := ctx.fieldHints(element.ModelPath)

	className := element.Class
	if className == "" {
		if element.ModelPath == "" {
			return nil, configErr(tplName, path, "element declares neither class nor modelPath")
		}
		resolved, ok := ctx.session.catalog.Resolve(hints)
		if !ok {
			return nil, configErr(tplName, path, "no default class for %q", element.ModelPath)
		}
		className = resolved
	}
	class, ok := ctx.session.catalog.Lookup(className)
	if !ok {
		return nil, configErr(tplName, path, "unknown widget class %q", className)
	}

	w := NewWidget(class)
	w.ModelPath = element.ModelPath
	w.Symbol = symbolKey(element.Symbol)

	field := &FormField{
		Name:      w.Symbol,
		ModelPath: element.ModelPath,
		Label:     element.Label,
		Widget:    w,
		Required:  element.Required || (hasHints && hints.Mandatory),
	}
	if field.Name == "" {
		field.Name = element.ModelPath
	}

	if hasHints {
		if hints.ReadOnly && w.HasProperty("readOnly") {
			_ = w.Set("readOnly", true)
		}
		if len(hints.Enum) > 0 && w.HasProperty("options") {
			_ = w.Set("options", append([]any(nil), hints.Enum...))
		}
	}

	if err := ctx.widgetProc.applyProperties(path, w, element.Properties); err != nil {
		return nil, err
	}

	if element.Label != "" {
		labelClass, ok := ctx.session.catalog.Lookup(ClassLabel)
		if !ok {
			return nil, configErr(tplName, path, "class %s is not registered", ClassLabel)
		}
		label := NewWidget(labelClass)
		label.ModelPath = element.ModelPath
		label.SetValue(element.Label)
		field.LabelW = label
	}

	validators, err := p.buildValidators(path, element, field, hints, hasHints)
	if err != nil {
		return nil, err
	}
	field.validators = validators
	for _, v := range validators {
		form.Validation.recognize(v.message)
	}
	return field, nil
}

func (p *FormProcessor) buildValidators(path string, element *Element, field *FormField, hints FieldHints, hasHints bool) ([]fieldValidator, error) {
	tplName := p.ctx.template.Name
	var out []fieldValidator

	if field.Required {
		out = append(out, fieldValidator{message: defaultRequiredMessage, check: func(v any) bool { return !isEmpty(v) }})
	}
	if hasHints && hints.Pattern != "" {
		re, err := regexp.Compile(hints.Pattern)
		if err != nil {
			return nil, configErr(tplName, path, "attribute pattern %q: %v", hints.Pattern, err)
		}
		out = append(out, patternValidator(re, defaultPatternMessage))
	}

	for i, spec := range element.Validators {
		if spec == nil {
			continue
		}
		vPath := fmt.Sprintf("%s.validators[%d]", path, i)
		msg := spec.Message
		switch spec.Type {
		case "required":
			if msg == "" {
				msg = defaultRequiredMessage
			}
			field.Required = true
			out = append(out, fieldValidator{message: msg, check: func(v any) bool { return !isEmpty(v) }})
		case "pattern":
			expr, ok := spec.Value.(string)
			if !ok {
				return nil, configErr(tplName, vPath, "pattern expects a string")
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, configErr(tplName, vPath, "pattern %q: %v", expr, err)
			}
			if msg == "" {
				msg = defaultPatternMessage
			}
			out = append(out, patternValidator(re, msg))
		case "minLength", "maxLength":
			limit, ok := intValue(spec.Value)
			if !ok || limit < 0 {
				return nil, configErr(tplName, vPath, "%s expects a non-negative integer", spec.Type)
			}
			atLeast := spec.Type == "minLength"
			if msg == "" {
				msg = defaultMaxMessage
				if atLeast {
					msg = defaultMinMessage
				}
			}
			out = append(out, fieldValidator{message: msg, check: func(v any) bool {
				if isEmpty(v) {
					return true
				}
				n := valueLength(v)
				if atLeast {
					return n >= limit
				}
				return n <= limit
			}})
		default:
			return nil, configErr(tplName, vPath, "unknown validator %q", spec.Type)
		}
	}
	return out, nil
}

func patternValidator(re *regexp.Regexp, msg string) fieldValidator {
	return fieldValidator{message: msg, check: func(v any) bool {
		if isEmpty(v) {
			return true
		}
		switch typed := v.(type) {
		case string:
			return re.MatchString(typed)
		case []any:
			for _, item := range typed {
				if s, ok := item.(string); ok && s != "" && !re.MatchString(s) {
					return false
				}
			}
			return true
		default:
			return re.MatchString(fmt.Sprint(v))
		}
	}}
}

func intValue(v any) (int, bool) {
	switch typed := v.(type) {
	case int:
		return typed, true
	case float64:
		if typed == float64(int(typed)) {
			return int(typed), true
		}
	}
	return 0, false
}

func valueLength(v any) int {
	switch typed := v.(type) {
	case string:
		return utf8.RuneCountInString(typed)
	case []any:
		return len(typed)
	case []string:
		return len(typed)
	default:
		return utf8.RuneCountInString(fmt.Sprint(v))
	}
}

func isEmpty(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		for _, item := range typed {
			if !isEmpty(item) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range typed {
			if strings.TrimSpace(item) != "" {
				return false
			}
		}
		return true
	case map[string]any:
		return len(typed) == 0
	default:
		return false
	}
}
