package prompt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-formbind/pkg/data"
	"github.com/goliatone/go-formbind/pkg/proxy"
)

// Menu entries of the editor loop.
const (
	MenuEdit    = "Edit attribute"
	MenuExtend  = "Add extension"
	MenuRetract = "Retract extension"
	MenuSave    = "Save"
	MenuQuit    = "Quit"
)

// Editor drives an ObjectEditController from terminal prompts.
type Editor struct {
	driver     Driver
	controller *data.ObjectEditController
	queue      *Queue
	pageSize   int
}

// Option configures an Editor.
type Option func(*Editor)

// WithDriver overrides the prompt driver.
func WithDriver(driver Driver) Option {
	return func(e *Editor) {
		if driver != nil {
			e.driver = driver
		}
	}
}

// WithPageSize sets how many options select prompts show at once.
func WithPageSize(n int) Option {
	return func(e *Editor) {
		e.pageSize = n
	}
}

// WithQueue makes Run apply the updates queued in q before every prompt. Pass
// q.Dispatch to the controller with data.WithDispatcher.
func WithQueue(q *Queue) Option {
	return func(e *Editor) {
		e.queue = q
	}
}

// NewEditor returns an editor for controller using the survey driver unless
// another one is configured.
func NewEditor(controller *data.ObjectEditController, opts ...Option) *Editor {
	e := &Editor{controller: controller, pageSize: 12}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.driver == nil {
		e.driver = NewSurveyDriver(nil)
	}
	return e
}

// Run shows the main menu until the user quits. Unsaved changes are
// confirmed before leaving.
func (e *Editor) Run(ctx context.Context) error {
	for {
		if e.queue != nil {
			e.queue.Drain()
		}
		e.drainErrors(ctx)

		menu := e.menu()
		choice, err := e.driver.Select(ctx, SelectConfig{
			Message:  e.title(),
			Options:  menu,
			PageSize: e.pageSize,
		})
		if err != nil {
			return err
		}
		if choice < 0 || choice >= len(menu) {
			continue
		}

		switch entry := menu[choice]; entry {
		case MenuEdit:
			err = e.editAttribute(ctx)
		case MenuExtend:
			err = e.addExtension(ctx)
		case MenuRetract:
			err = e.retractExtension(ctx)
		case MenuSave:
			err = e.save(ctx)
		case MenuQuit:
			leave, qerr := e.confirmQuit(ctx)
			if qerr != nil || leave {
				return qerr
			}
		default:
			err = e.invoke(ctx, strings.TrimPrefix(entry, "Run "))
		}
		if errors.Is(err, ErrAborted) {
			return err
		}
		if err != nil {
			if ierr := e.driver.Info(ctx, "error: "+err.Error()); ierr != nil {
				return ierr
			}
		}
	}
}

func (e *Editor) title() string {
	obj := e.controller.Object()
	title := obj.DN()
	if title == "" {
		title = obj.InstanceID()
	}
	if e.controller.Modified() {
		title += " (modified)"
	}
	return title
}

func (e *Editor) menu() []string {
	menu := []string{MenuEdit}
	finder := e.controller.Extensions()
	if len(finder.Addable()) > 0 {
		menu = append(menu, MenuExtend)
	}
	if len(finder.Retractable()) > 0 {
		menu = append(menu, MenuRetract)
	}
	menu = append(menu, MenuSave)
	for _, name := range e.controller.Actions().Names() {
		if name == "save" || name == "validate" {
			continue
		}
		menu = append(menu, "Run "+name)
	}
	return append(menu, MenuQuit)
}

// editablePaths lists the bound attributes that can be edited now: writable
// and either part of the base type or of an attached extension.
func (e *Editor) editablePaths() []string {
	obj := e.controller.Object()
	attached := obj.ExtensionTypes()
	var out []string
	for _, path := range e.controller.BoundPaths() {
		attr, ok := obj.Attribute(path)
		if !ok || attr.Meta.ReadOnly {
			continue
		}
		if ext := attr.Meta.Extension; ext != "" && !attached[ext] {
			continue
		}
		out = append(out, path)
	}
	return out
}

func (e *Editor) editAttribute(ctx context.Context) error {
	paths := e.editablePaths()
	if len(paths) == 0 {
		return e.driver.Info(ctx, "nothing to edit")
	}
	obj := e.controller.Object()
	options := make([]string, len(paths))
	for i, path := range paths {
		attr, _ := obj.Attribute(path)
		options[i] = fmt.Sprintf("%s = %s", path, display(attr))
	}
	idx, err := e.driver.Select(ctx, SelectConfig{Message: "Attribute", Options: options, PageSize: e.pageSize})
	if err != nil || idx < 0 || idx >= len(paths) {
		return err
	}
	path := paths[idx]
	attr, _ := obj.Attribute(path)
	value, err := e.ask(ctx, attr)
	if err != nil {
		return err
	}
	return e.controller.SetValue(path, value)
}

// ask prompts for a new value of attr with a prompt matching its type.
func (e *Editor) ask(ctx context.Context, attr proxy.Attribute) (any, error) {
	meta := attr.Meta
	message := attr.Name
	if meta.Mandatory {
		message += " *"
	}

	switch {
	case meta.Multivalue:
		current := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			current = append(current, fmt.Sprint(v))
		}
		raw, err := e.driver.TextArea(ctx, TextAreaConfig{
			Message: message,
			Default: strings.Join(current, "\n"),
			Help:    "one value per line",
		})
		if err != nil {
			return nil, err
		}
		var out []any
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				v, err := convert(meta.Type, line)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		}
		return out, nil
	case len(meta.Enum) > 0:
		options := make([]string, len(meta.Enum))
		def := -1
		for i, v := range meta.Enum {
			options[i] = fmt.Sprint(v)
			if fmt.Sprint(attr.Values.First()) == options[i] {
				def = i
			}
		}
		idx, err := e.driver.Select(ctx, SelectConfig{Message: message, Options: options, DefaultIndex: def})
		if err != nil || idx < 0 || idx >= len(meta.Enum) {
			return nil, err
		}
		return meta.Enum[idx], nil
	case strings.EqualFold(meta.Type, "boolean"):
		current, _ := attr.Values.First().(bool)
		return e.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: current})
	case strings.EqualFold(meta.Type, "password"):
		raw, err := e.driver.Password(ctx, InputConfig{Message: message, Validator: validator(meta)})
		if err != nil {
			return nil, err
		}
		return raw, nil
	case strings.EqualFold(meta.Type, "text"):
		raw, err := e.driver.TextArea(ctx, TextAreaConfig{Message: message, Default: fmt.Sprint(first(attr))})
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	raw, err := e.driver.Input(ctx, InputConfig{
		Message:   message,
		Default:   fmt.Sprint(first(attr)),
		Validator: validator(meta),
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return convert(meta.Type, raw)
}

func (e *Editor) addExtension(ctx context.Context) error {
	finder := e.controller.Extensions()
	options := finder.Addable()
	idx, err := e.driver.Select(ctx, SelectConfig{Message: "Add extension", Options: options})
	if err != nil || idx < 0 || idx >= len(options) {
		return err
	}
	name := options[idx]
	if missing := finder.MissingDependencies(name); len(missing) > 0 {
		ok, err := e.driver.Confirm(ctx, ConfirmConfig{
			Message: fmt.Sprintf("%s requires %s. Add them too?", name, strings.Join(missing, ", ")),
			Default: true,
		})
		if err != nil || !ok {
			return err
		}
	}
	return e.controller.AddExtension(ctx, name)
}

func (e *Editor) retractExtension(ctx context.Context) error {
	finder := e.controller.Extensions()
	options := finder.Retractable()
	idx, err := e.driver.Select(ctx, SelectConfig{Message: "Retract extension", Options: options})
	if err != nil || idx < 0 || idx >= len(options) {
		return err
	}
	name := options[idx]
	if dependents := finder.Dependents(name); len(dependents) > 0 {
		ok, err := e.driver.Confirm(ctx, ConfirmConfig{
			Message: fmt.Sprintf("%s is required by %s. Retract them too?", name, strings.Join(dependents, ", ")),
		})
		if err != nil || !ok {
			return err
		}
	}
	return e.controller.RetractExtension(ctx, name)
}

func (e *Editor) save(ctx context.Context) error {
	if err := e.controller.Save(ctx); err != nil {
		for _, msg := range e.controller.FormErrors() {
			if ierr := e.driver.Info(ctx, "! "+msg); ierr != nil {
				return ierr
			}
		}
		return err
	}
	return e.driver.Info(ctx, "saved")
}

func (e *Editor) invoke(ctx context.Context, action string) error {
	if err := e.controller.Actions().Invoke(ctx, action); err != nil {
		return err
	}
	return e.driver.Info(ctx, action+": done")
}

func (e *Editor) confirmQuit(ctx context.Context) (bool, error) {
	if !e.controller.Modified() {
		return true, nil
	}
	return e.driver.Confirm(ctx, ConfirmConfig{Message: "Discard unsaved changes?"})
}

// drainErrors prints asynchronous errors (failed write-backs) collected
// since the last menu.
func (e *Editor) drainErrors(ctx context.Context) {
	for {
		select {
		case err, ok := <-e.controller.Actions().Errors():
			if !ok {
				return
			}
			_ = e.driver.Info(ctx, "error: "+err.Error())
		default:
			return
		}
	}
}

func first(attr proxy.Attribute) any {
	if v := attr.Values.First(); v != nil {
		return v
	}
	return ""
}

func display(attr proxy.Attribute) string {
	if strings.EqualFold(attr.Meta.Type, "password") {
		return "****"
	}
	parts := make([]string, 0, len(attr.Values))
	for _, v := range attr.Values {
		parts = append(parts, fmt.Sprint(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func validator(meta proxy.AttributeMeta) func(string) error {
	var re *regexp.Regexp
	if meta.Pattern != "" {
		re, _ = regexp.Compile(meta.Pattern)
	}
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if meta.Mandatory {
				return errors.New("value is required")
			}
			return nil
		}
		if re != nil && !re.MatchString(s) {
			return fmt.Errorf("value must match %s", meta.Pattern)
		}
		_, err := convert(meta.Type, s)
		return err
	}
}

func convert(kind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(kind) {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	}
	return raw, nil
}
