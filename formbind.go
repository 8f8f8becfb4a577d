// Package formbind binds template-built widget trees to remote directory
// objects. The root package wires the engine, proxy and data layers for
// callers that want a ready edit session.
package formbind

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/goliatone/go-formbind/pkg/data"
	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
)

//go:embed templates/*.json
var embeddedTemplates embed.FS

// EmbeddedTemplates exposes the built-in templates for the directory object
// types (User, Group and the user extensions) named after the type they edit.
func EmbeddedTemplates() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return embeddedTemplates
	}
	return sub
}

// NewSession returns an engine session whose template store holds the
// templates of fsys. A nil fsys selects EmbeddedTemplates. Options are
// applied after the store so callers may still replace it.
func NewSession(fsys fs.FS, opts ...engine.Option) (*engine.Session, error) {
	if fsys == nil {
		fsys = EmbeddedTemplates()
	}
	store, err := engine.LoadFS(fsys)
	if err != nil {
		return nil, err
	}
	return engine.NewSession(append([]engine.Option{engine.WithTemplateStore(store)}, opts...)...), nil
}

// Editor is an open edit session: one object, one context per template found
// for its base type and extensions, and the controller binding them.
type Editor struct {
	Object     *proxy.Object
	Controller *data.ObjectEditController
	Contexts   []*engine.Context
}

// Close closes the controller, which disposes the contexts and the object.
func (e *Editor) Close(ctx context.Context) error {
	if e == nil || e.Controller == nil {
		return nil
	}
	return e.Controller.Close(ctx)
}

// Context returns the context built for the named type.
func (e *Editor) Context(name string) (*engine.Context, bool) {
	for _, ectx := range e.Contexts {
		if ectx.Extension() == name {
			return ectx, true
		}
	}
	return nil, false
}

// OpenEditor opens req through factory and builds the contexts for the base
// type and every extension the session has a template for. Types without a
// template are skipped. The widgets are created before OpenEditor returns.
func OpenEditor(ctx context.Context, factory *proxy.Factory, session *engine.Session, req proxy.OpenRequest, opts ...data.ControllerOption) (*Editor, error) {
	return openEditor(ctx, factory, session, req, engine.NewContainer, opts...)
}

func openEditor(ctx context.Context, factory *proxy.Factory, session *engine.Session, req proxy.OpenRequest, newRoot func() *engine.Widget, opts ...data.ControllerOption) (*Editor, error) {
	if factory == nil || session == nil {
		return nil, errors.New("formbind: factory and session are required")
	}
	obj, err := factory.Open(ctx, req)
	if err != nil {
		return nil, err
	}

	available := make(map[string]bool)
	for _, name := range session.TemplateNames() {
		available[name] = true
	}

	var (
		contexts []*engine.Context
		roots    []*engine.Widget
	)
	// abort releases what was built before the controller owns it.
	abort := func(err error) (*Editor, error) {
		for _, ectx := range contexts {
			ectx.Dispose()
		}
		_ = obj.Close(ctx)
		return nil, err
	}
	for _, name := range editorTypes(obj) {
		if !available[name] {
			continue
		}
		tpl, err := session.Template(name)
		if err != nil {
			return abort(err)
		}
		root := newRoot()
		ectx, err := session.NewContext(tpl, root, name)
		if err != nil {
			return abort(err)
		}
		contexts = append(contexts, ectx)
		roots = append(roots, root)
	}
	if len(contexts) == 0 {
		return abort(fmt.Errorf("formbind: no template for %s", obj.BaseType()))
	}

	ctrl, err := data.NewObjectEditController(obj, contexts, opts...)
	if err != nil {
		return abort(err)
	}
	for i, root := range roots {
		root.Appear()
		if err := contexts[i].Err(); err != nil {
			_ = ctrl.Close(ctx)
			return nil, fmt.Errorf("formbind: build %s: %w", contexts[i].Extension(), err)
		}
	}
	return &Editor{Object: obj, Controller: ctrl, Contexts: contexts}, nil
}

// editorTypes lists the base type followed by the extension types in name
// order.
func editorTypes(obj *proxy.Object) []string {
	exts := obj.ExtensionTypes()
	names := make([]string, 0, len(exts))
	for name := range exts {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{obj.BaseType()}, names...)
}
