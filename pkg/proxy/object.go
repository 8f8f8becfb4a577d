package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownAttribute is returned when an attribute is not part of the
	// object's class.
	ErrUnknownAttribute = errors.New("proxy: unknown attribute")
	// ErrUnknownMethod is returned by Call for methods the class lacks.
	ErrUnknownMethod = errors.New("proxy: unknown method")
	// ErrClosed is returned by operations on a closed object.
	ErrClosed = errors.New("proxy: object closed")
	// ErrReadOnly is returned when editing a read-only attribute.
	ErrReadOnly = errors.New("proxy: attribute is read-only")
)

// ChangeSource tells listeners where a change came from.
type ChangeSource int

const (
	// SourceLocal marks edits made through Set or SetElement.
	SourceLocal ChangeSource = iota
	// SourceRemote marks values applied from the backend.
	SourceRemote
)

// Change describes an attribute update. Element is -1 when the whole
// container was replaced, otherwise the index of the changed element.
type Change struct {
	Attribute string
	Old       Values
	New       Values
	Element   int
	Source    ChangeSource
}

// Attribute is a snapshot of one attribute.
type Attribute struct {
	Name   string
	Meta   AttributeMeta
	Values Values
}

// Object is the client-side representation of one open remote object. State
// is guarded by a mutex since write-back completions and push events arrive
// on other goroutines; listeners are called without the lock held.
type Object struct {
	backend    Backend
	instanceID string
	class      *Class
	logger     *log.Logger
	locale     string
	timeout    time.Duration
	debounce   *Debouncer

	mu               sync.Mutex
	dn               string
	uuid             string
	baseType         string
	extensions       map[string]bool
	extensionDeps    map[string][]string
	extensionAllowed map[string]bool
	attrs            map[string]*Attribute
	initialized      bool
	closed           bool
	generation       uint64
	hydrating        int
	nextListener     int
	listeners        map[int]func(Change)
	errorHandlers    map[int]func(error)
	closeHandlers    map[int]func()
	infoHandlers     map[int]func()

	pending sync.WaitGroup
}

// InstanceID returns the server-assigned instance id.
func (o *Object) InstanceID() string { return o.instanceID }

// Class returns the shared class of the object.
func (o *Object) Class() *Class { return o.class }

// DN returns the distinguished name.
func (o *Object) DN() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dn
}

// UUID returns the stable identity key.
func (o *Object) UUID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.uuid
}

// BaseType returns the primary object class.
func (o *Object) BaseType() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.baseType
}

// Initialized reports whether local edits are written back.
func (o *Object) Initialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

// Closed reports whether the object was closed.
func (o *Object) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// ExtensionTypes returns a copy of the extension attach state.
func (o *Object) ExtensionTypes() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyBoolMap(o.extensions)
}

// ExtensionDeps returns a copy of the extension dependency map.
func (o *Object) ExtensionDeps() map[string][]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]string, len(o.extensionDeps))
	for k, v := range o.extensionDeps {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// ExtensionAllowed returns the server-confirmed allowed flags, or nil when the
// backend does not report them.
func (o *Object) ExtensionAllowed() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.extensionAllowed == nil {
		return nil
	}
	return copyBoolMap(o.extensionAllowed)
}

// Attributes returns the attribute names in sorted order.
func (o *Object) Attributes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.attrs))
	for name := range o.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attribute returns a snapshot of attribute name.
func (o *Object) Attribute(name string) (Attribute, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	attr, ok := o.attrs[name]
	if !ok {
		return Attribute{}, false
	}
	return Attribute{Name: attr.Name, Meta: attr.Meta, Values: attr.Values.Clone()}, true
}

// Get returns a copy of the attribute's values.
func (o *Object) Get(name string) (Values, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	attr, ok := o.attrs[name]
	if !ok {
		return nil, false
	}
	return attr.Values.Clone(), true
}

// Set replaces the attribute's values locally and, once the object is
// initialized, writes them back to the backend asynchronously. Multivalue
// attributes are written back after the debounce window.
func (o *Object) Set(name string, values Values) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	attr, ok := o.attrs[name]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	if attr.Meta.ReadOnly {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if attr.Values.Equal(values) {
		o.mu.Unlock()
		return nil
	}
	old := attr.Values
	attr.Values = values.Clone()
	writeBack := o.initialized
	multivalue := attr.Meta.Multivalue
	o.mu.Unlock()

	o.notify(Change{Attribute: name, Old: old, New: values.Clone(), Element: -1, Source: SourceLocal})
	if writeBack {
		o.scheduleWriteBack(name, multivalue)
	}
	return nil
}

// SetElement replaces one element of a multivalue container, growing it when
// idx equals its length.
func (o *Object) SetElement(name string, idx int, value any) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	attr, ok := o.attrs[name]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	if attr.Meta.ReadOnly {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if idx < 0 || idx > len(attr.Values) {
		o.mu.Unlock()
		return fmt.Errorf("proxy: %s: element %d out of range", name, idx)
	}
	old := attr.Values.Clone()
	if idx == len(attr.Values) {
		attr.Values = append(attr.Values, value)
	} else {
		attr.Values[idx] = value
	}
	updated := attr.Values.Clone()
	writeBack := o.initialized
	multivalue := attr.Meta.Multivalue
	o.mu.Unlock()

	o.notify(Change{Attribute: name, Old: old, New: updated, Element: idx, Source: SourceLocal})
	if writeBack {
		o.scheduleWriteBack(name, multivalue)
	}
	return nil
}

func (o *Object) scheduleWriteBack(name string, multivalue bool) {
	if multivalue && o.debounce != nil {
		o.debounce.Trigger(name, func() { o.writeBack(name) })
		return
	}
	o.writeBack(name)
}

// writeBack sends the attribute's current values. Failures are reported to
// the error handlers and never retried.
func (o *Object) writeBack(name string) {
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()

		o.mu.Lock()
		attr, ok := o.attrs[name]
		closed := o.closed
		var values Values
		if ok {
			values = attr.Values.Clone()
		}
		o.mu.Unlock()
		if !ok || closed {
			return
		}

		ctx, cancel := o.requestContext()
		defer cancel()
		if err := o.backend.SetProperty(ctx, o.instanceID, name, values); err != nil {
			o.reportError(writeBackErr(name, err))
		}
	}()
}

// WaitWriteBacks flushes debounced write-backs and waits for every in-flight
// write-back to finish.
func (o *Object) WaitWriteBacks() {
	if o.debounce != nil {
		o.debounce.Flush()
	}
	o.pending.Wait()
}

// Call dispatches a method of the object's class to the backend.
func (o *Object) Call(ctx context.Context, method string, args ...any) (any, error) {
	if o.Closed() {
		return nil, ErrClosed
	}
	if !o.class.HasMethod(method) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	result, err := o.backend.Dispatch(ctx, o.instanceID, method, args...)
	if err != nil {
		return nil, protocolErr("dispatch "+method, err)
	}
	return result, nil
}

// Refresh re-reads object info and attributes (open steps 2 and 3) and applies
// them with write-back suspended. A refresh overtaken by a newer one discards
// its result. Write-back resumes once no refresh is applying, whether or not
// refreshes started meanwhile succeeded.
func (o *Object) Refresh(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	info, err := o.backend.ObjectInfo(ctx, o.instanceID, o.locale)
	if err != nil {
		return protocolErr("object info", err)
	}
	meta, err := o.backend.Attributes(ctx, o.instanceID)
	if err != nil {
		return protocolErr("attributes", err)
	}

	o.mu.Lock()
	if gen != o.generation || o.closed {
		o.mu.Unlock()
		return nil
	}
	o.hydrating++
	o.initialized = false
	o.applyInfo(info)
	changes := o.applyAttributes(meta)
	o.mu.Unlock()

	for _, c := range changes {
		o.notify(c)
	}
	o.notifyInfo()

	o.mu.Lock()
	o.hydrating--
	if o.hydrating == 0 && !o.closed {
		o.initialized = true
	}
	o.mu.Unlock()
	return nil
}

// Close releases the server-side handle and closes the object locally.
func (o *Object) Close(ctx context.Context) error {
	if o.Closed() {
		return nil
	}
	o.WaitWriteBacks()
	err := o.backend.CloseObject(ctx, o.instanceID)
	o.closeLocal()
	if err != nil {
		return protocolErr("close", err)
	}
	return nil
}

// HandleEvent applies a push event addressed to this object. Events for other
// objects are ignored.
func (o *Object) HandleEvent(ctx context.Context, evt Event) error {
	if !o.matches(evt) {
		return nil
	}
	switch evt.Type {
	case EventModified:
		if evt.Reloading {
			return nil
		}
		return o.Refresh(ctx)
	case EventRemoved, EventClosing:
		o.closeLocal()
	}
	return nil
}

func (o *Object) matches(evt Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if evt.UUID != "" && o.uuid != "" {
		return evt.UUID == o.uuid
	}
	return evt.DN != "" && evt.DN == o.dn
}

func (o *Object) closeLocal() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.initialized = false
	handlers := make([]func(), 0, len(o.closeHandlers))
	for _, id := range sortedIDs(o.closeHandlers) {
		handlers = append(handlers, o.closeHandlers[id])
	}
	o.mu.Unlock()

	if o.debounce != nil {
		o.debounce.Stop()
	}
	for _, fn := range handlers {
		fn()
	}
}

// Subscribe registers fn for attribute changes.
func (o *Object) Subscribe(fn func(Change)) func() {
	return subscribe(o, &o.listeners, fn)
}

// OnError registers fn for asynchronous failures such as write-backs.
func (o *Object) OnError(fn func(error)) func() {
	return subscribe(o, &o.errorHandlers, fn)
}

// OnClose registers fn to run when the object closes.
func (o *Object) OnClose(fn func()) func() {
	return subscribe(o, &o.closeHandlers, fn)
}

// OnInfoChange registers fn to run after a refresh applied new object info.
func (o *Object) OnInfoChange(fn func()) func() {
	return subscribe(o, &o.infoHandlers, fn)
}

func subscribe[F any](o *Object, target *map[int]F, fn F) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if *target == nil {
		*target = make(map[int]F)
	}
	o.nextListener++
	id := o.nextListener
	(*target)[id] = fn
	return func() {
		o.mu.Lock()
		delete(*target, id)
		o.mu.Unlock()
	}
}

func (o *Object) notify(c Change) {
	o.mu.Lock()
	fns := make([]func(Change), 0, len(o.listeners))
	for _, id := range sortedIDs(o.listeners) {
		fns = append(fns, o.listeners[id])
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (o *Object) notifyInfo() {
	o.mu.Lock()
	fns := make([]func(), 0, len(o.infoHandlers))
	for _, id := range sortedIDs(o.infoHandlers) {
		fns = append(fns, o.infoHandlers[id])
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (o *Object) reportError(err error) {
	o.mu.Lock()
	fns := make([]func(error), 0, len(o.errorHandlers))
	for _, id := range sortedIDs(o.errorHandlers) {
		fns = append(fns, o.errorHandlers[id])
	}
	o.mu.Unlock()
	o.logger.Printf("proxy: %s: %v", o.instanceID, err)
	for _, fn := range fns {
		fn(err)
	}
}

func (o *Object) requestContext() (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(context.Background(), o.timeout)
	}
	return context.WithCancel(context.Background())
}

// applyInfo stores object info. Callers hold o.mu.
func (o *Object) applyInfo(info Info) {
	o.baseType = info.Base
	o.extensions = copyBoolMap(info.Extensions)
	o.extensionDeps = make(map[string][]string, len(info.ExtensionDeps))
	for k, v := range info.ExtensionDeps {
		o.extensionDeps[k] = append([]string(nil), v...)
	}
	if info.ExtensionAllowed != nil {
		o.extensionAllowed = copyBoolMap(info.ExtensionAllowed)
	} else {
		o.extensionAllowed = nil
	}
}

// applyAttributes merges metadata and values, returning the value changes.
// Callers hold o.mu.
func (o *Object) applyAttributes(meta map[string]AttributeMeta) []Change {
	var changes []Change
	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := meta[name]
		values := m.Value.Clone()
		if values == nil {
			values = Values{}
		}
		attr, ok := o.attrs[name]
		if !ok {
			o.attrs[name] = &Attribute{Name: name, Meta: m, Values: values}
			continue
		}
		attr.Meta = m
		if !attr.Values.Equal(values) {
			changes = append(changes, Change{Attribute: name, Old: attr.Values, New: values.Clone(), Element: -1, Source: SourceRemote})
			attr.Values = values
		}
	}
	return changes
}

func writeBackErr(attribute string, err error) error {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		clone := *perr
		if clone.Op == "" {
			clone.Op = "set " + attribute
		}
		if clone.Path == "" {
			clone.Path = attribute
		}
		return &clone
	}
	return &ProtocolError{Op: "set " + attribute, Path: attribute, Err: err}
}

func copyBoolMap(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
