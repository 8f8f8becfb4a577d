package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrInvalidRequest is returned by Open for requests naming no object.
var ErrInvalidRequest = errors.New("proxy: open request needs a dn or workflow id")

// Factory opens remote objects and keeps the class cache shared by them.
type Factory struct {
	backend      Backend
	classes      *ClassCache
	logger       *log.Logger
	locale       string
	debounce     time.Duration
	writeTimeout time.Duration
	bus          *Bus
	onError      func(*Object, error)
}

// Option configures a Factory.
type Option func(*Factory)

// WithClassCache shares cache between factories.
func WithClassCache(cache *ClassCache) Option {
	return func(f *Factory) {
		if cache != nil {
			f.classes = cache
		}
	}
}

// WithLogger sets the logger used by the factory and its objects.
func WithLogger(logger *log.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithLocale sets the locale sent with object info requests.
func WithLocale(locale string) Option {
	return func(f *Factory) {
		f.locale = locale
	}
}

// WithDebounce overrides the multivalue write-back window.
func WithDebounce(window time.Duration) Option {
	return func(f *Factory) {
		f.debounce = window
	}
}

// WithWriteTimeout bounds each asynchronous write-back request.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(f *Factory) {
		f.writeTimeout = timeout
	}
}

// WithBus subscribes every opened object to push events from bus.
func WithBus(bus *Bus) Option {
	return func(f *Factory) {
		f.bus = bus
	}
}

// WithErrorHandler receives asynchronous failures of every opened object.
func WithErrorHandler(fn func(*Object, error)) Option {
	return func(f *Factory) {
		f.onError = fn
	}
}

// NewFactory returns a Factory driving backend.
func NewFactory(backend Backend, opts ...Option) *Factory {
	f := &Factory{
		backend:      backend,
		classes:      NewClassCache(),
		logger:       log.Default(),
		debounce:     DefaultDebounce,
		writeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Classes returns the factory's class cache.
func (f *Factory) Classes() *ClassCache { return f.classes }

// Open runs the open sequence: open the object, read its info, then read its
// attributes. Each step starts only after the previous one succeeded. When a
// later step fails the server handle is released and nothing is cached.
func (f *Factory) Open(ctx context.Context, req OpenRequest) (*Object, error) {
	if f.backend == nil {
		return nil, errors.New("proxy: factory has no backend")
	}
	if req.DN == "" && req.WorkflowID == "" {
		return nil, ErrInvalidRequest
	}

	def, err := f.backend.OpenObject(ctx, req)
	if err != nil {
		return nil, protocolErr("open "+req.Key(), err)
	}
	if def.InstanceID == "" {
		return nil, &ProtocolError{Op: "open " + req.Key(), Message: "backend returned no instance id"}
	}

	info, err := f.backend.ObjectInfo(ctx, def.InstanceID, f.locale)
	if err != nil {
		f.release(def.InstanceID)
		return nil, protocolErr("object info", err)
	}
	meta, err := f.backend.Attributes(ctx, def.InstanceID)
	if err != nil {
		f.release(def.InstanceID)
		return nil, protocolErr("attributes", err)
	}

	objectType := def.ObjectType
	if objectType == "" {
		objectType = req.Type
	}
	class, ok := f.classes.Get(objectType, info.Base)
	if !ok {
		class = f.classes.loadOrStore(newClass(objectType, info.Base, def, meta))
	}

	obj := &Object{
		backend:    f.backend,
		instanceID: def.InstanceID,
		class:      class,
		logger:     f.logger,
		locale:     f.locale,
		timeout:    f.writeTimeout,
		debounce:   NewDebouncer(f.debounce),
		dn:         def.DN,
		uuid:       def.UUID,
		attrs:      make(map[string]*Attribute, len(meta)),
	}
	if obj.dn == "" {
		obj.dn = req.DN
	}
	obj.applyInfo(info)
	obj.applyAttributes(meta)
	obj.initialized = true

	if f.onError != nil {
		handler := f.onError
		obj.OnError(func(err error) { handler(obj, err) })
	}
	if f.bus != nil {
		unsubscribe := f.bus.Subscribe(fmt.Sprintf("object %s", def.InstanceID), obj)
		obj.OnClose(unsubscribe)
	}
	return obj, nil
}

func (f *Factory) release(instanceID string) {
	ctx := context.Background()
	if f.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.writeTimeout)
		defer cancel()
	}
	if err := f.backend.CloseObject(ctx, instanceID); err != nil {
		f.logger.Printf("proxy: release %s after failed open: %v", instanceID, err)
	}
}
