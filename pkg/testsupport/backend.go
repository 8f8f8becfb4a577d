package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// Call records one request made against a FakeBackend.
type Call struct {
	Method     string
	InstanceID string
	Name       string
	Values     proxy.Values
	Args       []any
}

// FakeObject is the server-side state a FakeBackend serves for one dn.
type FakeObject struct {
	Definition proxy.Definition
	Info       proxy.Info
	Attributes map[string]proxy.AttributeMeta
	// Results maps method names to Dispatch results.
	Results map[string]any
}

// FakeBackend is an in-memory proxy.Backend with call recording and failure
// injection.
type FakeBackend struct {
	mu        sync.Mutex
	objects   map[string]*FakeObject
	instances map[string]string
	nextID    int
	calls     []Call
	failures  map[string]error
	gates     map[string]chan struct{}
}

// NewFakeBackend returns an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		objects:   make(map[string]*FakeObject),
		instances: make(map[string]string),
		failures:  make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

// AddObject serves obj under dn.
func (b *FakeBackend) AddObject(dn string, obj FakeObject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obj.Attributes == nil {
		obj.Attributes = make(map[string]proxy.AttributeMeta)
	}
	if obj.Definition.DN == "" {
		obj.Definition.DN = dn
	}
	b.objects[dn] = &obj
}

// Fail makes every call of method return err until Fail is called with nil.
func (b *FakeBackend) Fail(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, method)
		return
	}
	b.failures[method] = err
}

// Gate blocks the next call of method until the returned release function
// runs. Later calls are not blocked.
func (b *FakeBackend) Gate(method string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.gates[method] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// SetRemote changes an attribute value on the server side only.
func (b *FakeBackend) SetRemote(dn, attribute string, values proxy.Values) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[dn]
	if !ok {
		return
	}
	meta := obj.Attributes[attribute]
	meta.Value = values.Clone()
	obj.Attributes[attribute] = meta
}

// SetExtension flips an extension on the server side only.
func (b *FakeBackend) SetExtension(dn, extension string, attached bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obj, ok := b.objects[dn]; ok {
		if obj.Info.Extensions == nil {
			obj.Info.Extensions = make(map[string]bool)
		}
		obj.Info.Extensions[extension] = attached
	}
}

// Remote returns the server-side values of attribute.
func (b *FakeBackend) Remote(dn, attribute string) proxy.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[dn]
	if !ok {
		return nil
	}
	return obj.Attributes[attribute].Value.Clone()
}

// Calls returns the recorded calls in order.
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsTo returns the recorded calls of method.
func (b *FakeBackend) CallsTo(method string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the recorded method names in order.
func (b *FakeBackend) Methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.calls))
	for _, c := range b.calls {
		out = append(out, c.Method)
	}
	return out
}

// OpenInstances returns the ids of instances that were opened and not closed.
func (b *FakeBackend) OpenInstances() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.instances))
	for id := range b.instances {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *FakeBackend) enter(ctx context.Context, call Call) error {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	gate := b.gates[call.Method]
	delete(b.gates, call.Method)
	err := b.failures[call.Method]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (b *FakeBackend) object(instanceID string) (*FakeObject, error) {
	dn, ok := b.instances[instanceID]
	if !ok {
		return nil, &proxy.ProtocolError{Code: 404, Message: fmt.Sprintf("unknown instance %q", instanceID)}
	}
	return b.objects[dn], nil
}

func (b *FakeBackend) OpenObject(ctx context.Context, req proxy.OpenRequest) (proxy.Definition, error) {
	if err := b.enter(ctx, Call{Method: "openObject", Name: req.Key()}); err != nil {
		return proxy.Definition{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[req.Key()]
	if !ok {
		return proxy.Definition{}, &proxy.ProtocolError{Code: 404, Message: fmt.Sprintf("no such object %q", req.Key())}
	}
	b.nextID++
	def := obj.Definition
	def.InstanceID = fmt.Sprintf("inst-%d", b.nextID)
	def.Methods = append([]string(nil), def.Methods...)
	def.Attributes = append([]string(nil), def.Attributes...)
	b.instances[def.InstanceID] = req.Key()
	return def, nil
}

func (b *FakeBackend) ObjectInfo(ctx context.Context, instanceID, locale string) (proxy.Info, error) {
	if err := b.enter(ctx, Call{Method: "getObjectInfo", InstanceID: instanceID, Name: locale}); err != nil {
		return proxy.Info{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.object(instanceID)
	if err != nil {
		return proxy.Info{}, err
	}
	info := proxy.Info{
		Base:          obj.Info.Base,
		Extensions:    make(map[string]bool, len(obj.Info.Extensions)),
		ExtensionDeps: make(map[string][]string, len(obj.Info.ExtensionDeps)),
	}
	for k, v := range obj.Info.Extensions {
		info.Extensions[k] = v
	}
	for k, v := range obj.Info.ExtensionDeps {
		info.ExtensionDeps[k] = append([]string(nil), v...)
	}
	if obj.Info.ExtensionAllowed != nil {
		info.ExtensionAllowed = make(map[string]bool, len(obj.Info.ExtensionAllowed))
		for k, v := range obj.Info.ExtensionAllowed {
			info.ExtensionAllowed[k] = v
		}
	}
	return info, nil
}

func (b *FakeBackend) Attributes(ctx context.Context, instanceID string) (map[string]proxy.AttributeMeta, error) {
	if err := b.enter(ctx, Call{Method: "getAttributes", InstanceID: instanceID}); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.object(instanceID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]proxy.AttributeMeta, len(obj.Attributes))
	for name, meta := range obj.Attributes {
		meta.Value = meta.Value.Clone()
		out[name] = meta
	}
	return out, nil
}

func (b *FakeBackend) SetProperty(ctx context.Context, instanceID, attribute string, values proxy.Values) error {
	if err := b.enter(ctx, Call{Method: "setObjectProperty", InstanceID: instanceID, Name: attribute, Values: values.Clone()}); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.object(instanceID)
	if err != nil {
		return err
	}
	meta, ok := obj.Attributes[attribute]
	if !ok {
		return &proxy.ProtocolError{Code: 400, Message: "unknown attribute", Path: attribute}
	}
	meta.Value = values.Clone()
	obj.Attributes[attribute] = meta
	return nil
}

func (b *FakeBackend) Dispatch(ctx context.Context, instanceID, method string, args ...any) (any, error) {
	if err := b.enter(ctx, Call{Method: "dispatchObjectMethod", InstanceID: instanceID, Name: method, Args: args}); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.object(instanceID)
	if err != nil {
		return nil, err
	}
	switch method {
	case "extend", "retract":
		if len(args) > 0 {
			if ext, ok := args[0].(string); ok {
				if obj.Info.Extensions == nil {
					obj.Info.Extensions = make(map[string]bool)
				}
				obj.Info.Extensions[ext] = method == "extend"
			}
		}
	}
	return obj.Results[method], nil
}

func (b *FakeBackend) CloseObject(ctx context.Context, instanceID string) error {
	if err := b.enter(ctx, Call{Method: "closeObject", InstanceID: instanceID}); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.instances, instanceID)
	return nil
}

var _ proxy.Backend = (*FakeBackend)(nil)

// UserDN and UserUUID identify the object served by NewUserBackend.
const (
	UserDN   = "cn=Alice Doe,ou=people,dc=example,dc=net"
	UserUUID = "5b0c1d8e-2f5a-4c3e-9d61-0a7f3b2c4e11"
)

// UserObject returns a user object with a mail extension attached and posix
// and samba extensions available.
func UserObject() FakeObject {
	return FakeObject{
		Definition: proxy.Definition{
			ObjectType: "object",
			DN:         UserDN,
			UUID:       UserUUID,
			Methods:    []string{"commit", "extend", "retract", "lock"},
			Attributes: []string{"uid", "givenName", "sn", "mail", "userPassword", "uidNumber", "homeDirectory", "sambaSID"},
		},
		Info: proxy.Info{
			Base: "User",
			Extensions: map[string]bool{
				"MailAccount": true,
				"PosixUser":   false,
				"SambaUser":   false,
			},
			ExtensionDeps: map[string][]string{
				"MailAccount": nil,
				"PosixUser":   nil,
				"SambaUser":   {"PosixUser"},
			},
		},
		Attributes: map[string]proxy.AttributeMeta{
			"uid":           {Type: "String", Mandatory: true, ReadOnly: true, Value: proxy.Values{"alice"}},
			"givenName":     {Type: "String", Mandatory: true, Value: proxy.Values{"Alice"}},
			"sn":            {Type: "String", Mandatory: true, Value: proxy.Values{"Doe"}},
			"mail":          {Type: "String", Multivalue: true, Extension: "MailAccount", Value: proxy.Values{"alice@example.net"}},
			"userPassword":  {Type: "Password", Value: proxy.Values{}},
			"uidNumber":     {Type: "Integer", Extension: "PosixUser", Value: proxy.Values{}},
			"homeDirectory": {Type: "String", Extension: "PosixUser", Value: proxy.Values{}},
			"sambaSID":      {Type: "String", Extension: "SambaUser", Value: proxy.Values{}},
		},
		Results: map[string]any{"commit": true},
	}
}

// NewUserBackend returns a FakeBackend serving UserObject under UserDN.
func NewUserBackend() *FakeBackend {
	b := NewFakeBackend()
	b.AddObject(UserDN, UserObject())
	return b
}
