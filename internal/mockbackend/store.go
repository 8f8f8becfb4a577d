package mockbackend

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// Error codes returned in JSON-RPC error objects.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeNotFound       = -32000
	CodeValidation     = -32001
	CodeDependency     = -32002
)

// Entry is one stored directory object.
type Entry struct {
	DN         string
	UUID       string
	Base       string
	Extensions map[string]bool
	Values     map[string]proxy.Values
}

func (e *Entry) clone() *Entry {
	out := &Entry{
		DN:         e.DN,
		UUID:       e.UUID,
		Base:       e.Base,
		Extensions: make(map[string]bool, len(e.Extensions)),
		Values:     make(map[string]proxy.Values, len(e.Values)),
	}
	for k, v := range e.Extensions {
		out.Extensions[k] = v
	}
	for k, v := range e.Values {
		out.Values[k] = v.Clone()
	}
	return out
}

type seedFile struct {
	Objects []struct {
		DN         string           `yaml:"dn"`
		UUID       string           `yaml:"uuid"`
		Base       string           `yaml:"base"`
		Extensions []string         `yaml:"extensions"`
		Values     map[string][]any `yaml:"values"`
	} `yaml:"objects"`
}

// Store is an in-memory directory. It implements proxy.Backend: every open
// request gets a working copy of the entry which commit writes back.
type Store struct {
	catalog *Catalog

	mu        sync.Mutex
	entries   map[string]*Entry
	instances map[string]*Entry
	listeners []func(proxy.Event)
}

// NewStore returns an empty Store for catalog.
func NewStore(catalog *Catalog) *Store {
	return &Store{
		catalog:   catalog,
		entries:   make(map[string]*Entry),
		instances: make(map[string]*Entry),
	}
}

// Seed adds the objects of a YAML seed document.
func (s *Store) Seed(raw []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("mockbackend: parse seed: %w", err)
	}
	for _, obj := range seed.Objects {
		entry := &Entry{
			DN:         obj.DN,
			UUID:       obj.UUID,
			Base:       obj.Base,
			Extensions: make(map[string]bool),
			Values:     make(map[string]proxy.Values),
		}
		for _, ext := range obj.Extensions {
			entry.Extensions[ext] = true
		}
		for attr, values := range obj.Values {
			entry.Values[attr] = proxy.Values(values)
		}
		if err := s.Add(entry); err != nil {
			return err
		}
	}
	return nil
}

// Add stores entry. A missing uuid is generated.
func (s *Store) Add(entry *Entry) error {
	if entry == nil || entry.DN == "" {
		return errors.New("mockbackend: entry needs a dn")
	}
	if _, ok := s.catalog.Type(entry.Base); !ok {
		return fmt.Errorf("mockbackend: %s: unknown base type %q", entry.DN, entry.Base)
	}
	for ext := range entry.Extensions {
		typ, ok := s.catalog.Type(ext)
		if !ok || typ.Extends != entry.Base {
			return fmt.Errorf("mockbackend: %s: extension %q does not apply to %s", entry.DN, ext, entry.Base)
		}
	}
	stored := entry.clone()
	if stored.UUID == "" {
		stored.UUID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[stored.DN]; exists {
		return fmt.Errorf("mockbackend: duplicate dn %q", stored.DN)
	}
	s.entries[stored.DN] = stored
	return nil
}

// Entry returns a copy of the stored entry for dn.
func (s *Store) Entry(dn string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[dn]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// DNs returns the stored dns, sorted.
func (s *Store) DNs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for dn := range s.entries {
		out = append(out, dn)
	}
	sort.Strings(out)
	return out
}

// Instances returns the number of open instances.
func (s *Store) Instances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// OnEvent registers fn for change events.
func (s *Store) OnEvent(fn func(proxy.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) emit(evt proxy.Event) {
	s.mu.Lock()
	fns := make([]func(proxy.Event), len(s.listeners))
	copy(fns, s.listeners)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

func (s *Store) instance(id string) (*Entry, error) {
	entry, ok := s.instances[id]
	if !ok {
		return nil, &proxy.ProtocolError{Code: CodeNotFound, Message: fmt.Sprintf("unknown instance %q", id)}
	}
	return entry, nil
}

// attributes returns every attribute of base and its applicable extensions.
// Callers hold s.mu.
func (s *Store) attributes(entry *Entry) map[string]proxy.AttributeMeta {
	out := make(map[string]proxy.AttributeMeta)
	types := []*ObjectType{}
	if base, ok := s.catalog.Type(entry.Base); ok {
		types = append(types, base)
	}
	types = append(types, s.catalog.Extensions(entry.Base)...)
	for _, typ := range types {
		for name, meta := range typ.Attributes {
			meta.Value = entry.Values[name].Clone()
			if meta.Value == nil {
				meta.Value = proxy.Values{}
			}
			out[name] = meta
		}
	}
	return out
}

func (s *Store) OpenObject(_ context.Context, req proxy.OpenRequest) (proxy.Definition, error) {
	if req.WorkflowID != "" {
		return proxy.Definition{}, &proxy.ProtocolError{Code: CodeInvalidParams, Message: "workflows are not supported"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[req.DN]
	if !ok {
		return proxy.Definition{}, &proxy.ProtocolError{Code: CodeNotFound, Message: fmt.Sprintf("no such object %q", req.DN)}
	}
	id := uuid.NewString()
	s.instances[id] = entry.clone()

	def := proxy.Definition{
		InstanceID: id,
		ObjectType: "object",
		DN:         entry.DN,
		UUID:       entry.UUID,
	}
	if base, ok := s.catalog.Type(entry.Base); ok {
		def.Methods = append([]string(nil), base.Methods...)
	}
	for name := range s.attributes(entry) {
		def.Attributes = append(def.Attributes, name)
	}
	sort.Strings(def.Attributes)
	return def, nil
}

func (s *Store) ObjectInfo(_ context.Context, instanceID, _ string) (proxy.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.instance(instanceID)
	if err != nil {
		return proxy.Info{}, err
	}
	info := proxy.Info{
		Base:             entry.Base,
		Extensions:       make(map[string]bool),
		ExtensionDeps:    make(map[string][]string),
		ExtensionAllowed: make(map[string]bool),
	}
	for _, ext := range s.catalog.Extensions(entry.Base) {
		info.Extensions[ext.Name] = entry.Extensions[ext.Name]
		info.ExtensionDeps[ext.Name] = append([]string(nil), ext.Requires...)
	}
	for _, ext := range s.catalog.Extensions(entry.Base) {
		allowed := true
		for _, dep := range ext.Requires {
			if !entry.Extensions[dep] {
				allowed = false
			}
		}
		info.ExtensionAllowed[ext.Name] = allowed
	}
	return info, nil
}

func (s *Store) Attributes(_ context.Context, instanceID string) (map[string]proxy.AttributeMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.instance(instanceID)
	if err != nil {
		return nil, err
	}
	return s.attributes(entry), nil
}

func (s *Store) SetProperty(_ context.Context, instanceID, attribute string, values proxy.Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.instance(instanceID)
	if err != nil {
		return err
	}
	meta, ok := s.attributes(entry)[attribute]
	if !ok {
		return &proxy.ProtocolError{Code: CodeInvalidParams, Message: "unknown attribute", Path: attribute}
	}
	if meta.ReadOnly {
		return &proxy.ProtocolError{Code: CodeValidation, Message: "attribute is read-only", Path: attribute}
	}
	if !meta.Multivalue && len(values) > 1 {
		return &proxy.ProtocolError{Code: CodeValidation, Message: "attribute takes a single value", Path: attribute}
	}
	entry.Values[attribute] = values.Compact()
	return nil
}

func (s *Store) Dispatch(_ context.Context, instanceID, method string, args ...any) (any, error) {
	s.mu.Lock()
	entry, err := s.instance(instanceID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	base, _ := s.catalog.Type(entry.Base)
	known := false
	if base != nil {
		for _, m := range base.Methods {
			known = known || m == method
		}
	}
	if !known {
		s.mu.Unlock()
		return nil, &proxy.ProtocolError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not available", method)}
	}

	var (
		result any = true
		evt    *proxy.Event
	)
	switch method {
	case "commit":
		if err = s.validate(entry); err == nil {
			stored := entry.clone()
			s.entries[entry.DN] = stored
			evt = &proxy.Event{Type: proxy.EventModified, UUID: entry.UUID, DN: entry.DN}
		}
	case "extend":
		err = s.extend(entry, stringArg(args))
	case "retract":
		err = s.retract(entry, stringArg(args))
	case "lock", "unlock":
		entry.Values["accountLocked"] = proxy.Values{method == "lock"}
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if evt != nil {
		s.emit(*evt)
	}
	return result, nil
}

func (s *Store) CloseObject(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.instance(instanceID); err != nil {
		return err
	}
	delete(s.instances, instanceID)
	return nil
}

// Remove deletes the entry for dn and emits a remove event.
func (s *Store) Remove(dn string) bool {
	s.mu.Lock()
	entry, ok := s.entries[dn]
	if ok {
		delete(s.entries, dn)
	}
	s.mu.Unlock()
	if ok {
		s.emit(proxy.Event{Type: proxy.EventRemoved, UUID: entry.UUID, DN: entry.DN})
	}
	return ok
}

// validate checks mandatory attributes and patterns of the base type and every
// attached extension. Callers hold s.mu.
func (s *Store) validate(entry *Entry) error {
	attrs := s.attributes(entry)
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		meta := attrs[name]
		if meta.Extension != "" && !entry.Extensions[meta.Extension] {
			continue
		}
		values := entry.Values[name].Compact()
		if meta.Mandatory && len(values) == 0 {
			return &proxy.ProtocolError{Code: CodeValidation, Message: "value is required", Path: name}
		}
		if meta.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(meta.Pattern)
		if err != nil {
			continue
		}
		for _, v := range values {
			if str, ok := v.(string); ok && !re.MatchString(str) {
				return &proxy.ProtocolError{Code: CodeValidation, Message: "value does not match the expected format", Path: name}
			}
		}
	}
	return nil
}

func (s *Store) extend(entry *Entry, name string) error {
	typ, ok := s.catalog.Type(name)
	if !ok || !typ.Extension || typ.Extends != entry.Base {
		return &proxy.ProtocolError{Code: CodeInvalidParams, Message: fmt.Sprintf("extension %q does not apply", name)}
	}
	if entry.Extensions[name] {
		return &proxy.ProtocolError{Code: CodeDependency, Message: fmt.Sprintf("extension %q already attached", name)}
	}
	for _, dep := range typ.Requires {
		if !entry.Extensions[dep] {
			return &proxy.ProtocolError{Code: CodeDependency, Message: fmt.Sprintf("extension %q requires %q", name, dep)}
		}
	}
	entry.Extensions[name] = true
	return nil
}

func (s *Store) retract(entry *Entry, name string) error {
	typ, ok := s.catalog.Type(name)
	if !ok || !entry.Extensions[name] {
		return &proxy.ProtocolError{Code: CodeInvalidParams, Message: fmt.Sprintf("extension %q is not attached", name)}
	}
	for _, other := range s.catalog.Extensions(entry.Base) {
		if !entry.Extensions[other.Name] {
			continue
		}
		for _, dep := range other.Requires {
			if dep == name {
				return &proxy.ProtocolError{Code: CodeDependency, Message: fmt.Sprintf("extension %q is required by %q", name, other.Name)}
			}
		}
	}
	delete(entry.Extensions, name)
	for attr := range typ.Attributes {
		delete(entry.Values, attr)
	}
	return nil
}

func stringArg(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

var _ proxy.Backend = (*Store)(nil)
