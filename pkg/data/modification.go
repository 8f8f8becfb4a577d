package data

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// AttributeSource is the object surface the modification manager watches.
// *proxy.Object satisfies it.
type AttributeSource interface {
	Get(name string) (proxy.Values, bool)
	Subscribe(fn func(proxy.Change)) func()
}

// ModificationManager compares watched attributes against a snapshot taken
// at registration time. Modified is a pure value comparison: editing a value
// and editing it back leaves the object unmodified.
type ModificationManager struct {
	source AttributeSource

	mu          sync.Mutex
	snapshots   map[string]proxy.Values
	modified    bool
	unsubscribe func()
	nextID      int
	listeners   map[int]func(bool)
}

// NewModificationManager returns a manager watching source.
func NewModificationManager(source AttributeSource) *ModificationManager {
	m := &ModificationManager{
		source:    source,
		snapshots: make(map[string]proxy.Values),
		listeners: make(map[int]func(bool)),
	}
	m.unsubscribe = source.Subscribe(m.handleChange)
	return m
}

// Register snapshots attribute name and starts watching it.
func (m *ModificationManager) Register(name string) error {
	values, ok := m.source.Get(name)
	if !ok {
		return fmt.Errorf("data: register %q: %w", name, proxy.ErrUnknownAttribute)
	}
	m.mu.Lock()
	m.snapshots[name] = values.Clone()
	m.mu.Unlock()
	m.recompute(true)
	return nil
}

// Unregister stops watching attribute name and drops its snapshot.
func (m *ModificationManager) Unregister(name string) {
	m.mu.Lock()
	delete(m.snapshots, name)
	m.mu.Unlock()
	m.recompute(true)
}

// Update re-snapshots attribute name from its live value. The aggregate flag
// is re-evaluated without notifying listeners.
func (m *ModificationManager) Update(name string) {
	values, ok := m.source.Get(name)
	m.mu.Lock()
	if _, watched := m.snapshots[name]; watched && ok {
		m.snapshots[name] = values.Clone()
	}
	m.mu.Unlock()
	m.recompute(false)
}

// UpdateAll re-snapshots every watched attribute, typically after a save.
func (m *ModificationManager) UpdateAll() {
	for _, name := range m.Watched() {
		m.Update(name)
	}
}

// Modified reports whether any watched attribute differs from its snapshot.
func (m *ModificationManager) Modified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modified
}

// ModifiedAttributes returns the watched attributes that differ from their
// snapshot, sorted.
func (m *ModificationManager) ModifiedAttributes() []string {
	m.mu.Lock()
	snapshots := make(map[string]proxy.Values, len(m.snapshots))
	for k, v := range m.snapshots {
		snapshots[k] = v
	}
	m.mu.Unlock()

	var out []string
	for name, snap := range snapshots {
		live, _ := m.source.Get(name)
		if valuesDiffer(snap, live) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Watched returns the registered attribute names, sorted.
func (m *ModificationManager) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OnChange registers fn for changes of the aggregate flag.
func (m *ModificationManager) OnChange(fn func(modified bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Close stops watching the source.
func (m *ModificationManager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.snapshots = make(map[string]proxy.Values)
	m.modified = false
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// handleChange re-evaluates on every change of a watched attribute. Values
// applied from the backend re-baseline the attribute.
func (m *ModificationManager) handleChange(c proxy.Change) {
	m.mu.Lock()
	_, watched := m.snapshots[c.Attribute]
	m.mu.Unlock()
	if !watched {
		return
	}
	if c.Source == proxy.SourceRemote {
		m.Update(c.Attribute)
		return
	}
	m.recompute(true)
}

func (m *ModificationManager) recompute(notify bool) {
	m.mu.Lock()
	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	snapshots := make([]proxy.Values, len(names))
	for i, name := range names {
		snapshots[i] = m.snapshots[name]
	}
	m.mu.Unlock()

	modified := false
	for i, name := range names {
		live, _ := m.source.Get(name)
		if valuesDiffer(snapshots[i], live) {
			modified = true
			break
		}
	}

	m.mu.Lock()
	changed := modified != m.modified
	m.modified = modified
	var fns []func(bool)
	if changed && notify {
		ids := make([]int, 0, len(m.listeners))
		for id := range m.listeners {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fns = append(fns, m.listeners[id])
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(modified)
	}
}

// valuesDiffer compares a snapshot with a live container. Extra elements on
// either side count only when they are not empty-equivalent.
func valuesDiffer(snapshot, live proxy.Values) bool {
	common := len(snapshot)
	if len(live) < common {
		common = len(live)
	}
	for i := 0; i < common; i++ {
		a, b := snapshot[i], live[i]
		if proxy.IsEmptyValue(a) && proxy.IsEmptyValue(b) {
			continue
		}
		if !reflect.DeepEqual(a, b) {
			return true
		}
	}
	for _, rest := range []proxy.Values{snapshot[common:], live[common:]} {
		for _, v := range rest {
			if !proxy.IsEmptyValue(v) {
				return true
			}
		}
	}
	return false
}
