package engine

import (
	"sort"
	"strings"
	"sync"
)

// SymbolTable maps template symbols to live widgets and forms. One table is
// shared by every Context of a Session; redefining a symbol overwrites the
// previous entry.
type SymbolTable struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{entries: make(map[string]any)}
}

// Define stores value under symbol. A leading "@" is ignored.
func (s *SymbolTable) Define(symbol string, value any) {
	key := symbolKey(symbol)
	if key == "" || value == nil {
		return
	}
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

// Lookup returns the value stored under symbol.
func (s *SymbolTable) Lookup(symbol string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[symbolKey(symbol)]
	return v, ok
}

// Widget resolves symbol to a widget. Forms resolve to their renderer widget.
func (s *SymbolTable) Widget(symbol string) (*Widget, bool) {
	v, ok := s.Lookup(symbol)
	if !ok {
		return nil, false
	}
	switch typed := v.(type) {
	case *Widget:
		return typed, true
	case *Form:
		return typed.Widget, typed.Widget != nil
	default:
		return nil, false
	}
}

// Form resolves symbol to a form.
func (s *SymbolTable) Form(symbol string) (*Form, bool) {
	v, ok := s.Lookup(symbol)
	if !ok {
		return nil, false
	}
	form, ok := v.(*Form)
	return form, ok
}

// Remove deletes symbol.
func (s *SymbolTable) Remove(symbol string) {
	s.mu.Lock()
	delete(s.entries, symbolKey(symbol))
	s.mu.Unlock()
}

// Names returns the defined symbols in sorted order.
func (s *SymbolTable) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func symbolKey(symbol string) string {
	return strings.TrimPrefix(strings.TrimSpace(symbol), "@")
}
