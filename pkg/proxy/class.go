package proxy

import (
	"sort"
	"sync"
)

// Class is the attribute and method surface shared by every object of one
// (object type, base type) pair.
type Class struct {
	ObjectType string
	BaseType   string
	Attributes []string
	Methods    []string

	attrs   map[string]bool
	methods map[string]bool
}

func newClass(objectType, baseType string, def Definition, meta map[string]AttributeMeta) *Class {
	c := &Class{
		ObjectType: objectType,
		BaseType:   baseType,
		attrs:      make(map[string]bool),
		methods:    make(map[string]bool),
	}
	for _, name := range def.Attributes {
		c.attrs[name] = true
	}
	for name := range meta {
		c.attrs[name] = true
	}
	for _, name := range def.Methods {
		c.methods[name] = true
	}
	c.Attributes = sortedSet(c.attrs)
	c.Methods = sortedSet(c.methods)
	return c
}

// HasAttribute reports whether the class exposes attribute name.
func (c *Class) HasAttribute(name string) bool { return c.attrs[name] }

// HasMethod reports whether the class exposes method name.
func (c *Class) HasMethod(name string) bool { return c.methods[name] }

type classKey struct {
	objectType string
	baseType   string
}

// ClassCache keeps one Class per (object type, base type) pair. Classes are
// stored only after an open sequence completed.
type ClassCache struct {
	mu      sync.RWMutex
	classes map[classKey]*Class
}

// NewClassCache returns an empty cache.
func NewClassCache() *ClassCache {
	return &ClassCache{classes: make(map[classKey]*Class)}
}

// Get returns the cached class.
func (c *ClassCache) Get(objectType, baseType string) (*Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	class, ok := c.classes[classKey{objectType, baseType}]
	return class, ok
}

// Len returns the number of cached classes.
func (c *ClassCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.classes)
}

func (c *ClassCache) loadOrStore(class *Class) *Class {
	key := classKey{class.ObjectType, class.BaseType}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.classes[key]; ok {
		return existing
	}
	c.classes[key] = class
	return class
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
