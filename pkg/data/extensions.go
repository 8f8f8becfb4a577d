package data

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDependencyCycle is returned when the extension dependency graph is not
// acyclic.
var ErrDependencyCycle = errors.New("data: extension dependency cycle")

// ExtensionState is the extension surface of an open object. *proxy.Object
// satisfies it.
type ExtensionState interface {
	ExtensionTypes() map[string]bool
	ExtensionDeps() map[string][]string
	ExtensionAllowed() map[string]bool
}

// ExtensionFinder answers dependency questions over one snapshot of an
// object's extension state.
type ExtensionFinder struct {
	attached map[string]bool
	deps     map[string][]string
	allowed  map[string]bool
}

// NewExtensionFinder builds a finder from explicit maps. A nil allowed map
// disables the server-confirmed filter.
func NewExtensionFinder(attached map[string]bool, deps map[string][]string, allowed map[string]bool) *ExtensionFinder {
	f := &ExtensionFinder{
		attached: make(map[string]bool, len(attached)),
		deps:     make(map[string][]string, len(deps)),
	}
	for k, v := range attached {
		f.attached[k] = v
	}
	for k, v := range deps {
		f.deps[k] = append([]string(nil), v...)
	}
	if allowed != nil {
		f.allowed = make(map[string]bool, len(allowed))
		for k, v := range allowed {
			f.allowed[k] = v
		}
	}
	return f
}

// FinderFor snapshots the extension state of obj.
func FinderFor(obj ExtensionState) *ExtensionFinder {
	return NewExtensionFinder(obj.ExtensionTypes(), obj.ExtensionDeps(), obj.ExtensionAllowed())
}

// Names returns every known extension, sorted.
func (f *ExtensionFinder) Names() []string {
	set := make(map[string]bool, len(f.attached)+len(f.deps))
	for name := range f.attached {
		set[name] = true
	}
	for name, deps := range f.deps {
		set[name] = true
		for _, dep := range deps {
			set[dep] = true
		}
	}
	return sortedNames(set)
}

// Attached reports whether name is attached.
func (f *ExtensionFinder) Attached(name string) bool { return f.attached[name] }

// Ordered returns every known extension so that each one follows all of its
// transitive dependencies. Ties are broken by name.
func (f *ExtensionFinder) Ordered() ([]string, error) {
	return f.order(f.Names())
}

func (f *ExtensionFinder) order(roots []string) ([]string, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var (
		out   []string
		stack []string
	)
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
				}
			}
			cycle := append(append([]string(nil), stack[start:]...), name)
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
		}
		state[name] = visiting
		stack = append(stack, name)
		deps := append([]string(nil), f.deps[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		out = append(out, name)
		return nil
	}
	for _, name := range roots {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Addable returns the detached extensions, sorted. When the backend reports
// allowed flags only allowed extensions are included.
func (f *ExtensionFinder) Addable() []string {
	var out []string
	for _, name := range f.Names() {
		if f.attached[name] {
			continue
		}
		if f.allowed != nil && !f.allowed[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Retractable returns the attached extensions, sorted, honouring allowed
// flags like Addable.
func (f *ExtensionFinder) Retractable() []string {
	var out []string
	for _, name := range f.Names() {
		if !f.attached[name] {
			continue
		}
		if f.allowed != nil && !f.allowed[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// MissingDependencies returns the declared dependencies of name that are not
// attached, sorted.
func (f *ExtensionFinder) MissingDependencies(name string) []string {
	set := make(map[string]bool)
	for _, dep := range f.deps[name] {
		if !f.attached[dep] {
			set[dep] = true
		}
	}
	return sortedNames(set)
}

// AllMissing returns the union of missing dependencies across every attached
// extension, deduplicated and sorted.
func (f *ExtensionFinder) AllMissing() []string {
	set := make(map[string]bool)
	for name, attached := range f.attached {
		if !attached {
			continue
		}
		for _, dep := range f.MissingDependencies(name) {
			set[dep] = true
		}
	}
	return sortedNames(set)
}

// Dependents returns the attached extensions that depend on name, directly or
// transitively, sorted.
func (f *ExtensionFinder) Dependents(name string) []string {
	set := make(map[string]bool)
	var walk func(target string)
	walk = func(target string) {
		for ext, deps := range f.deps {
			if !f.attached[ext] || set[ext] {
				continue
			}
			for _, dep := range deps {
				if dep == target {
					set[ext] = true
					walk(ext)
					break
				}
			}
		}
	}
	walk(name)
	delete(set, name)
	return sortedNames(set)
}

// AddPlan returns the extensions to attach, in order, so that name ends up
// attached with all of its transitive dependencies.
func (f *ExtensionFinder) AddPlan(name string) ([]string, error) {
	ordered, err := f.order([]string{name})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ext := range ordered {
		if !f.attached[ext] {
			out = append(out, ext)
		}
	}
	return out, nil
}

// RetractPlan returns the extensions to detach, in order, so that name can be
// retracted without leaving an attached extension with a missing dependency.
func (f *ExtensionFinder) RetractPlan(name string) ([]string, error) {
	if !f.attached[name] {
		return nil, nil
	}
	roots := append(f.Dependents(name), name)
	ordered, err := f.order(roots)
	if err != nil {
		return nil, err
	}
	include := make(map[string]bool, len(roots))
	for _, r := range roots {
		include[r] = true
	}
	var out []string
	for i := len(ordered) - 1; i >= 0; i-- {
		if include[ordered[i]] {
			out = append(out, ordered[i])
		}
	}
	return out, nil
}

func sortedNames(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
