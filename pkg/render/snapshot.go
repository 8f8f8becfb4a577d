package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formbind/pkg/engine"
)

// Node is a render-ready copy of one widget.
type Node struct {
	Class     string
	ModelPath string
	Symbol    string
	Label     string
	// For is the model path of the input a label widget describes.
	For      string
	Value    any
	Visible  bool
	Enabled  bool
	ReadOnly bool
	Valid    bool
	Messages []string
	Children []*Node
}

// Input reports whether the node is bound to a model path.
func (n *Node) Input() bool { return n.ModelPath != "" }

// DisplayValue formats Value for previews. Slices are joined with ", ".
func (n *Node) DisplayValue() string {
	return formatValue(n.Value)
}

var labelProperties = []string{"label", "legend", "title", "text"}

// Snapshot copies the widget tree of ectx. The root node stands for the
// context's root container and is labelled with the extension name. Invisible
// widgets are dropped unless options.IncludeHidden is set, and options.Subset
// prunes what remains.
func Snapshot(ectx *engine.Context, options RenderOptions) *Node {
	if ectx == nil || ectx.Root() == nil {
		return nil
	}
	root := snapshotWidget(ectx.Root(), options)
	if root == nil {
		return &Node{Class: engine.ClassComposite, Label: ectx.Extension()}
	}
	root.Label = ectx.Extension()
	if !options.Subset.Empty() {
		root.Children = options.Subset.prune(root.Children)
	}
	return root
}

func snapshotWidget(w *engine.Widget, options RenderOptions) *Node {
	if !w.Visible() && !options.IncludeHidden {
		return nil
	}
	valid, message := w.Valid()
	n := &Node{
		Class:     w.Class,
		ModelPath: w.ModelPath,
		Symbol:    w.Symbol,
		Label:     widgetLabel(w),
		Value:     w.Value(),
		Visible:   w.Visible(),
		Enabled:   w.Enabled(),
		Valid:     valid,
	}
	if v, ok := w.Property("readOnly"); ok {
		n.ReadOnly, _ = v.(bool)
	}
	if w.Buddy != nil {
		n.For = w.Buddy.ModelPath
	}
	if message != "" {
		n.Messages = append(n.Messages, message)
	}
	if msgs := options.Errors[w.ModelPath]; w.ModelPath != "" && len(msgs) > 0 {
		n.Valid = false
		n.Messages = MergeFormErrors(n.Messages, msgs...)
	}
	for _, child := range w.Children() {
		if c := snapshotWidget(child, options); c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

func widgetLabel(w *engine.Widget) string {
	for _, name := range labelProperties {
		if v, ok := w.Property(name); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	if w.ModelPath == "" {
		if v, ok := w.Property("value"); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(typed, ", ")
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+formatValue(typed[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// formMessages returns the messages of options.Errors that no widget in the
// snapshot claims.
func formMessages(root *Node, options RenderOptions) []string {
	if len(options.Errors) == 0 {
		return nil
	}
	bound := make(map[string]bool)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.ModelPath != "" {
			bound[n.ModelPath] = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	paths := make([]string, 0, len(options.Errors))
	for path := range options.Errors {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var out []string
	for _, path := range paths {
		if !bound[path] {
			out = MergeFormErrors(out, options.Errors[path]...)
		}
	}
	return out
}
