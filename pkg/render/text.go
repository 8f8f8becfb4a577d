package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formbind/pkg/engine"
)

// TextRendererName is the registry name of the text renderer.
const TextRendererName = "text"

// TextRenderer dumps the widget tree as an indented outline.
type TextRenderer struct {
	indent string
}

// NewTextRenderer returns a TextRenderer indenting with two spaces.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{indent: "  "}
}

func (r *TextRenderer) Name() string        { return TextRendererName }
func (r *TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

// Render writes one line per widget:
//
//	TextField sn = "Doe" [read-only] [invalid: required]
func (r *TextRenderer) Render(ctx context.Context, ectx *engine.Context, options RenderOptions) ([]byte, error) {
	if ectx == nil {
		return nil, fmt.Errorf("render: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := Snapshot(ectx, options)

	var b strings.Builder
	title := options.Title
	if title == "" {
		title = ectx.Extension()
	}
	b.WriteString(title)
	b.WriteByte('\n')
	for _, child := range root.Children {
		r.writeNode(&b, child, 1)
	}
	for _, msg := range formMessages(root, options) {
		fmt.Fprintf(&b, "! %s\n", msg)
	}
	if actions := ectx.Actions(); len(actions) > 0 {
		names := make([]string, 0, len(actions))
		for _, a := range actions {
			if a.Label != "" && a.Label != a.Name {
				names = append(names, fmt.Sprintf("%s (%s)", a.Name, a.Label))
				continue
			}
			names = append(names, a.Name)
		}
		fmt.Fprintf(&b, "actions: %s\n", strings.Join(names, ", "))
	}
	return []byte(b.String()), nil
}

func (r *TextRenderer) writeNode(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat(r.indent, depth))
	b.WriteString(n.Class)
	if n.Symbol != "" {
		fmt.Fprintf(b, " #%s", n.Symbol)
	}
	if n.Label != "" {
		fmt.Fprintf(b, " %s", strconv.Quote(n.Label))
	}
	if n.For != "" {
		fmt.Fprintf(b, " for %s", n.For)
	}
	if n.Input() {
		fmt.Fprintf(b, " %s = %s", n.ModelPath, strconv.Quote(n.DisplayValue()))
	}
	if !n.Visible {
		b.WriteString(" [hidden]")
	}
	if !n.Enabled {
		b.WriteString(" [disabled]")
	}
	if n.ReadOnly {
		b.WriteString(" [read-only]")
	}
	if !n.Valid {
		if len(n.Messages) > 0 {
			fmt.Fprintf(b, " [invalid: %s]", strings.Join(n.Messages, "; "))
		} else {
			b.WriteString(" [invalid]")
		}
	}
	b.WriteByte('\n')
	for _, child := range n.Children {
		r.writeNode(b, child, depth+1)
	}
}
