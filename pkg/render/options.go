package render

// RenderOptions carry per-call data for preview renderers.
type RenderOptions struct {
	// Title heads the preview. Defaults to the context extension name.
	Title string
	// Locale is exposed to templates through the translate helper.
	Locale string
	// Errors marks model paths invalid, usually the Fields of an
	// ErrorMapping. Messages keyed by "" are shown as form errors.
	Errors map[string][]string
	// Subset limits the preview to matching widgets.
	Subset Subset
	// Hidden fields are emitted by the HTML preview form.
	Hidden []HiddenField
	// IncludeHidden keeps invisible widgets in the output, marked as hidden.
	IncludeHidden bool
}
