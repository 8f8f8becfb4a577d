// Package template wraps pongo2 behind the small interface the preview
// renderers use to load and execute templates.
package template
