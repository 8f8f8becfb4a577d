package engine

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed template: an unknown widget class, a
// duplicate action name, an unresolvable form reference, or a missing required
// node field. Processing stops at the first configuration error.
type ConfigurationError struct {
	Template string
	Path     string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("engine: configuration error")
	if e.Template != "" {
		b.WriteString(" in template ")
		b.WriteString(fmt.Sprintf("%q", e.Template))
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ParseError is returned by Compile when the translated template text is not a
// single valid JSON document. Line and Column are 1-based and zero when the
// decoder did not report a position.
type ParseError struct {
	Source string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "template"
	}
	if e.Line > 0 {
		return fmt.Sprintf("engine: parse %s:%d:%d: %v", src, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("engine: parse %s: %v", src, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConsistencyWarning describes a non-fatal template problem. Warnings are
// logged and never stop processing.
type ConsistencyWarning struct {
	Subject string
	Message string
}

func (w ConsistencyWarning) String() string {
	if w.Subject == "" {
		return w.Message
	}
	return w.Subject + ": " + w.Message
}

func configErr(template, path, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Template: template,
		Path:     path,
		Reason:   fmt.Sprintf(format, args...),
	}
}

// positionOf converts a byte offset into a 1-based line and column.
func positionOf(data []byte, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, ch := range data[:offset] {
		if ch == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
