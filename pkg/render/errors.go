package render

import (
	"errors"
	"strings"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// ErrorMapping splits a backend error payload into field-level messages keyed
// by model path and form-level messages.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// MergeFormErrors appends extras to existing, trimmed and without duplicates.
func MergeFormErrors(existing []string, extras ...string) []string {
	return uniqueMessages(append(append([]string(nil), existing...), extras...))
}

// MapErrorPayload assigns each payload entry to the model path it names. An
// element path such as "mail.1" lands on "mail". Empty, "form" and unknown
// paths become form errors.
func MapErrorPayload(modelPaths []string, payload map[string][]string) ErrorMapping {
	mapping := ErrorMapping{Fields: make(map[string][]string)}
	known := make(map[string]bool, len(modelPaths))
	for _, path := range modelPaths {
		if path = strings.TrimSpace(path); path != "" {
			known[path] = true
		}
	}

	for raw, messages := range payload {
		messages = uniqueMessages(messages)
		if len(messages) == 0 {
			continue
		}
		if path := matchPath(raw, known); path != "" {
			mapping.Fields[path] = append(mapping.Fields[path], messages...)
			continue
		}
		mapping.Form = append(mapping.Form, messages...)
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = uniqueMessages(mapping.Form)
	return mapping
}

// MapError maps a backend error onto model paths. Protocol errors carrying an
// attribute path become field errors; anything else is form-level.
func MapError(modelPaths []string, err error) ErrorMapping {
	if err == nil {
		return ErrorMapping{}
	}
	var perr *proxy.ProtocolError
	if errors.As(err, &perr) {
		msg := perr.Message
		if msg == "" {
			msg = perr.Error()
		}
		return MapErrorPayload(modelPaths, map[string][]string{perr.Path: {msg}})
	}
	return ErrorMapping{Form: uniqueMessages([]string{err.Error()})}
}

func uniqueMessages(messages []string) []string {
	var out []string
	seen := make(map[string]bool, len(messages))
	for _, message := range messages {
		message = strings.TrimSpace(message)
		if message == "" || seen[message] {
			continue
		}
		seen[message] = true
		out = append(out, message)
	}
	return out
}

// matchPath returns the longest known model path that raw starts with, split
// on dots.
func matchPath(raw string, known map[string]bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "form") {
		return ""
	}
	segments := strings.Split(raw, ".")
	for end := len(segments); end > 0; end-- {
		if candidate := strings.Join(segments[:end], "."); known[candidate] {
			return candidate
		}
	}
	return ""
}
