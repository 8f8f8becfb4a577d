package engine

import (
	"errors"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// ErrMissingTranslator is passed to the MissingTranslationHandler when a
// template contains translation markers but no Translator is configured.
var ErrMissingTranslator = errors.New("engine: translator not configured")

// Translator resolves a message key for a locale.
type Translator interface {
	Translate(locale, key string, args ...any) (string, error)
}

// TranslatorFunc adapts a function into a Translator.
type TranslatorFunc func(locale, key string, args ...any) (string, error)

// Translate delegates to the underlying function.
func (fn TranslatorFunc) Translate(locale, key string, args ...any) (string, error) {
	return fn(locale, key, args...)
}

// MissingTranslationHandler produces the text used when a key cannot be
// translated. err is ErrMissingTranslator, the translator error, or nil when
// the translator returned an empty string.
type MissingTranslationHandler func(locale, key string, args []any, err error) string

// missingTranslationDefault keeps the marker text itself; template authors
// write markers in the source language so the key doubles as the fallback.
func missingTranslationDefault(_ string, key string, args []any, _ error) string {
	for _, arg := range args {
		if m, ok := arg.(map[string]any); ok {
			if fallback, ok := m["default"].(string); ok && strings.TrimSpace(fallback) != "" {
				return fallback
			}
		}
	}
	return key
}

func translate(locale, key string, t Translator, onMissing MissingTranslationHandler) string {
	if key == "" {
		return ""
	}
	if onMissing == nil {
		onMissing = missingTranslationDefault
	}
	if t == nil {
		return onMissing(locale, key, nil, ErrMissingTranslator)
	}

	result, err := t.Translate(locale, key)
	if err == nil && strings.TrimSpace(result) != "" {
		return result
	}
	return onMissing(locale, key, nil, err)
}

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// plainText strips markup from translated strings. Translations come from
// resource files maintained outside the template, so they are not trusted to
// carry markup into widget properties.
func plainText(raw string) string {
	if !strings.ContainsAny(raw, "<>") {
		return raw
	}
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return html.UnescapeString(textPolicy.Sanitize(raw))
}
