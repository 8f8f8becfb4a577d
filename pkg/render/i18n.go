package render

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-formbind/pkg/engine"
)

// TemplateI18nConfig configures the translation helpers of preview
// templates.
type TemplateI18nConfig struct {
	// LocaleKey names the template data entry holding the locale when the
	// helper receives a map instead of a locale string.
	LocaleKey string
	// FuncName customises the helper name (defaults to "translate").
	FuncName string
	// OnMissing produces the text for keys that cannot be translated. The
	// default returns the key.
	OnMissing engine.MissingTranslationHandler
}

// TemplateI18nFuncs returns template globals translating preview chrome:
//
//	translate(localeSrc, key, ...args) string
//	current_locale(localeSrc) string
//
// localeSrc is a locale string or a map carrying it under cfg.LocaleKey.
func TemplateI18nFuncs(t engine.Translator, cfg TemplateI18nConfig) map[string]any {
	localeKey := strings.TrimSpace(cfg.LocaleKey)
	if localeKey == "" {
		localeKey = "locale"
	}
	name := strings.TrimSpace(cfg.FuncName)
	if name == "" {
		name = "translate"
	}
	onMissing := cfg.OnMissing
	if onMissing == nil {
		onMissing = func(_ string, key string, _ []any, _ error) string { return key }
	}

	return map[string]any{
		name: func(localeSrc any, key string, params ...any) string {
			key = strings.TrimSpace(key)
			if key == "" {
				return ""
			}
			locale := resolveLocale(localeSrc, localeKey)
			if t == nil {
				return onMissing(locale, key, params, engine.ErrMissingTranslator)
			}
			msg, err := t.Translate(locale, key, params...)
			if err != nil || strings.TrimSpace(msg) == "" {
				return onMissing(locale, key, params, err)
			}
			return msg
		},
		"current_locale": func(localeSrc any) string {
			return resolveLocale(localeSrc, localeKey)
		},
	}
}

func resolveLocale(src any, key string) string {
	switch data := src.(type) {
	case nil:
		return ""
	case string:
		return data
	case map[string]string:
		return data[key]
	case map[string]any:
		if v, ok := data[key]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return ""
}
