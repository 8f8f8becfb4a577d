package engine

import (
	"fmt"
	"log"
	"strings"
	"sync"

	theme "github.com/goliatone/go-theme"
)

// Session carries what every Context of one editing session shares: the class
// catalog, the symbol table, translation settings and a per-locale template
// cache.
type Session struct {
	catalog    *ClassCatalog
	symbols    *SymbolTable
	logger     *log.Logger
	strict     bool
	translator Translator
	onMissing  MissingTranslationHandler
	locale     string
	store      *TemplateStore

	selector     theme.ThemeSelector
	themeName    string
	themeVariant string
	themeQuery   []theme.QueryOption

	mu    sync.Mutex
	cache map[cacheKey]*Template
}

type cacheKey struct {
	name   string
	locale string
}

// Option configures a Session.
type Option func(*Session)

// WithCatalog replaces the default class catalog.
func WithCatalog(catalog *ClassCatalog) Option {
	return func(s *Session) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithSymbolTable shares an existing symbol table.
func WithSymbolTable(table *SymbolTable) Option {
	return func(s *Session) {
		if table != nil {
			s.symbols = table
		}
	}
}

// WithLogger routes consistency warnings to logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStrictProperties turns undeclared widget properties into configuration
// errors instead of warnings.
func WithStrictProperties() Option {
	return func(s *Session) { s.strict = true }
}

// WithTranslator sets the translator used when compiling templates.
func WithTranslator(t Translator) Option {
	return func(s *Session) { s.translator = t }
}

// WithMissingTranslationHandler overrides the fallback for untranslated keys.
func WithMissingTranslationHandler(fn MissingTranslationHandler) Option {
	return func(s *Session) { s.onMissing = fn }
}

// WithLocale sets the active locale.
func WithLocale(locale string) Option {
	return func(s *Session) { s.locale = strings.TrimSpace(locale) }
}

// WithTemplateStore sets the store Template resolves names against.
func WithTemplateStore(store *TemplateStore) Option {
	return func(s *Session) { s.store = store }
}

// WithTheme resolves resource asset keys through a go-theme selector, usually
// a theme.Selector over a theme.MemoryRegistry.
func WithTheme(selector theme.ThemeSelector, name, variant string, query ...theme.QueryOption) Option {
	return func(s *Session) {
		s.selector = selector
		s.themeName = name
		s.themeVariant = variant
		s.themeQuery = append([]theme.QueryOption(nil), query...)
	}
}

// NewSession constructs a Session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		logger: log.Default(),
		cache:  make(map[cacheKey]*Template),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.catalog == nil {
		s.catalog = NewClassCatalog()
	}
	if s.symbols == nil {
		s.symbols = NewSymbolTable()
	}
	return s
}

// Catalog returns the class catalog.
func (s *Session) Catalog() *ClassCatalog { return s.catalog }

// Symbols returns the session symbol table.
func (s *Session) Symbols() *SymbolTable { return s.symbols }

// Locale returns the active locale.
func (s *Session) Locale() string { return s.locale }

// Logger returns the logger warnings are written to.
func (s *Session) Logger() *log.Logger { return s.logger }

// Compile compiles raw with the session's locale and translator.
func (s *Session) Compile(name string, raw []byte) (*Template, error) {
	return Compile(raw,
		WithTemplateName(name),
		WithCompileLocale(s.locale),
		WithCompileTranslator(s.translator),
		WithMissingTranslation(s.onMissing),
	)
}

// Template returns the named template from the store compiled for the active
// locale. Compiled templates are cached per name and locale.
func (s *Session) Template(name string) (*Template, error) {
	key := cacheKey{name: name, locale: s.locale}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tpl, ok := s.cache[key]; ok {
		return tpl, nil
	}
	raw, source, ok := s.store.Raw(name)
	if !ok {
		return nil, fmt.Errorf("engine: template %q not found", name)
	}
	tpl, err := Compile(raw,
		WithTemplateName(name),
		WithSourceName(source),
		WithCompileLocale(s.locale),
		WithCompileTranslator(s.translator),
		WithMissingTranslation(s.onMissing),
	)
	if err != nil {
		return nil, err
	}
	s.cache[key] = tpl
	return tpl, nil
}

// TemplateNames lists the templates available in the store.
func (s *Session) TemplateNames() []string {
	return s.store.Names()
}

// NewContext creates a Context bound to this session.
func (s *Session) NewContext(tpl *Template, root *Widget, extension string, opts ...ContextOption) (*Context, error) {
	return NewContext(tpl, root, extension, append([]ContextOption{WithSession(s)}, opts...)...)
}

func (s *Session) warn(w ConsistencyWarning) {
	s.logger.Printf("engine: warning: %s", w)
}
