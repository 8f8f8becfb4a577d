package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// NodeKind discriminates the shapes a template node can take.
type NodeKind int

const (
	// NodeNone marks nodes matching no known shape; processors skip them.
	NodeNone NodeKind = iota
	// NodeWidget declares a widget class to instantiate.
	NodeWidget
	// NodeFormRef attaches a form previously defined under a symbol.
	NodeFormRef
	// NodeForm declares a form (type "form") with field elements.
	NodeForm
)

func (k NodeKind) String() string {
	switch k {
	case NodeWidget:
		return "widget"
	case NodeFormRef:
		return "form-ref"
	case NodeForm:
		return "form"
	default:
		return "none"
	}
}

// Node is one entry of a parsed template tree. Nodes are never mutated once a
// Template has been compiled.
type Node struct {
	Class               string         `json:"class,omitempty" yaml:"class,omitempty"`
	Properties          map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	Layout              string         `json:"layout,omitempty" yaml:"layout,omitempty"`
	LayoutConfig        map[string]any `json:"layoutConfig,omitempty" yaml:"layoutConfig,omitempty"`
	AddOptions          map[string]any `json:"addOptions,omitempty" yaml:"addOptions,omitempty"`
	Children            []*Node        `json:"children,omitempty" yaml:"children,omitempty"`
	ModelPath           string         `json:"modelPath,omitempty" yaml:"modelPath,omitempty"`
	BuddyModelPath      string         `json:"buddyModelPath,omitempty" yaml:"buddyModelPath,omitempty"`
	Symbol              string         `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	VisibilityDependsOn string         `json:"visibilityDependsOn,omitempty" yaml:"visibilityDependsOn,omitempty"`

	// Form references a form symbol (form-inclusion node).
	Form string `json:"form,omitempty" yaml:"form,omitempty"`

	// Type is "form" for form nodes.
	Type        string        `json:"type,omitempty" yaml:"type,omitempty"`
	Elements    []*Element    `json:"elements,omitempty" yaml:"elements,omitempty"`
	Renderer    string        `json:"renderer,omitempty" yaml:"renderer,omitempty"`
	Label       string        `json:"label,omitempty" yaml:"label,omitempty"`
	Constraints []*Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`

	// Root-only sections.
	Extensions []*Node           `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Resources  map[string]string `json:"resources,omitempty" yaml:"resources,omitempty"`
	Actions    []*ActionSpec     `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Kind reports which processor handles the node.
func (n *Node) Kind() NodeKind {
	switch {
	case n == nil:
		return NodeNone
	case strings.EqualFold(n.Type, "form"):
		return NodeForm
	case n.Class != "":
		return NodeWidget
	case n.Form != "":
		return NodeFormRef
	default:
		return NodeNone
	}
}

// Element is one entry of a form node. An element carrying only Group starts a
// new visual group; any other element becomes a form field.
type Element struct {
	Group               string           `json:"group,omitempty" yaml:"group,omitempty"`
	Class               string           `json:"class,omitempty" yaml:"class,omitempty"`
	Label               string           `json:"label,omitempty" yaml:"label,omitempty"`
	Properties          map[string]any   `json:"properties,omitempty" yaml:"properties,omitempty"`
	ModelPath           string           `json:"modelPath,omitempty" yaml:"modelPath,omitempty"`
	Symbol              string           `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	VisibilityDependsOn string           `json:"visibilityDependsOn,omitempty" yaml:"visibilityDependsOn,omitempty"`
	Required            bool             `json:"required,omitempty" yaml:"required,omitempty"`
	Validators          []*ValidatorSpec `json:"validators,omitempty" yaml:"validators,omitempty"`
}

// GroupOnly reports whether the element only opens a new group.
func (e *Element) GroupOnly() bool {
	return e != nil && e.Group != "" && e.Class == "" && e.ModelPath == "" && e.Symbol == ""
}

// ValidatorSpec declares a field validator. Supported types: "required",
// "pattern", "minLength", "maxLength".
type ValidatorSpec struct {
	Type    string `json:"type" yaml:"type"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Constraint declares a form-level rule across several fields. Supported
// rules: "equal" (all named fields hold the same value) and "oneRequired" (at
// least one named field is non-empty).
type Constraint struct {
	Rule    string   `json:"rule" yaml:"rule"`
	Fields  []string `json:"fields" yaml:"fields"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// ActionSpec declares a named action the edit window exposes.
type ActionSpec struct {
	Name   string `json:"name" yaml:"name"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
	Icon   string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Template is a compiled, read-only template tree.
type Template struct {
	Name   string
	Source string
	Locale string
	Root   *Node
}

// Walk visits every node reachable from the root in depth-first order,
// including root extensions. The path uses a dotted/indexed notation suited
// for error messages.
func (t *Template) Walk(fn func(path string, node *Node) error) error {
	if t == nil || t.Root == nil {
		return nil
	}
	return walkNode("root", t.Root, fn)
}

func walkNode(path string, node *Node, fn func(string, *Node) error) error {
	if node == nil {
		return nil
	}
	if err := fn(path, node); err != nil {
		return err
	}
	for i, ext := range node.Extensions {
		if err := walkNode(fmt.Sprintf("%s.extensions[%d]", path, i), ext, fn); err != nil {
			return err
		}
	}
	for i, child := range node.Children {
		if err := walkNode(fmt.Sprintf("%s.children[%d]", path, i), child, fn); err != nil {
			return err
		}
	}
	return nil
}

// CompileOptions configure a single Compile call.
type CompileOptions struct {
	Name       string
	Source     string
	Locale     string
	Translator Translator
	OnMissing  MissingTranslationHandler
}

// CompileOption mutates CompileOptions.
type CompileOption func(*CompileOptions)

// WithTemplateName names the compiled template.
func WithTemplateName(name string) CompileOption {
	return func(o *CompileOptions) { o.Name = strings.TrimSpace(name) }
}

// WithSourceName records where the raw text came from for error messages.
func WithSourceName(source string) CompileOption {
	return func(o *CompileOptions) { o.Source = source }
}

// WithCompileLocale selects the locale translation markers resolve against.
func WithCompileLocale(locale string) CompileOption {
	return func(o *CompileOptions) { o.Locale = locale }
}

// WithCompileTranslator sets the translator used for markers.
func WithCompileTranslator(t Translator) CompileOption {
	return func(o *CompileOptions) { o.Translator = t }
}

// WithMissingTranslation overrides the handler for untranslated keys.
func WithMissingTranslation(fn MissingTranslationHandler) CompileOption {
	return func(o *CompileOptions) { o.OnMissing = fn }
}

// Compile translates markers inside raw and parses the result as a strict
// JSON template. Compiling the same text with the same locale twice yields
// structurally equal trees.
func Compile(raw []byte, options ...CompileOption) (*Template, error) {
	opts := CompileOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	source := opts.Source
	if source == "" {
		source = opts.Name
	}

	translated, err := rewriteMarkers(raw, func(key string) string {
		return plainText(translate(opts.Locale, key, opts.Translator, opts.OnMissing))
	})
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Source = source
		}
		return nil, err
	}

	root, err := parseStrict(translated, source)
	if err != nil {
		return nil, err
	}

	return &Template{
		Name:   opts.Name,
		Source: source,
		Locale: opts.Locale,
		Root:   root,
	}, nil
}

func parseStrict(text []byte, source string) (*Node, error) {
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, &ParseError{Source: source, Err: errors.New("empty document")}
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.DisallowUnknownFields()

	var root Node
	if err := dec.Decode(&root); err != nil {
		return nil, decodeError(text, source, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		line, col := positionOf(text, dec.InputOffset())
		return nil, &ParseError{Source: source, Line: line, Column: col, Err: errors.New("unexpected data after document")}
	}
	return &root, nil
}

func decodeError(text []byte, source string, err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &syntaxErr):
		line, col := positionOf(text, syntaxErr.Offset)
		return &ParseError{Source: source, Line: line, Column: col, Err: err}
	case errors.As(err, &typeErr):
		line, col := positionOf(text, typeErr.Offset)
		return &ParseError{Source: source, Line: line, Column: col, Err: err}
	default:
		return &ParseError{Source: source, Err: err}
	}
}

var wrappedMarkerPattern = regexp.MustCompile(`^\s*tr\(\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')\s*\)\s*$`)

// rewriteMarkers replaces every tr("...") marker with the JSON-quoted result of
// fn. Markers are recognised as bare tokens between JSON values and as the
// entire content of a JSON string (the form YAML templates produce).
func rewriteMarkers(raw []byte, fn func(key string) string) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(raw))

	for i := 0; i < len(raw); {
		ch := raw[i]
		switch {
		case ch == '"':
			end, err := scanString(raw, i)
			if err != nil {
				return nil, err
			}
			literal := raw[i:end]
			if key, ok := wrappedMarker(literal); ok {
				out.Write(quoteJSON(fn(key)))
			} else {
				out.Write(literal)
			}
			i = end
		case ch == 't' && bytes.HasPrefix(raw[i:], []byte("tr(")) && (i == 0 || !isIdentByte(raw[i-1])):
			key, end, err := scanMarker(raw, i)
			if err != nil {
				return nil, err
			}
			out.Write(quoteJSON(fn(key)))
			i = end
		default:
			out.WriteByte(ch)
			i++
		}
	}
	return out.Bytes(), nil
}

func scanString(raw []byte, start int) (int, error) {
	for j := start + 1; j < len(raw); j++ {
		switch raw[j] {
		case '\\':
			j++
		case '"':
			return j + 1, nil
		}
	}
	line, col := positionOf(raw, int64(start))
	return 0, &ParseError{Line: line, Column: col, Err: errors.New("unterminated string")}
}

func scanMarker(raw []byte, start int) (string, int, error) {
	fail := func(at int, msg string) (string, int, error) {
		line, col := positionOf(raw, int64(at))
		return "", 0, &ParseError{Line: line, Column: col, Err: errors.New(msg)}
	}

	j := skipSpace(raw, start+len("tr("))
	if j >= len(raw) || (raw[j] != '"' && raw[j] != '\'') {
		return fail(j, "translation marker expects a quoted string")
	}
	quote := raw[j]
	k := j + 1
	for ; k < len(raw); k++ {
		if raw[k] == '\\' {
			k++
			continue
		}
		if raw[k] == quote {
			break
		}
	}
	if k >= len(raw) {
		return fail(j, "unterminated translation marker")
	}
	body := string(raw[j+1 : k])
	end := skipSpace(raw, k+1)
	if end >= len(raw) || raw[end] != ')' {
		return fail(end, "translation marker expects ')'")
	}

	key, err := decodeMarkerLiteral(quote, body)
	if err != nil {
		return fail(j, "invalid translation marker literal")
	}
	return key, end + 1, nil
}

func wrappedMarker(literal []byte) (string, bool) {
	if !bytes.Contains(literal, []byte("tr(")) {
		return "", false
	}
	var text string
	if err := json.Unmarshal(literal, &text); err != nil {
		return "", false
	}
	match := wrappedMarkerPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	quote, body := byte('"'), match[1]
	if match[1] == "" && match[2] != "" {
		quote, body = '\'', match[2]
	}
	key, err := decodeMarkerLiteral(quote, body)
	if err != nil {
		return "", false
	}
	return key, true
}

func decodeMarkerLiteral(quote byte, body string) (string, error) {
	if quote == '\'' {
		body = strings.ReplaceAll(body, `\'`, `'`)
		body = strings.ReplaceAll(body, `\"`, `"`)
		body = strings.ReplaceAll(body, `"`, `\"`)
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

func quoteJSON(s string) []byte {
	out, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return out
}

func skipSpace(raw []byte, i int) int {
	for i < len(raw) {
		switch raw[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || b == '.' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
