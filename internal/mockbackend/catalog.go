package mockbackend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

const (
	extensionKind     = "x-formbind-kind"
	extensionExtends  = "x-formbind-extends"
	extensionRequires = "x-formbind-requires"
	extensionMethods  = "x-formbind-methods"
	extensionType     = "x-formbind-type"
)

// ObjectType is a base type or an extension type read from the schema
// document.
type ObjectType struct {
	Name       string
	Extension  bool
	Extends    string
	Requires   []string
	Methods    []string
	Attributes map[string]proxy.AttributeMeta
}

// Catalog holds the object types of one schema document.
type Catalog struct {
	types map[string]*ObjectType
}

// LoadCatalog reads object types from the components.schemas section of an
// OpenAPI document.
func LoadCatalog(ctx context.Context, raw []byte) (*Catalog, error) {
	if len(raw) == 0 {
		return nil, errors.New("mockbackend: schema document is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("mockbackend: load schema document: %w", err)
	}
	if doc.Components == nil || len(doc.Components.Schemas) == 0 {
		return nil, errors.New("mockbackend: schema document declares no object types")
	}

	cat := &Catalog{types: make(map[string]*ObjectType)}
	for name, ref := range doc.Components.Schemas {
		if ref == nil || ref.Value == nil {
			continue
		}
		typ, err := convertType(name, ref.Value)
		if err != nil {
			return nil, err
		}
		cat.types[name] = typ
	}
	for _, typ := range cat.types {
		if !typ.Extension {
			continue
		}
		base, ok := cat.types[typ.Extends]
		if !ok || base.Extension {
			return nil, fmt.Errorf("mockbackend: extension %s extends unknown base type %q", typ.Name, typ.Extends)
		}
		for _, dep := range typ.Requires {
			if other, ok := cat.types[dep]; !ok || !other.Extension {
				return nil, fmt.Errorf("mockbackend: extension %s requires unknown extension %q", typ.Name, dep)
			}
		}
	}
	return cat, nil
}

// Type returns the named object type.
func (c *Catalog) Type(name string) (*ObjectType, bool) {
	typ, ok := c.types[name]
	return typ, ok
}

// Extensions returns the extension types applicable to base, sorted by name.
func (c *Catalog) Extensions(base string) []*ObjectType {
	var out []*ObjectType
	for _, typ := range c.types {
		if typ.Extension && typ.Extends == base {
			out = append(out, typ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every type name, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.types))
	for name := range c.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func convertType(name string, schema *openapi3.Schema) (*ObjectType, error) {
	typ := &ObjectType{
		Name:       name,
		Attributes: make(map[string]proxy.AttributeMeta, len(schema.Properties)),
	}
	switch kind := stringExtension(schema.Extensions, extensionKind); kind {
	case "", "base":
	case "extension":
		typ.Extension = true
		typ.Extends = stringExtension(schema.Extensions, extensionExtends)
		if typ.Extends == "" {
			return nil, fmt.Errorf("mockbackend: extension %s names no base type", name)
		}
	default:
		return nil, fmt.Errorf("mockbackend: type %s has unknown kind %q", name, kind)
	}
	typ.Requires = stringsExtension(schema.Extensions, extensionRequires)
	typ.Methods = stringsExtension(schema.Extensions, extensionMethods)

	required := make(map[string]bool, len(schema.Required))
	for _, attr := range schema.Required {
		required[attr] = true
	}
	for attr, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		meta := attributeMeta(ref.Value)
		meta.Mandatory = required[attr]
		if typ.Extension {
			meta.Extension = name
		}
		typ.Attributes[attr] = meta
	}
	return typ, nil
}

func attributeMeta(schema *openapi3.Schema) proxy.AttributeMeta {
	meta := proxy.AttributeMeta{
		ReadOnly: schema.ReadOnly,
		Pattern:  schema.Pattern,
		Value:    proxy.Values{},
	}
	item := schema
	if schema.Type != nil && schema.Type.Is(openapi3.TypeArray) {
		meta.Multivalue = true
		if schema.Items != nil && schema.Items.Value != nil {
			item = schema.Items.Value
			if meta.Pattern == "" {
				meta.Pattern = item.Pattern
			}
		}
	}
	if len(item.Enum) > 0 {
		meta.Enum = append([]any(nil), item.Enum...)
	}
	meta.Type = attributeType(item)
	if override := stringExtension(schema.Extensions, extensionType); override != "" {
		meta.Type = override
	}
	return meta
}

func attributeType(schema *openapi3.Schema) string {
	switch {
	case schema.Type == nil:
		return "String"
	case schema.Type.Is(openapi3.TypeInteger):
		return "Integer"
	case schema.Type.Is(openapi3.TypeNumber):
		return "Number"
	case schema.Type.Is(openapi3.TypeBoolean):
		return "Boolean"
	}
	switch strings.ToLower(schema.Format) {
	case "password":
		return "Password"
	case "text":
		return "Text"
	}
	return "String"
}

func stringExtension(ext map[string]any, key string) string {
	if v, ok := ext[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func stringsExtension(ext map[string]any, key string) []string {
	raw, ok := ext[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
