package render

import (
	"fmt"
	"sort"
	"strings"
)

// HiddenField is a hidden input emitted by the HTML preview form.
type HiddenField struct {
	Name  string
	Value string
}

// Hidden returns a HiddenField for an arbitrary name/value pair.
func Hidden(name string, value any) HiddenField {
	return HiddenField{
		Name:  strings.TrimSpace(name),
		Value: fmt.Sprint(value),
	}
}

// ObjectFields returns the hidden fields identifying an edited object.
func ObjectFields(dn, uuid string) []HiddenField {
	var out []HiddenField
	if dn != "" {
		out = append(out, Hidden("dn", dn))
	}
	if uuid != "" {
		out = append(out, Hidden("uuid", uuid))
	}
	return out
}

// SortedHiddenFields drops unnamed fields, lets later fields win on name
// collisions and sorts the result by name.
func SortedHiddenFields(fields []HiddenField) []HiddenField {
	if len(fields) == 0 {
		return nil
	}
	clean := make(map[string]string, len(fields))
	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			continue
		}
		clean[name] = field.Value
	}
	if len(clean) == 0 {
		return nil
	}

	names := make([]string, 0, len(clean))
	for name := range clean {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]HiddenField, 0, len(names))
	for _, name := range names {
		result = append(result, HiddenField{Name: name, Value: clean[name]})
	}
	return result
}
