package proxy

import (
	"reflect"
	"strings"
)

// Values is the value container of one attribute. Single-valued attributes
// hold at most one element; multivalue attributes hold any number.
type Values []any

// Single wraps v into a container. A nil v yields an empty container.
func Single(v any) Values {
	if v == nil {
		return Values{}
	}
	return Values{v}
}

// Clone returns a deep copy of the container.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for i, item := range v {
		out[i] = cloneValue(item)
	}
	return out
}

// First returns the first element or nil.
func (v Values) First() any {
	if len(v) == 0 {
		return nil
	}
	return v[0]
}

// Equal compares two containers element-wise.
func (v Values) Equal(other Values) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if !reflect.DeepEqual(v[i], other[i]) {
			return false
		}
	}
	return true
}

// Compact drops empty-equivalent elements.
func (v Values) Compact() Values {
	out := make(Values, 0, len(v))
	for _, item := range v {
		if !IsEmptyValue(item) {
			out = append(out, item)
		}
	}
	return out
}

// IsEmptyValue reports whether v counts as "no value": nil, blank strings and
// empty collections.
func IsEmptyValue(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case Values:
		return len(typed.Compact()) == 0
	case []any:
		return len(Values(typed).Compact()) == 0
	case map[string]any:
		return len(typed) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case []any:
		return []any(Values(typed).Clone())
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
