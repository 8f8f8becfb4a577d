package render

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subset selects the widgets a preview keeps. A widget matches when its model
// path equals or is nested under one of Paths, or its class is one of
// Classes. Containers are kept while any descendant matches.
type Subset struct {
	Paths   []string
	Classes []string
}

// ParseSubset builds a Subset from comma separated (or JSON array) lists.
func ParseSubset(paths, classes string) Subset {
	return Subset{Paths: parseTokenList(paths), Classes: parseTokenList(classes)}
}

// Empty reports whether the subset selects everything.
func (s Subset) Empty() bool {
	return len(normaliseTokens(s.Paths)) == 0 && len(normaliseTokens(s.Classes)) == 0
}

// Matches reports whether a widget with the given model path and class is
// selected.
func (s Subset) Matches(modelPath, class string) bool {
	return newSubsetMatcher(s).matches(modelPath, class)
}

func (s Subset) prune(nodes []*Node) []*Node {
	matcher := newSubsetMatcher(s)
	if matcher.empty() {
		return nodes
	}
	var walk func(nodes []*Node) []*Node
	walk = func(nodes []*Node) []*Node {
		var out []*Node
		for _, n := range nodes {
			if matcher.matches(n.ModelPath, n.Class) || matcher.matches(n.For, "") {
				out = append(out, n)
				continue
			}
			children := walk(n.Children)
			if len(children) == 0 {
				continue
			}
			clone := *n
			clone.Children = children
			out = append(out, &clone)
		}
		return out
	}
	return walk(nodes)
}

type subsetMatcher struct {
	paths   map[string]struct{}
	classes map[string]struct{}
}

func newSubsetMatcher(subset Subset) subsetMatcher {
	return subsetMatcher{
		paths:   normaliseTokens(subset.Paths),
		classes: normaliseTokens(subset.Classes),
	}
}

func (m subsetMatcher) empty() bool {
	return len(m.paths) == 0 && len(m.classes) == 0
}

func (m subsetMatcher) matches(modelPath, class string) bool {
	if path := normaliseToken(modelPath); path != "" && len(m.paths) > 0 {
		if _, ok := m.paths[path]; ok {
			return true
		}
		for prefix := range m.paths {
			if strings.HasPrefix(path, prefix+".") || strings.HasPrefix(path, prefix+"[") {
				return true
			}
		}
	}
	if name := normaliseToken(class); name != "" && len(m.classes) > 0 {
		if _, ok := m.classes[name]; ok {
			return true
		}
	}
	return false
}

func normaliseTokens(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]struct{}, len(values))
	for _, value := range values {
		token := normaliseToken(value)
		if token == "" {
			continue
		}
		result[token] = struct{}{}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func normaliseToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func parseTokenList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var parsed []any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			tokens := make([]string, 0, len(parsed))
			for _, entry := range parsed {
				if token := strings.TrimSpace(fmt.Sprint(entry)); token != "" {
					tokens = append(tokens, token)
				}
			}
			return dedupe(tokens)
		}
	}

	parts := strings.Split(raw, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if token := strings.TrimSpace(part); token != "" {
			tokens = append(tokens, token)
		}
	}
	return dedupe(tokens)
}
