// Package i18n loads a YAML locale tree and translates dotted keys.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ResourceAPI/internal/logger"

	"gopkg.in/yaml.v3"
)

// Node is one entry of the locale tree: a leaf value or a subtree.
type Node struct {
	Value    string
	Children map[string]*Node
}

// Dictionary holds the tree of one locale.
type Dictionary struct {
	Locale string
	root   *Node
}

// Load reads <dir>/<locale>.yml.
func Load(dir, locale string) (*Dictionary, error) {
	path := filepath.Join(dir, locale+".yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read locale file %s: %w", path, err)
	}
	d, err := Parse(locale, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("locale_loaded", map[string]any{"locale": locale, "entries": len(d.root.Children)})
	return d, nil
}

// Parse builds a dictionary from YAML. A single top-level key equal to the
// locale ("en: ...") is unwrapped.
func Parse(locale string, data []byte) (*Dictionary, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal locale error: %w", err)
	}
	if inner, ok := raw[locale].(map[string]any); ok && len(raw) == 1 {
		raw = inner
	}
	return &Dictionary{Locale: locale, root: &Node{Children: parseNodeMap(raw)}}, nil
}

func parseNodeMap(raw map[string]any) map[string]*Node {
	result := make(map[string]*Node, len(raw))
	for key, val := range raw {
		switch v := val.(type) {
		case string:
			result[key] = &Node{Value: v}
		case map[string]any:
			result[key] = &Node{Children: parseNodeMap(v)}
		default:
			result[key] = &Node{Value: fmt.Sprintf("%v", v)}
		}
	}
	return result
}

// Lookup follows the keys and returns the leaf value.
func (d *Dictionary) Lookup(keys ...string) (string, bool) {
	if d == nil {
		return "", false
	}
	cur := d.root
	for _, k := range keys {
		if cur == nil || cur.Children == nil {
			return "", false
		}
		next, ok := cur.Children[k]
		if !ok {
			return "", false
		}
		cur = next
	}
	if cur.Value != "" {
		return cur.Value, true
	}
	return "", false
}

// T translates a dotted key, trying each fallback key in turn. When nothing
// matches it returns the last segment of key.
func (d *Dictionary) T(key string, fallbacks ...string) string {
	for _, k := range append([]string{key}, fallbacks...) {
		if v, ok := d.Lookup(strings.Split(k, ".")...); ok {
			return v
		}
	}
	parts := strings.Split(key, ".")
	return parts[len(parts)-1]
}
