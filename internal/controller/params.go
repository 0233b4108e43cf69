package controller

import (
	"sort"
	"strconv"
	"strings"

	"ResourceAPI/internal/resource"
)

// nestedKeys are always accepted inside nested items.
var nestedKeys = []string{"id", "_destroy"}

// permit keeps the permitted keys of in. Params with nested children are
// accepted as "x" or "x_attributes" and returned as "x_attributes". Blank
// strings become nil.
func permit(in map[string]any, permitted []resource.Param) map[string]any {
	out := make(map[string]any, len(permitted))
	for _, p := range permitted {
		if len(p.Nested) == 0 {
			if v, ok := in[p.Name]; ok {
				out[p.Name] = blankToNil(v)
			}
			continue
		}
		v, ok := in[p.AttributesKey()]
		if !ok {
			v, ok = in[p.Name]
		}
		if !ok || v == nil {
			continue
		}
		if nested := permitNested(v, p.Nested); nested != nil {
			out[p.AttributesKey()] = nested
		}
	}
	return out
}

// permitNested accepts one object, an array of objects or an object keyed
// by indexes. Indexed objects come back as arrays in index order.
func permitNested(v any, params []resource.Param) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, permitItem(m, params))
			}
		}
		return out
	case map[string]any:
		if items, ok := indexed(t); ok {
			return permitNested(items, params)
		}
		return permitItem(t, params)
	}
	return nil
}

func permitItem(m map[string]any, params []resource.Param) map[string]any {
	out := permit(m, params)
	for _, k := range nestedKeys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func indexed(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, false
		}
		keys = append(keys, i)
	}
	sort.Ints(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = m[strconv.Itoa(k)]
	}
	return out, true
}

func blankToNil(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}

// scalarPermitted reports whether name is a permitted plain attribute.
func scalarPermitted(permitted []resource.Param, name string) bool {
	for _, p := range permitted {
		if p.Name == name && len(p.Nested) == 0 {
			return true
		}
	}
	return false
}

// asList reads a JSON value that may be one value or an array of them.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	}
	return []any{v}
}
