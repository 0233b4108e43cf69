package router

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// parseParams reads the list parameters from the query string. Writes carry
// their payload in body, which is kept in Raw for hooks.
func parseParams(r *http.Request, body map[string]any) (resource.Params, error) {
	values := r.URL.Query()
	p := resource.Params{
		ID:     mux.Vars(r)["id"],
		Search: strings.TrimSpace(values.Get("search")),
		Raw:    make(map[string]any, len(values)+len(body)),
	}
	for k, v := range body {
		p.Raw[k] = v
	}
	for k, v := range values {
		if len(v) == 1 {
			p.Raw[k] = v[0]
		} else {
			p.Raw[k] = v
		}
	}

	if s := values.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("invalid page %q", s)
		}
		p.Page = n
	}
	if s := values.Get("per_page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("invalid per_page %q", s)
		}
		p.PerPage, p.PerPageSet = n, true
	}

	for _, key := range []string{"sort_by", "sort_by[]"} {
		for _, v := range values[key] {
			for _, col := range strings.Split(v, ",") {
				if col = strings.TrimSpace(col); col != "" {
					p.Sort.SortBy = append(p.Sort.SortBy, col)
				}
			}
		}
	}
	p.Sort.Direction = query.ParseDirection(values.Get("sort_direction"))

	if s := values.Get("filters"); s != "" {
		if err := json.Unmarshal([]byte(s), &p.Filters); err != nil {
			return p, fmt.Errorf("invalid filters: %w", err)
		}
		for i := range p.Filters {
			p.Filters[i].Value = normalizeNumbers(p.Filters[i].Value)
		}
	}
	return p, nil
}

// normalizeNumbers turns whole JSON numbers into int64 so ids bind as integers.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumbers(t[k])
		}
		return t
	}
	return v
}
