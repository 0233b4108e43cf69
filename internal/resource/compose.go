package resource

import (
	"fmt"

	"ResourceAPI/internal/query"
)

// BuildQuery attaches the preloads, joins and left joins active for the request.
func BuildQuery(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	q = ApplyPreloads(def, rc, q)
	q, err := ApplyJoins(def, rc, q)
	if err != nil {
		return nil, err
	}
	return ApplyLeftJoins(def, rc, q)
}

// ComposeIndex runs the list pipeline: search, filters, then sort.
func ComposeIndex(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	q, err := ApplySearch(def, rc, q)
	if err != nil {
		return nil, err
	}
	if q, err = ApplyFilters(def, rc, q); err != nil {
		return nil, err
	}
	return ApplySort(def, rc, q)
}

// skipRelationship drops specs excluded by only/except, and to-many
// relationships on index unless forced.
func skipRelationship(def *Definition, rc *Context, spec RelationshipSpec) bool {
	if !spec.AppliesTo(rc.Action) {
		return true
	}
	if rc.Action != Index || spec.Force {
		return false
	}
	return def.Model.GetRelation(spec.Name).IsToMany()
}

// ApplyPreloads records a preload tree on q for every active spec.
// Conditions are evaluated here, once per request.
func ApplyPreloads(def *Definition, rc *Context, q *query.Query) *query.Query {
	for _, spec := range def.Preloads {
		if skipRelationship(def, rc, spec) {
			continue
		}
		if inc, ok := include(rc, spec); ok {
			q = q.Preload(inc)
		}
	}
	return q
}

// include turns a spec into a preload branch. Scope and limit stay on the
// branch they are declared on, children only get their own.
func include(rc *Context, spec RelationshipSpec) (query.Include, bool) {
	if spec.Condition != nil && !spec.Condition(rc) {
		return query.Include{}, false
	}
	inc := query.Include{
		Name:  spec.Name,
		Scope: spec.resolveScope(rc),
		Limit: spec.Limit,
	}
	for _, child := range spec.Nested {
		if c, ok := include(rc, child); ok {
			inc.Children = append(inc.Children, c)
		}
	}
	return inc, true
}

func ApplyJoins(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	return applyJoins(def, rc, q, def.Joins, (*query.Query).Join)
}

func ApplyLeftJoins(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	return applyJoins(def, rc, q, def.LeftJoins, (*query.Query).LeftJoin)
}

func applyJoins(def *Definition, rc *Context, q *query.Query, specs []RelationshipSpec, join func(*query.Query, string) (*query.Query, error)) (*query.Query, error) {
	var err error
	for _, spec := range specs {
		if skipRelationship(def, rc, spec) {
			continue
		}
		if spec.Condition != nil && !spec.Condition(rc) {
			continue
		}
		for _, path := range joinPaths("", spec) {
			if q, err = join(q, path); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

// joinPaths flattens a nested spec into dotted paths, parents first.
func joinPaths(prefix string, spec RelationshipSpec) []string {
	path := spec.Name
	if prefix != "" {
		path = prefix + "." + spec.Name
	}
	out := []string{path}
	for _, child := range spec.Nested {
		out = append(out, joinPaths(path, child)...)
	}
	return out
}

// ApplySearch ORs a case-insensitive match over the search columns, then
// lets the search hooks refine the result, and ANDs it onto q.
func ApplySearch(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	sq := query.From(def.Model)
	pred, err := query.SearchPredicate(sq, def.SearchColumns, rc.Params.Search)
	if err != nil {
		return nil, err
	}
	sq = sq.Where(pred)
	for _, hook := range def.SearchHooks {
		if sq, err = hook(rc, sq); err != nil {
			return nil, fmt.Errorf("search hook: %w", err)
		}
	}
	return q.Merge(sq), nil
}

// ApplyFilters ANDs every filter clause onto q in order. The custom filter
// hook takes precedence for the clauses it handles.
func ApplyFilters(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	for _, c := range rc.Params.Filters {
		if def.FilterHook != nil {
			out, handled, err := def.FilterHook(rc, q, c)
			if err != nil {
				return nil, err
			}
			if handled {
				q = out
				continue
			}
		}
		var err error
		if q, err = query.ApplyFilter(q, c); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// ApplySort runs the sort hooks, then the requested sort unless a hook
// already ordered the query, then the primary key as the final key.
func ApplySort(def *Definition, rc *Context, q *query.Query) (*query.Query, error) {
	var err error
	for _, hook := range def.SortHooks {
		if q, err = hook(rc, q); err != nil {
			return nil, fmt.Errorf("sort hook: %w", err)
		}
	}
	if !q.Ordered() {
		q = query.ApplySort(q, rc.Params.Sort)
	}
	return query.TieBreak(q), nil
}
