package resource

import (
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
)

// SearchHook refines the running search query. It sees the query after the
// built-in column search and after every earlier hook.
type SearchHook func(rc *Context, q *query.Query) (*query.Query, error)

// SortHook orders the query before the default user sort is applied.
type SortHook func(rc *Context, q *query.Query) (*query.Query, error)

// FilterHook handles one filter clause itself. When handled is false the
// built-in dispatch is used for the clause.
type FilterHook func(rc *Context, q *query.Query, c query.FilterClause) (out *query.Query, handled bool, err error)

// ItemHook runs on a single record, before serialization or after a write.
type ItemHook func(rc *Context, rec *model.Record) error

// Hooks are the optional per-resource extension points. Nil hooks are no-ops.
type Hooks struct {
	BaseQuery    func(rc *Context, q *query.Query) *query.Query
	PrepareItem  ItemHook
	AfterCreate  ItemHook
	AfterUpdate  ItemHook
	AfterDestroy ItemHook
}

// RelationshipSpec describes one association to preload or join.
type RelationshipSpec struct {
	Name   string
	Nested []RelationshipSpec

	// Scope replaces the default "all related rows" query of this branch.
	// ScopeFunc resolves it per request and wins over Scope.
	Scope     query.Scope
	ScopeFunc func(rc *Context) query.Scope

	Condition Condition
	Limit     int
	Only      []Action
	Except    []Action

	// Force keeps a to-many relationship on index.
	Force bool
}

// AppliesTo reports whether the relationship is loaded for an action. Only wins over Except.
func (s RelationshipSpec) AppliesTo(a Action) bool {
	if len(s.Only) > 0 {
		return containsAction(s.Only, a)
	}
	return !containsAction(s.Except, a)
}

func (s RelationshipSpec) resolveScope(rc *Context) query.Scope {
	if s.ScopeFunc != nil {
		return s.ScopeFunc(rc)
	}
	return s.Scope
}

func containsAction(list []Action, a Action) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

// Param is a permitted write parameter. A param with Nested children is
// written through the "<name>_attributes" shape.
type Param struct {
	Name   string
	Nested []Param
}

// AttributesKey is the key nested writes are submitted under.
func (p Param) AttributesKey() string {
	return p.Name + "_attributes"
}

// Definition is the frozen declaration of one resource.
type Definition struct {
	Name     string // model name
	Plural   string
	Singular string
	Model    *model.Model

	SearchColumns []query.SearchColumn
	SearchHooks   []SearchHook
	SortHooks     []SortHook
	FilterHook    FilterHook

	Preloads  []RelationshipSpec
	Joins     []RelationshipSpec
	LeftJoins []RelationshipSpec

	PageSize        int
	PermittedParams []Param
	Hooks           Hooks

	// Policy names the registered policy; empty means the default policy.
	Policy string
	Batch  bool
	Upload bool
}
