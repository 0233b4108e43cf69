package resource

import (
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
)

// DefaultPageSize is used when a resource does not set one.
const DefaultPageSize = 10

// Builder accumulates a resource declaration. Every list setter appends,
// PageSize replaces.
type Builder struct {
	def Definition
}

// NewBuilder starts a declaration for model m exposed under plural/singular.
func NewBuilder(m *model.Model, plural, singular string) *Builder {
	b := &Builder{}
	b.def.Model = m
	if m != nil {
		b.def.Name = m.Name
	}
	b.def.Plural = plural
	b.def.Singular = singular
	return b
}

// Search registers plain columns of the base table.
func (b *Builder) Search(columns ...string) *Builder {
	for _, c := range columns {
		b.def.SearchColumns = append(b.def.SearchColumns, query.SearchColumn{Column: c})
	}
	return b
}

// SearchAssociation registers a column of an associated table.
func (b *Builder) SearchAssociation(association string, columns ...string) *Builder {
	for _, c := range columns {
		b.def.SearchColumns = append(b.def.SearchColumns, query.SearchColumn{Column: c, Association: association})
	}
	return b
}

func (b *Builder) SearchMethods(hooks ...SearchHook) *Builder {
	b.def.SearchHooks = append(b.def.SearchHooks, hooks...)
	return b
}

func (b *Builder) SortMethods(hooks ...SortHook) *Builder {
	b.def.SortHooks = append(b.def.SortHooks, hooks...)
	return b
}

// FilterWith installs the custom filter hook.
func (b *Builder) FilterWith(hook FilterHook) *Builder {
	b.def.FilterHook = hook
	return b
}

func (b *Builder) Preload(specs ...RelationshipSpec) *Builder {
	b.def.Preloads = append(b.def.Preloads, specs...)
	return b
}

func (b *Builder) Join(specs ...RelationshipSpec) *Builder {
	b.def.Joins = append(b.def.Joins, specs...)
	return b
}

func (b *Builder) LeftJoin(specs ...RelationshipSpec) *Builder {
	b.def.LeftJoins = append(b.def.LeftJoins, specs...)
	return b
}

// PageSize replaces the page size. Values <= 0 are ignored.
func (b *Builder) PageSize(n int) *Builder {
	if n > 0 {
		b.def.PageSize = n
	}
	return b
}

func (b *Builder) Permit(params ...Param) *Builder {
	b.def.PermittedParams = append(b.def.PermittedParams, params...)
	return b
}

// Hooks merges the non-nil hooks of h into the declaration.
func (b *Builder) Hooks(h Hooks) *Builder {
	if h.BaseQuery != nil {
		b.def.Hooks.BaseQuery = h.BaseQuery
	}
	if h.PrepareItem != nil {
		b.def.Hooks.PrepareItem = h.PrepareItem
	}
	if h.AfterCreate != nil {
		b.def.Hooks.AfterCreate = h.AfterCreate
	}
	if h.AfterUpdate != nil {
		b.def.Hooks.AfterUpdate = h.AfterUpdate
	}
	if h.AfterDestroy != nil {
		b.def.Hooks.AfterDestroy = h.AfterDestroy
	}
	return b
}

func (b *Builder) Policy(name string) *Builder {
	b.def.Policy = name
	return b
}

// EnableBatch turns on batch_update and batch_delete.
func (b *Builder) EnableBatch() *Builder {
	b.def.Batch = true
	return b
}

func (b *Builder) EnableUpload() *Builder {
	b.def.Upload = true
	return b
}

// Build returns a copy of the declaration that later builder calls do not affect.
func (b *Builder) Build() *Definition {
	return b.build(DefaultPageSize)
}

func (b *Builder) build(defaultPageSize int) *Definition {
	d := b.def
	d.SearchColumns = append([]query.SearchColumn(nil), b.def.SearchColumns...)
	d.SearchHooks = append([]SearchHook(nil), b.def.SearchHooks...)
	d.SortHooks = append([]SortHook(nil), b.def.SortHooks...)
	d.Preloads = append([]RelationshipSpec(nil), b.def.Preloads...)
	d.Joins = append([]RelationshipSpec(nil), b.def.Joins...)
	d.LeftJoins = append([]RelationshipSpec(nil), b.def.LeftJoins...)
	d.PermittedParams = append([]Param(nil), b.def.PermittedParams...)
	if d.PageSize <= 0 {
		d.PageSize = defaultPageSize
	}
	return &d
}
