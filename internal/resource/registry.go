package resource

import (
	"errors"
	"fmt"
	"sort"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/query"
)

// ErrFrozen is returned by registration calls made after Freeze.
var ErrFrozen = errors.New("resource registry is frozen")

// Registry maps resource names to their definitions. It is written during
// startup and read-only once frozen, so requests read it without locking.
type Registry struct {
	builders map[string]*Builder
	order    []string
	scopes   map[string]query.Scope

	defaultPageSize int
	frozen          bool
	defs            map[string]*Definition
	byPlural        map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{
		builders:        map[string]*Builder{},
		scopes:          map[string]query.Scope{},
		defaultPageSize: DefaultPageSize,
	}
}

// SetDefaultPageSize sets the page size of resources that declare none.
func (r *Registry) SetDefaultPageSize(n int) {
	if n > 0 {
		r.defaultPageSize = n
	}
}

// Register adds a declaration. Use Extend to add to an existing one.
func (r *Registry) Register(b *Builder) error {
	if r.frozen {
		return ErrFrozen
	}
	name := b.def.Name
	if name == "" {
		return fmt.Errorf("resource without model")
	}
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("resource %q registered twice", name)
	}
	r.builders[name] = b
	r.order = append(r.order, name)
	return nil
}

// Extend runs fn against the builder of an already registered resource.
func (r *Registry) Extend(name string, fn func(b *Builder)) error {
	if r.frozen {
		return ErrFrozen
	}
	b, ok := r.builders[name]
	if !ok {
		return fmt.Errorf("resource %q is not registered", name)
	}
	fn(b)
	return nil
}

// RegisterScope names a scope so declarations can refer to it.
func (r *Registry) RegisterScope(name string, s query.Scope) error {
	if r.frozen {
		return ErrFrozen
	}
	r.scopes[name] = s
	return nil
}

func (r *Registry) Scope(name string) (query.Scope, bool) {
	s, ok := r.scopes[name]
	return s, ok
}

// Freeze builds every definition. Later registration calls fail.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	r.defs = make(map[string]*Definition, len(r.builders))
	r.byPlural = make(map[string]*Definition, len(r.builders))
	for _, name := range r.order {
		def := r.builders[name].build(r.defaultPageSize)
		if def.Plural == "" {
			return fmt.Errorf("resource %q has no plural name", name)
		}
		if other, ok := r.byPlural[def.Plural]; ok {
			return fmt.Errorf("resources %q and %q share the plural %q", other.Name, name, def.Plural)
		}
		r.defs[name] = def
		r.byPlural[def.Plural] = def
		logger.Debug("resource_registered", map[string]any{
			"resource":  name,
			"plural":    def.Plural,
			"page_size": def.PageSize,
			"preloads":  len(def.Preloads),
			"joins":     len(def.Joins) + len(def.LeftJoins),
		})
	}
	r.frozen = true
	return nil
}

// Get returns the frozen definition of a resource, nil when unknown or not frozen.
func (r *Registry) Get(name string) *Definition {
	return r.defs[name]
}

func (r *Registry) ByPlural(plural string) *Definition {
	return r.byPlural[plural]
}

// Definitions returns the frozen definitions ordered by plural name.
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plural < out[j].Plural })
	return out
}
