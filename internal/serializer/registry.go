package serializer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"
)

// ErrFrozen is returned by registration calls made after Freeze.
var ErrFrozen = errors.New("serializer registry is frozen")

// Definition is the frozen attribute lists of one serializer.
type Definition struct {
	Name  string
	Model *model.Model
	Index []Attribute
	Show  []Attribute // nil falls back to Index
}

// ShowAttributes returns the attributes rendered by RenderShow.
func (d *Definition) ShowAttributes() []Attribute {
	if d.Show == nil {
		return d.Index
	}
	return d.Show
}

// Builder accumulates a serializer declaration. Index appends, Show replaces.
type Builder struct {
	def Definition
}

func NewBuilder(name string, m *model.Model) *Builder {
	return &Builder{def: Definition{Name: name, Model: m}}
}

func (b *Builder) Index(attrs ...Attribute) *Builder {
	b.def.Index = append(b.def.Index, attrs...)
	return b
}

func (b *Builder) Show(attrs ...Attribute) *Builder {
	b.def.Show = copyAttrs(attrs)
	return b
}

func (b *Builder) Build() *Definition {
	d := b.def
	d.Index = copyAttrs(b.def.Index)
	if b.def.Show != nil {
		d.Show = copyAttrs(b.def.Show)
	}
	return &d
}

// copyAttrs copies into a non-nil slice so an empty Show stays declared.
func copyAttrs(attrs []Attribute) []Attribute {
	out := make([]Attribute, len(attrs))
	copy(out, attrs)
	return out
}

// Registry holds every serializer. It is filled at startup, linked by
// Freeze and read-only afterwards.
type Registry struct {
	builders map[string]*Builder
	order    []string
	computes map[string]ComputeFunc

	frozen bool
	defs   map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{
		builders: map[string]*Builder{},
		computes: map[string]ComputeFunc{},
	}
}

func (r *Registry) Register(b *Builder) error {
	if r.frozen {
		return ErrFrozen
	}
	name := b.def.Name
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("serializer %q registered twice", name)
	}
	r.builders[name] = b
	r.order = append(r.order, name)
	return nil
}

// Extend runs fn against the builder of a registered serializer.
func (r *Registry) Extend(name string, fn func(b *Builder)) error {
	if r.frozen {
		return ErrFrozen
	}
	b, ok := r.builders[name]
	if !ok {
		return fmt.Errorf("serializer %q is not registered", name)
	}
	fn(b)
	return nil
}

// RegisterCompute names a computed attribute so declarations can refer to it.
func (r *Registry) RegisterCompute(name string, fn ComputeFunc) error {
	if r.frozen {
		return ErrFrozen
	}
	r.computes[name] = fn
	return nil
}

func (r *Registry) Compute(name string) (ComputeFunc, bool) {
	fn, ok := r.computes[name]
	return fn, ok
}

func (r *Registry) Get(name string) *Definition {
	return r.defs[name]
}

// Freeze builds every serializer, resolves Auto cardinalities and checks
// that no delegate chain can recurse without a MaxDepth bound.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	defs := make(map[string]*Definition, len(r.builders))
	for _, name := range r.order {
		defs[name] = r.builders[name].Build()
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		index, err := link(defs, def.Model, def.Index, name+".index")
		if err != nil {
			return err
		}
		def.Index = index
		if def.Show == nil {
			continue
		}
		if def.Show, err = link(defs, def.Model, def.Show, name+".show"); err != nil {
			return err
		}
	}
	for _, name := range names {
		def := defs[name]
		if err := validateGraph(defs, name, def.Index); err != nil {
			return err
		}
		if err := validateGraph(defs, name, def.ShowAttributes()); err != nil {
			return err
		}
		logger.Debug("serializer_linked", map[string]any{
			"serializer": name,
			"index":      len(def.Index),
			"show":       len(def.ShowAttributes()),
		})
	}
	r.defs = defs
	r.frozen = true
	return nil
}

// link returns a copy of attrs with every reference checked and every
// cardinality decided.
func link(defs map[string]*Definition, m *model.Model, attrs []Attribute, where string) ([]Attribute, error) {
	out := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		if strings.TrimSpace(a.Key) == "" {
			return nil, fmt.Errorf("%s: attribute without key", where)
		}
		at := where + "." + a.Key
		switch a.Kind {
		case KindField:
		case KindComputed:
			if a.Compute == nil {
				return nil, fmt.Errorf("%s: computed attribute without function", at)
			}
		case KindEmbedded:
			rel := m.GetRelation(a.Key)
			if rel == nil || rel.GetModelRef() == nil {
				return nil, fmt.Errorf("%s: embedded attributes need an association of %s", at, modelName(m))
			}
			card, err := relationCardinality(rel, a.Cardinality, at)
			if err != nil {
				return nil, err
			}
			a.Cardinality = card
			if a.Nested, err = link(defs, rel.GetModelRef(), a.Nested, at); err != nil {
				return nil, err
			}
		case KindDelegate:
			ref, ok := defs[a.Ref]
			if !ok {
				return nil, fmt.Errorf("%s: unknown serializer %q", at, a.Ref)
			}
			rel := m.GetRelation(a.Key)
			if a.Cardinality == Auto && rel == nil {
				a.Cardinality = Self
			}
			if a.Cardinality == Self {
				if ref.Model != nil && m != nil && ref.Model != m {
					return nil, fmt.Errorf("%s: serializer %q renders %s, not %s", at, a.Ref, ref.Model.Name, m.Name)
				}
				break
			}
			if rel == nil || rel.GetModelRef() == nil {
				return nil, fmt.Errorf("%s: %s has no association %q", at, modelName(m), a.Key)
			}
			card, err := relationCardinality(rel, a.Cardinality, at)
			if err != nil {
				return nil, err
			}
			a.Cardinality = card
			if ref.Model != nil && ref.Model != rel.GetModelRef() {
				return nil, fmt.Errorf("%s: serializer %q renders %s, association is %s", at, a.Ref, ref.Model.Name, rel.Model)
			}
		default:
			return nil, fmt.Errorf("%s: unknown attribute kind %v", at, a.Kind)
		}
		out = append(out, a)
	}
	return out, nil
}

func relationCardinality(rel *model.ModelRelation, declared Cardinality, at string) (Cardinality, error) {
	switch declared {
	case Auto:
		if rel.IsToMany() {
			return Many, nil
		}
		return One, nil
	case Self:
		return 0, fmt.Errorf("%s: cardinality self is only valid for delegates", at)
	}
	return declared, nil
}

func modelName(m *model.Model) string {
	if m == nil {
		return "<no model>"
	}
	return m.Name
}

// validateGraph walks delegate chains depth first. Re-entering a serializer
// already on the path is allowed only through an attribute with MaxDepth,
// and only MaxDepth times.
func validateGraph(defs map[string]*Definition, root string, attrs []Attribute) error {
	return dfs(defs, attrs, []string{root}, map[string]int{root: 1})
}

func dfs(defs map[string]*Definition, attrs []Attribute, path []string, counts map[string]int) error {
	for _, a := range attrs {
		switch a.Kind {
		case KindEmbedded:
			if err := dfs(defs, a.Nested, path, counts); err != nil {
				return err
			}
		case KindDelegate:
			seen := counts[a.Ref]
			if seen > 0 {
				if a.MaxDepth <= 0 {
					return fmt.Errorf("cycle detected: %s re-enters serializer %s through %q without max_depth",
						strings.Join(path, " → "), a.Ref, a.Key)
				}
				if seen > a.MaxDepth {
					continue
				}
			}
			next := cloneCounts(counts)
			next[a.Ref] = seen + 1
			if err := dfs(defs, defs[a.Ref].Index, append(path[:len(path):len(path)], a.Ref), next); err != nil {
				return err
			}
		}
	}
	return nil
}

func cloneCounts(m map[string]int) map[string]int {
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
