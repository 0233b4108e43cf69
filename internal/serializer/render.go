package serializer

import (
	"fmt"

	"ResourceAPI/internal/model"
)

// Serializer renders one definition for one caller.
type Serializer struct {
	reg      *Registry
	def      *Definition
	identity any
	opts     Options
}

// For returns the serializer name bound to the calling identity and options.
func (r *Registry) For(name string, identity any, opts Options) (*Serializer, error) {
	def := r.Get(name)
	if def == nil {
		return nil, fmt.Errorf("serializer %q not found", name)
	}
	return &Serializer{reg: r, def: def, identity: identity, opts: opts}, nil
}

func (s *Serializer) Definition() *Definition {
	return s.def
}

// RenderIndex projects records with the index attributes. Nil input renders as [].
func (s *Serializer) RenderIndex(records []*model.Record) ([]map[string]any, error) {
	return s.renderIndex(records, map[string]int{s.def.Name: 1})
}

// RenderOne renders a single record with the index attributes.
func (s *Serializer) RenderOne(rec *model.Record) (map[string]any, error) {
	if rec == nil {
		return map[string]any{}, nil
	}
	out, err := s.renderIndex([]*model.Record{rec}, map[string]int{s.def.Name: 1})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// RenderShow projects a record with the show attributes. Nil input renders as {}.
func (s *Serializer) RenderShow(rec *model.Record) (map[string]any, error) {
	if rec == nil {
		return map[string]any{}, nil
	}
	return s.project(rec, s.def.ShowAttributes(), map[string]int{s.def.Name: 1})
}

func (s *Serializer) renderIndex(records []*model.Record, counts map[string]int) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		m, err := s.project(rec, s.def.Index, counts)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Serializer) project(rec *model.Record, attrs []Attribute, counts map[string]int) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		v, err := s.value(rec, a, counts)
		if err != nil {
			return nil, err
		}
		out[a.Key] = v
	}
	return out, nil
}

func (s *Serializer) value(rec *model.Record, a Attribute, counts map[string]int) (any, error) {
	switch a.Kind {
	case KindField:
		return rec.Get(a.Key)

	case KindComputed:
		v, err := a.Compute(rec, s.identity, s.opts)
		if err != nil {
			return nil, fmt.Errorf("computed %q: %w", a.Key, err)
		}
		return v, nil

	case KindEmbedded:
		related, err := loaded(rec, a.Key)
		if err != nil {
			return nil, err
		}
		if a.Cardinality == One {
			var one *model.Record
			if len(related) > 0 {
				one = related[0]
			}
			if one == nil {
				// an absent to-one relation renders as an empty object
				return map[string]any{}, nil
			}
			return s.project(one, a.Nested, counts)
		}
		list := make([]map[string]any, 0, len(related))
		for _, r := range related {
			m, err := s.project(r, a.Nested, counts)
			if err != nil {
				return nil, err
			}
			list = append(list, m)
		}
		return list, nil

	case KindDelegate:
		return s.delegate(rec, a, counts)
	}
	return nil, fmt.Errorf("unknown attribute kind %v", a.Kind)
}

func (s *Serializer) delegate(rec *model.Record, a Attribute, counts map[string]int) (any, error) {
	ref := &Serializer{reg: s.reg, def: s.reg.Get(a.Ref), identity: s.identity, opts: s.opts}
	if ref.def == nil {
		return nil, fmt.Errorf("serializer %q not found", a.Ref)
	}

	seen := counts[a.Ref]
	if seen > 0 && seen > a.MaxDepth {
		// depth budget spent
		if a.Cardinality == One {
			return nil, nil
		}
		return []map[string]any{}, nil
	}
	next := cloneCounts(counts)
	next[a.Ref] = seen + 1

	switch a.Cardinality {
	case Self:
		return ref.renderIndex([]*model.Record{rec}, next)
	case One:
		related, err := loaded(rec, a.Key)
		if err != nil {
			return nil, err
		}
		out, err := ref.renderIndex(related, next)
		if err != nil || len(out) == 0 {
			return nil, err
		}
		return out[0], nil
	default:
		related, err := loaded(rec, a.Key)
		if err != nil {
			return nil, err
		}
		return ref.renderIndex(related, next)
	}
}

func loaded(rec *model.Record, name string) ([]*model.Record, error) {
	related, ok := rec.Association(name)
	if !ok {
		return nil, fmt.Errorf("association %q of %s is not loaded", name, modelName(rec.Model))
	}
	return related, nil
}
