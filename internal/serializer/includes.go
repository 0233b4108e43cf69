package serializer

import "ResourceAPI/internal/query"

// Includes returns the association tree the index attributes read, so it
// can be preloaded before rendering.
func (s *Serializer) Includes() []query.Include {
	return s.includes(s.def.Index, map[string]int{s.def.Name: 1})
}

// ShowIncludes is Includes for the show attributes.
func (s *Serializer) ShowIncludes() []query.Include {
	return s.includes(s.def.ShowAttributes(), map[string]int{s.def.Name: 1})
}

func (s *Serializer) includes(attrs []Attribute, counts map[string]int) []query.Include {
	var out []query.Include
	for _, a := range attrs {
		switch a.Kind {
		case KindEmbedded:
			out = mergeInclude(out, query.Include{Name: a.Key, Children: s.includes(a.Nested, counts)})
		case KindDelegate:
			ref := s.reg.Get(a.Ref)
			seen := counts[a.Ref]
			if ref == nil || (seen > 0 && seen > a.MaxDepth) {
				continue
			}
			next := cloneCounts(counts)
			next[a.Ref] = seen + 1
			children := s.includes(ref.Index, next)
			if a.Cardinality == Self {
				for _, c := range children {
					out = mergeInclude(out, c)
				}
				continue
			}
			out = mergeInclude(out, query.Include{Name: a.Key, Children: children})
		}
	}
	return out
}

// mergeInclude adds inc to list, folding it into an existing branch of the same name.
func mergeInclude(list []query.Include, inc query.Include) []query.Include {
	for i := range list {
		if list[i].Name == inc.Name {
			for _, c := range inc.Children {
				list[i].Children = mergeInclude(list[i].Children, c)
			}
			return list
		}
	}
	return append(list, inc)
}
