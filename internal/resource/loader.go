package resource

import (
	"fmt"
	"strings"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"

	"gopkg.in/yaml.v3"
)

type yamlResource struct {
	Plural    string             `yaml:"plural"`
	Singular  string             `yaml:"singular"`
	PageSize  int                `yaml:"page_size"`
	Search    []yamlSearch       `yaml:"search"`
	Preloads  []yamlRelationship `yaml:"preloads"`
	Joins     []yamlRelationship `yaml:"joins"`
	LeftJoins []yamlRelationship `yaml:"left_joins"`
	Permitted []yamlParam        `yaml:"permitted"`
	Policy    string             `yaml:"policy"`
	Batch     bool               `yaml:"batch"`
	Upload    bool               `yaml:"upload"`
}

type yamlSearch struct {
	Column      string `yaml:"column"`
	Association string `yaml:"association"`
}

func (s *yamlSearch) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		s.Column = n.Value
		return nil
	}
	type plain yamlSearch
	return n.Decode((*plain)(s))
}

type yamlRelationship struct {
	Name      string             `yaml:"name"`
	Nested    []yamlRelationship `yaml:"nested"`
	Scope     string             `yaml:"scope"`
	Condition string             `yaml:"condition"`
	Limit     int                `yaml:"limit"`
	Only      []string           `yaml:"only"`
	Except    []string           `yaml:"except"`
	Force     bool               `yaml:"force"`
}

func (r *yamlRelationship) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		r.Name = n.Value
		return nil
	}
	type plain yamlRelationship
	return n.Decode((*plain)(r))
}

type yamlParam struct {
	Name   string      `yaml:"name"`
	Nested []yamlParam `yaml:"nested"`
}

func (p *yamlParam) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		p.Name = n.Value
		return nil
	}
	type plain yamlParam
	return n.Decode((*plain)(p))
}

// LoadDocuments registers a resource for every document carrying a
// "resource" section. Named scopes must be registered beforehand.
func (r *Registry) LoadDocuments(models *model.Registry, docs []model.Document) error {
	for _, doc := range docs {
		section := doc.Section("resource")
		if section == nil {
			continue
		}
		m := models.Get(doc.Name)
		if m == nil {
			return fmt.Errorf("resource %s: model not registered", doc.Name)
		}
		var yr yamlResource
		if err := section.Decode(&yr); err != nil {
			return fmt.Errorf("resource %s: %w", doc.Name, err)
		}
		b, err := r.builderFromYAML(m, yr)
		if err != nil {
			return fmt.Errorf("resource %s: %w", doc.Name, err)
		}
		if err := r.Register(b); err != nil {
			return err
		}
		logger.Debug("resource_loaded", map[string]any{
			"resource": doc.Name,
			"plural":   yr.Plural,
		})
	}
	return nil
}

func (r *Registry) builderFromYAML(m *model.Model, yr yamlResource) (*Builder, error) {
	singular := yr.Singular
	if singular == "" {
		singular = m.SnakeName()
	}
	plural := yr.Plural
	if plural == "" {
		plural = singular + "s"
	}

	b := NewBuilder(m, plural, singular).PageSize(yr.PageSize).Policy(yr.Policy)
	for _, s := range yr.Search {
		if s.Association != "" {
			b.SearchAssociation(s.Association, s.Column)
		} else {
			b.Search(s.Column)
		}
	}

	preloads, err := r.relationshipSpecs(yr.Preloads)
	if err != nil {
		return nil, err
	}
	joins, err := r.relationshipSpecs(yr.Joins)
	if err != nil {
		return nil, err
	}
	leftJoins, err := r.relationshipSpecs(yr.LeftJoins)
	if err != nil {
		return nil, err
	}
	b.Preload(preloads...).Join(joins...).LeftJoin(leftJoins...)
	b.Permit(params(yr.Permitted)...)

	if yr.Batch {
		b.EnableBatch()
	}
	if yr.Upload {
		b.EnableUpload()
	}
	return b, nil
}

func (r *Registry) relationshipSpecs(in []yamlRelationship) ([]RelationshipSpec, error) {
	out := make([]RelationshipSpec, 0, len(in))
	for _, y := range in {
		if strings.TrimSpace(y.Name) == "" {
			return nil, fmt.Errorf("relationship without name")
		}
		spec := RelationshipSpec{
			Name:  y.Name,
			Limit: y.Limit,
			Force: y.Force,
		}
		if y.Scope != "" {
			s, ok := r.Scope(y.Scope)
			if !ok {
				return nil, fmt.Errorf("relationship %s: unknown scope %q", y.Name, y.Scope)
			}
			spec.Scope = s
		}
		if y.Condition != "" {
			cond, err := CompileCondition(y.Condition)
			if err != nil {
				return nil, fmt.Errorf("relationship %s: %w", y.Name, err)
			}
			spec.Condition = cond
		}
		for _, a := range y.Only {
			spec.Only = append(spec.Only, Action(a))
		}
		for _, a := range y.Except {
			spec.Except = append(spec.Except, Action(a))
		}
		nested, err := r.relationshipSpecs(y.Nested)
		if err != nil {
			return nil, err
		}
		if len(nested) > 0 {
			spec.Nested = nested
		}
		out = append(out, spec)
	}
	return out, nil
}

func params(in []yamlParam) []Param {
	if len(in) == 0 {
		return nil
	}
	out := make([]Param, 0, len(in))
	for _, p := range in {
		out = append(out, Param{Name: p.Name, Nested: params(p.Nested)})
	}
	return out
}

