package serializer

import (
	"fmt"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"

	"gopkg.in/yaml.v3"
)

type yamlSerializer struct {
	Index []yamlAttribute `yaml:"index"`
	Show  []yamlAttribute `yaml:"show"`
}

type yamlAttribute struct {
	Key         string          `yaml:"key"`
	Serializer  string          `yaml:"serializer"`
	Attributes  []yamlAttribute `yaml:"attributes"`
	Computed    string          `yaml:"computed"`
	Cardinality string          `yaml:"cardinality"`
	MaxDepth    int             `yaml:"max_depth"`
}

func (a *yamlAttribute) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		a.Key = n.Value
		return nil
	}
	type plain yamlAttribute
	return n.Decode((*plain)(a))
}

// LoadDocuments registers a serializer, named after the model, for every
// document carrying a "serializer" section. Computed attributes must be
// registered beforehand.
func (r *Registry) LoadDocuments(models *model.Registry, docs []model.Document) error {
	for _, doc := range docs {
		section := doc.Section("serializer")
		if section == nil {
			continue
		}
		var ys yamlSerializer
		if err := section.Decode(&ys); err != nil {
			return fmt.Errorf("serializer %s: %w", doc.Name, err)
		}
		b := NewBuilder(doc.Name, models.Get(doc.Name))
		index, err := r.attributes(ys.Index)
		if err != nil {
			return fmt.Errorf("serializer %s: %w", doc.Name, err)
		}
		b.Index(index...)
		if ys.Show != nil {
			show, err := r.attributes(ys.Show)
			if err != nil {
				return fmt.Errorf("serializer %s: %w", doc.Name, err)
			}
			b.Show(show...)
		}
		if err := r.Register(b); err != nil {
			return err
		}
		logger.Debug("serializer_loaded", map[string]any{"serializer": doc.Name})
	}
	return nil
}

func (r *Registry) attributes(in []yamlAttribute) ([]Attribute, error) {
	out := make([]Attribute, 0, len(in))
	for _, y := range in {
		card, ok := cardinalityNames[y.Cardinality]
		if !ok {
			return nil, fmt.Errorf("attribute %s: unknown cardinality %q", y.Key, y.Cardinality)
		}
		var a Attribute
		switch {
		case y.Computed != "":
			fn, ok := r.Compute(y.Computed)
			if !ok {
				return nil, fmt.Errorf("attribute %s: unknown computed %q", y.Key, y.Computed)
			}
			a = Computed(y.Key, fn)
		case y.Serializer != "":
			a = Delegate(y.Key, y.Serializer, card).WithMaxDepth(y.MaxDepth)
		case y.Attributes != nil:
			nested, err := r.attributes(y.Attributes)
			if err != nil {
				return nil, err
			}
			a = Embedded(y.Key, nested...)
			a.Cardinality = card
		default:
			a = Field(y.Key)
		}
		out = append(out, a)
	}
	return out, nil
}
