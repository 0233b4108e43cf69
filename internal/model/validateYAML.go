package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Allowed keys per mapping context. A context missing here is free-form.
var allowedKeys = map[string]map[string]bool{
	"model": {
		"table":       true,
		"primary_key": true,
		"relations":   true,
		"required":    true,
		"resource":    true,
		"serializer":  true,
	},
	"relation": {
		"model": true,
		"type":  true,
		"fk":    true,
		"pk":    true,
		"table": true,
		"where": true,
		"order": true,
	},
	"resource": {
		"plural":     true,
		"singular":   true,
		"page_size":  true,
		"search":     true,
		"preloads":   true,
		"joins":      true,
		"left_joins": true,
		"permitted":  true,
		"policy":     true,
		"batch":      true,
		"upload":     true,
	},
	"relationship": {
		"name":      true,
		"nested":    true,
		"scope":     true,
		"condition": true,
		"limit":     true,
		"only":      true,
		"except":    true,
		"force":     true,
	},
	"search": {
		"column":      true,
		"association": true,
	},
	"param": {
		"name":   true,
		"nested": true,
	},
	"serializer": {
		"index": true,
		"show":  true,
	},
	"attribute": {
		"key":         true,
		"serializer":  true,
		"attributes":  true,
		"computed":    true,
		"cardinality": true,
		"max_depth":   true,
	},
}

// Context switches: (context, key) -> context of the value.
var childContexts = map[string]map[string]string{
	"model": {
		"relations":  "relations-map",
		"resource":   "resource",
		"serializer": "serializer",
	},
	"relations-map": {"*": "relation"},
	"resource": {
		"search":     "search-seq",
		"preloads":   "relationship-seq",
		"joins":      "relationship-seq",
		"left_joins": "relationship-seq",
		"permitted":  "param-seq",
	},
	"relationship": {"nested": "relationship-seq"},
	"param":        {"nested": "param-seq"},
	"serializer": {
		"index": "attribute-seq",
		"show":  "attribute-seq",
	},
	"attribute": {"attributes": "attribute-seq"},
}

// Element context of sequences.
var sequenceItems = map[string]string{
	"search-seq":       "search",
	"relationship-seq": "relationship",
	"param-seq":        "param",
	"attribute-seq":    "attribute",
}

var allowedCardinalities = map[string]bool{
	"":     true,
	"auto": true,
	"one":  true,
	"many": true,
	"self": true,
}

var allowedRelationTypes = map[string]bool{
	BelongsTo: true,
	HasOne:    true,
	HasMany:   true,
}

func validateYAMLNode(node *yaml.Node, context string) error {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := validateYAMLNode(child, "model"); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		allowed := allowedKeys[context]

		for i := 0; i < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			key := keyNode.Value

			if allowed != nil && !allowed[key] {
				return fmt.Errorf("unknown key '%s' in %s", key, context)
			}

			if context == "relation" && key == "type" && !allowedRelationTypes[valNode.Value] {
				return fmt.Errorf("unknown relation type '%s'", valNode.Value)
			}
			if context == "attribute" && key == "cardinality" && !allowedCardinalities[valNode.Value] {
				return fmt.Errorf("unknown cardinality '%s'", valNode.Value)
			}

			nextContext := ""
			if children, ok := childContexts[context]; ok {
				if c, ok := children[key]; ok {
					nextContext = c
				} else if c, ok := children["*"]; ok {
					nextContext = c
				}
			}

			if err := validateYAMLNode(valNode, nextContext); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		item := sequenceItems[context]
		for _, child := range node.Content {
			// scalars are the short form of a sequence item
			if child.Kind == yaml.ScalarNode {
				continue
			}
			if err := validateYAMLNode(child, item); err != nil {
				return err
			}
		}

	case yaml.ScalarNode:
		// scalar values are checked by the decoders
	}

	return nil
}
