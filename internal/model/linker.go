package model

import (
	"fmt"
	"unicode"
)

// Link resolves relation targets and fills FK/PK defaults.
func (r *Registry) Link() error {
	for _, modelName := range r.Names() {
		model := r.models[modelName]
		if model.Table == "" {
			return fmt.Errorf("model '%s' has no table", modelName)
		}
		for relName, rel := range model.Relations {
			if rel == nil {
				return fmt.Errorf("relation '%s.%s' is empty", modelName, relName)
			}
			rel.Name = relName

			if rel.Type != HasMany && rel.Type != HasOne && rel.Type != BelongsTo {
				return fmt.Errorf("relation '%s.%s' must have valid Type (has_many, has_one, belongs_to), got '%s'", modelName, relName, rel.Type)
			}

			targetModel, ok := r.models[rel.Model]
			if !ok {
				return fmt.Errorf("invalid relation: model '%s' not found in '%s.%s'", rel.Model, modelName, relName)
			}
			rel.SetModelRef(targetModel)

			if rel.FK == "" {
				switch rel.Type {
				case BelongsTo:
					// FK lives on the owner and points at the related row
					rel.FK = relName + "_id"
				case HasOne, HasMany:
					// FK lives on the related table and points at the owner
					rel.FK = toSnakeCase(modelName) + "_id"
				}
			}
			if rel.PK == "" {
				if rel.Type == BelongsTo {
					rel.PK = targetModel.GetPrimaryKey()
				} else {
					rel.PK = model.GetPrimaryKey()
				}
			}
		}
	}
	return nil
}

func toSnakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// SnakeName returns the model name in snake_case ("BookTag" -> "book_tag").
func (m *Model) SnakeName() string {
	return toSnakeCase(m.Name)
}
