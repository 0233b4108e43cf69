package model

// Relation types understood by the registry.
const (
	BelongsTo = "belongs_to"
	HasOne    = "has_one"
	HasMany   = "has_many"
)

// Model describes one table and its associations.
type Model struct {
	Name       string                    `yaml:"-"` // logical name of the model
	Table      string                    `yaml:"table"`
	PrimaryKey string                    `yaml:"primary_key"` // defaults to "id"
	Relations  map[string]*ModelRelation `yaml:"relations"`
	Required   []string                  `yaml:"required"` // columns that must be non-blank on write
}

// ModelRelation describes an association from the owning model.
type ModelRelation struct {
	Name  string `yaml:"-"`
	Type  string `yaml:"type"`  // has_one, has_many, belongs_to
	Model string `yaml:"model"` // logical name of the related model
	Table string `yaml:"table"` // defaults to the related model's table
	FK    string `yaml:"fk"`    // belongs_to: column on the owner; has_*: column on the related table
	PK    string `yaml:"pk"`    // belongs_to: key on the related table; has_*: key on the owner
	Where string `yaml:"where"` // default scope of the association (SQL without WHERE)
	Order string `yaml:"order"` // default order of the association

	// runtime only
	_ModelRef *Model `yaml:"-"`
}

// GetPrimaryKey returns the primary key column, "id" when not configured.
func (m *Model) GetPrimaryKey() string {
	if m.PrimaryKey != "" {
		return m.PrimaryKey
	}
	return "id"
}

func (m *Model) GetRelation(name string) *ModelRelation {
	if m == nil || m.Relations == nil {
		return nil
	}
	return m.Relations[name]
}

// GetModelRef returns the linked related model.
func (r *ModelRelation) GetModelRef() *Model {
	return r._ModelRef
}

// SetModelRef links the related model (called by the registry and by tests).
func (r *ModelRelation) SetModelRef(m *Model) {
	r._ModelRef = m
	if r.Table == "" && m != nil {
		r.Table = m.Table
	}
}

func (r *ModelRelation) IsToMany() bool {
	return r != nil && r.Type == HasMany
}

func (r *ModelRelation) IsToOne() bool {
	return r != nil && (r.Type == BelongsTo || r.Type == HasOne)
}
