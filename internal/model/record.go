package model

import "fmt"

// Record is one loaded row plus whatever associations were eager-loaded onto it.
type Record struct {
	Model  *Model
	Fields map[string]any

	assoc map[string][]*Record
}

func NewRecord(m *Model, fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Model: m, Fields: fields}
}

// Get reads a column value. Reading a column the row does not carry is an error.
func (r *Record) Get(field string) (any, error) {
	v, ok := r.Fields[field]
	if !ok {
		name := "<anonymous>"
		if r.Model != nil {
			name = r.Model.Name
		}
		return nil, fmt.Errorf("undefined attribute %q for %s", field, name)
	}
	return v, nil
}

// ID returns the primary key value.
func (r *Record) ID() any {
	if r.Model == nil {
		return r.Fields["id"]
	}
	return r.Fields[r.Model.GetPrimaryKey()]
}

// SetAssociation stores the loaded records of an association.
// To-one associations store zero or one record.
func (r *Record) SetAssociation(name string, records []*Record) {
	if r.assoc == nil {
		r.assoc = map[string][]*Record{}
	}
	if records == nil {
		records = []*Record{}
	}
	r.assoc[name] = records
}

// Association returns the loaded records and whether the association was loaded at all.
func (r *Record) Association(name string) ([]*Record, bool) {
	recs, ok := r.assoc[name]
	return recs, ok
}

func (r *Record) IsLoaded(name string) bool {
	_, ok := r.assoc[name]
	return ok
}

// One returns the single associated record or nil.
func (r *Record) One(name string) *Record {
	if recs := r.assoc[name]; len(recs) > 0 {
		return recs[0]
	}
	return nil
}
