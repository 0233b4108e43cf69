package model

import (
	"fmt"
	"sort"
)

// Registry holds every model known to the process. It is filled at startup
// and only read afterwards.
type Registry struct {
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: map[string]*Model{}}
}

// InitRegistry loads, validates and links all models from dir.
func InitRegistry(dir string) (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		return nil, fmt.Errorf("load error: %w", err)
	}
	if err := r.Link(); err != nil {
		return nil, fmt.Errorf("link error: %w", err)
	}
	return r, nil
}

// Add registers a model under its Name.
func (r *Registry) Add(m *Model) {
	r.models[m.Name] = m
}

func (r *Registry) Get(name string) *Model {
	if r == nil {
		return nil
	}
	return r.models[name]
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
