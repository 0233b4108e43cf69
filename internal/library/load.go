package library

import (
	"fmt"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/policy"
	"ResourceAPI/internal/resource"
	"ResourceAPI/internal/serializer"
)

// Registries are the frozen registries of the catalogue.
type Registries struct {
	Models      *model.Registry
	Resources   *resource.Registry
	Serializers *serializer.Registry
	Policies    *policy.Registry
}

// Load reads the declarations in dir, adds the Go parts of the catalogue
// and freezes everything.
func Load(dir string, defaultPageSize int) (*Registries, error) {
	docs, err := model.ReadDocuments(dir)
	if err != nil {
		return nil, fmt.Errorf("read declarations: %w", err)
	}
	return Build(docs, defaultPageSize)
}

// Build is Load for already parsed documents.
func Build(docs []model.Document, defaultPageSize int) (*Registries, error) {
	models := model.NewRegistry()
	for _, doc := range docs {
		if err := models.AddDocument(doc); err != nil {
			return nil, err
		}
	}
	if err := models.Link(); err != nil {
		return nil, fmt.Errorf("link models: %w", err)
	}

	resources := resource.NewRegistry()
	resources.SetDefaultPageSize(defaultPageSize)
	serializers := serializer.NewRegistry()
	if err := Prepare(resources, serializers); err != nil {
		return nil, err
	}
	if err := resources.LoadDocuments(models, docs); err != nil {
		return nil, err
	}
	if err := serializers.LoadDocuments(models, docs); err != nil {
		return nil, err
	}
	if err := Extend(resources); err != nil {
		return nil, err
	}
	if err := resources.Freeze(); err != nil {
		return nil, fmt.Errorf("freeze resources: %w", err)
	}
	if err := serializers.Freeze(); err != nil {
		return nil, fmt.Errorf("freeze serializers: %w", err)
	}

	policies := policy.NewRegistry()
	RegisterPolicies(policies)

	logger.Info("registries_loaded", map[string]any{
		"models":    len(models.Names()),
		"resources": len(resources.Definitions()),
	})
	return &Registries{
		Models:      models,
		Resources:   resources,
		Serializers: serializers,
		Policies:    policies,
	}, nil
}
