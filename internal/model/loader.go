package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ResourceAPI/internal/logger"

	"gopkg.in/yaml.v3"
)

// Document is one parsed and structurally validated declaration file.
// The resource and serializer loaders decode their own sections from Root.
type Document struct {
	Name string // logical model name, taken from the file name
	Path string
	Root *yaml.Node // root mapping node
}

// Section returns the mapping node stored under key, or nil.
func (d Document) Section(key string) *yaml.Node {
	if d.Root == nil || d.Root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(d.Root.Content); i += 2 {
		if d.Root.Content[i].Value == key {
			return d.Root.Content[i+1]
		}
	}
	return nil
}

// ReadDocuments parses every *.yml file in dir.
func ReadDocuments(dir string) ([]Document, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := ParseDocument(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		doc.Path = path
		docs = append(docs, doc)
	}
	return docs, nil
}

// ParseDocument parses and validates a single declaration.
func ParseDocument(name string, data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("YAML parse error: %w", err)
	}
	// [0] is the document, its first child the root mapping
	if len(root.Content) == 0 {
		return Document{}, fmt.Errorf("empty YAML")
	}
	if err := validateYAMLNode(root.Content[0], "model"); err != nil {
		return Document{}, fmt.Errorf("validation error: %w", err)
	}
	return Document{Name: name, Root: root.Content[0]}, nil
}

// LoadDir registers a model for every declaration file in dir.
func (r *Registry) LoadDir(dir string) error {
	docs, err := ReadDocuments(dir)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := r.AddDocument(doc); err != nil {
			return err
		}
	}
	return nil
}

// AddDocument decodes the model part of doc and registers it.
func (r *Registry) AddDocument(doc Document) error {
	var m Model
	if err := doc.Root.Decode(&m); err != nil {
		return fmt.Errorf("unmarshal error in %s: %w", doc.Name, err)
	}
	m.Name = doc.Name
	r.Add(&m)
	logger.Debug("model_loaded", map[string]any{
		"model":     m.Name,
		"relations": len(m.Relations),
	})
	return nil
}
