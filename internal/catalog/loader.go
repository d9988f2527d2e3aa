package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/attunelabs/attune/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogFile represents the YAML structure for a topic catalog
type CatalogFile struct {
	Name   string `yaml:"name"`
	Topics []struct {
		ID            string   `yaml:"id"`
		Slug          string   `yaml:"slug"`
		Name          string   `yaml:"name"`
		Layer         string   `yaml:"layer"`
		Category      string   `yaml:"category"`
		Prerequisites []string `yaml:"prerequisites"`
	} `yaml:"topics"`
}

// LoadDefault parses the embedded topic catalog.
func LoadDefault() (*Registry, error) {
	return load(defaultCatalog)
}

// LoadFile parses a topic catalog from a YAML file, replacing the
// embedded default.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return load(data)
}

func load(data []byte) (*Registry, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	topics := make([]domain.Topic, len(file.Topics))
	for i, t := range file.Topics {
		topics[i] = domain.Topic{
			ID:            t.ID,
			Slug:          t.Slug,
			Name:          t.Name,
			Layer:         domain.Layer(t.Layer),
			Category:      t.Category,
			Prerequisites: t.Prerequisites,
		}
	}

	return NewRegistry(topics)
}
