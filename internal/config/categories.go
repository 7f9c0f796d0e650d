package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a named group of search queries whose combined results form one section.
type Category struct {
	ID      string   `yaml:"id" json:"id"`
	Label   string   `yaml:"label" json:"label"`
	Queries []string `yaml:"queries" json:"queries"`
}

// CategoriesConfig is the YAML layout:
//
//	categories:
//	  - id: latest
//	    label: Latest
//	    queries: ["UPSC", "IAS"]
type CategoriesConfig struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCategories is used when no category file exists.
func DefaultCategories() []Category {
	return []Category{
		{ID: "latest", Label: "Latest", Queries: []string{"UPSC", "IAS", "Civil Services", "Current Affairs"}},
		{ID: "editorial", Label: "Editorials", Queries: []string{`editorial OR opinion OR "op-ed"`}},
		{ID: "schemes", Label: "Schemes", Queries: []string{`Government Schemes OR "government scheme" OR "govt scheme"`}},
		{ID: "pib", Label: "PIB", Queries: []string{`Press Information Bureau OR PIB OR "Press Information Bureau of India"`}},
	}
}

// LoadCategories reads the category list from a YAML file. A missing file
// yields DefaultCategories.
func LoadCategories(path string) ([]Category, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultCategories(), nil
		}
		return nil, err
	}
	defer f.Close()

	var cfg CategoriesConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := ValidateCategories(cfg.Categories); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg.Categories, nil
}

// ValidateCategories checks ids are present and unique and that every
// category has at least one non-blank query.
func ValidateCategories(cats []Category) error {
	if len(cats) == 0 {
		return fmt.Errorf("no categories configured")
	}
	seen := make(map[string]struct{}, len(cats))
	for i, c := range cats {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("category #%d has no id", i+1)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate category id %q", id)
		}
		seen[id] = struct{}{}

		if len(c.Queries) == 0 {
			return fmt.Errorf("category %q has no queries", id)
		}
		for _, q := range c.Queries {
			if strings.TrimSpace(q) == "" {
				return fmt.Errorf("category %q has a blank query", id)
			}
		}
	}
	return nil
}
