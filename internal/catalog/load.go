package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of data/items.yaml.
type File struct {
	Items        []ItemDefinition  `yaml:"items"`
	Combinations []CombinationRule `yaml:"combinations"`
}

// Load reads an item catalog and its combination rules from a YAML file.
func Load(path string) (*Registry, *Combinations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Registry, *Combinations, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	reg := NewRegistry()
	for _, d := range f.Items {
		if err := reg.Register(d); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range f.Combinations {
		for _, id := range []string{r.First, r.Second, r.ResultID} {
			if id == "" {
				continue
			}
			if _, ok := reg.Definition(id); !ok {
				return nil, nil, fmt.Errorf("combination %s+%s references unknown item %s", r.First, r.Second, id)
			}
		}
	}
	combos, err := NewCombinations(f.Combinations...)
	if err != nil {
		return nil, nil, err
	}
	return reg, combos, nil
}
