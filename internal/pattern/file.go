package pattern

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a rule set from a YAML document. Unknown fields are
// rejected so typos in rule files surface at load time, and every rule is
// compiled once to validate its expression before the set is returned.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule set: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var set Set
	if err := decoder.Decode(&set); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}
	if set.Name == "" {
		return nil, fmt.Errorf("%s: rule set name is required", path)
	}
	if len(set.Rules) == 0 {
		return nil, fmt.Errorf("%s: rule set %s has no rules", path, set.Name)
	}
	for _, rule := range set.Rules {
		if _, err := rule.compile(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return &set, nil
}
