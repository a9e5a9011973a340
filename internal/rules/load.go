package rules

import (
	"fmt"
	"os"

	"github.com/solatis/oasconform/internal/types"
	"gopkg.in/yaml.v3"
)

// ruleFile is the mapping form of a rules document.
type ruleFile struct {
	Rules []types.Rule `yaml:"rules"`
}

// LoadFile reads rules from a YAML or JSON file.
func LoadFile(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes either a top-level list of rules or a mapping with a
// "rules" key. JSON input is accepted since it is valid YAML.
func ParseRules(data []byte) ([]types.Rule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}

	var rules []types.Rule
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := root.Content[0].Decode(&rules); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	case yaml.MappingNode:
		var f ruleFile
		if err := root.Content[0].Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
		rules = f.Rules
	default:
		return nil, fmt.Errorf("rules document must be a list or a mapping with a rules key")
	}

	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if len(r.Conditions) == 0 {
			return nil, fmt.Errorf("rule %s: at least one condition is required", r.ID)
		}
	}
	return rules, nil
}
