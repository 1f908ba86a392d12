package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"marktwatch/server/internal/models"
)

// DefaultThreshold is the minimum partial-similarity score (0-100) a title
// must reach against a rule pattern to be assigned that product key.
const DefaultThreshold = 80

// LoadRules reads the product rules file and validates it. The returned rule
// set is handed to the matcher at construction; nothing holds it as package
// state, so tests and individual runs can load their own.
func LoadRules(path string) (*models.RuleSet, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %v", err)
	}

	var rules models.RuleSet
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %v", err)
	}

	if rules.Threshold == 0 {
		rules.Threshold = DefaultThreshold
	}
	if rules.Threshold < 0 || rules.Threshold > 100 {
		return nil, fmt.Errorf("threshold must be between 0 and 100, got %d", rules.Threshold)
	}

	seen := make(map[string]bool, len(rules.Rules))
	for i, rule := range rules.Rules {
		if rule.Key == "" {
			return nil, fmt.Errorf("rule %d has an empty product key", i)
		}
		if seen[rule.Key] {
			return nil, fmt.Errorf("duplicate product key: %s", rule.Key)
		}
		seen[rule.Key] = true
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("product key %s has no patterns", rule.Key)
		}
	}

	return &rules, nil
}
