// Package matcher maps free-text listing titles to canonical product keys
// using partial string similarity against a configured rule set.
package matcher

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"marktwatch/server/internal/models"
)

type Matcher struct {
	rules     []models.ProductRule
	threshold int
}

// New builds a matcher from a validated rule set. The rule order is kept:
// when two keys score equally, the one declared first wins.
func New(rules *models.RuleSet) *Matcher {
	return &Matcher{
		rules:     rules.Rules,
		threshold: rules.Threshold,
	}
}

// Match returns the product key whose pattern scores highest against the
// title, provided the score reaches the threshold. The second return value
// is false when no pattern qualifies. Match is pure and deterministic.
func (m *Matcher) Match(title string) (string, bool) {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return "", false
	}

	bestKey := ""
	bestScore := 0
	for _, rule := range m.rules {
		for _, pattern := range rule.Patterns {
			score := fuzzy.PartialRatio(strings.ToLower(pattern), title)
			if score > bestScore {
				bestKey = rule.Key
				bestScore = score
			}
		}
	}

	if bestKey != "" && bestScore >= m.threshold {
		return bestKey, true
	}
	return "", false
}
