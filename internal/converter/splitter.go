package converter

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/dnr-filters/internal/models"
)

// MaxRulesPerFile is the host's limit of rules per static ruleset
const MaxRulesPerFile = 30000

// Splitter splits rules into rulesets respecting the per-ruleset limit
type Splitter struct {
	maxRules int
}

// NewSplitter creates a splitter with the given max rules per file
func NewSplitter(maxRules int) *Splitter {
	if maxRules <= 0 {
		maxRules = MaxRulesPerFile
	}
	return &Splitter{maxRules: maxRules}
}

// Split divides rules into multiple rulesets if needed
// Returns a map of ruleset name -> rules
func (s *Splitter) Split(rules []models.Rule, baseName string) map[string][]models.Rule {
	result := make(map[string][]models.Rule)

	if len(rules) <= s.maxRules {
		result[baseName] = rules
		return result
	}

	numParts := (len(rules) + s.maxRules - 1) / s.maxRules

	for i := 0; i < numParts; i++ {
		start := i * s.maxRules
		end := start + s.maxRules
		if end > len(rules) {
			end = len(rules)
		}

		name := fmt.Sprintf("%s-part%d", baseName, i+1)
		result[name] = rules[start:end]
	}

	return result
}

// Deduplicate removes rules with the same priority, condition and action.
// The first occurrence is kept with its ID cleared, see AssignIDs.
func Deduplicate(rules []models.Rule) []models.Rule {
	seen := make(map[string]bool)
	result := make([]models.Rule, 0, len(rules))

	for _, r := range rules {
		r.ID = 0
		data, err := json.Marshal(r)
		if err != nil {
			result = append(result, r)
			continue
		}
		key := string(data)

		if !seen[key] {
			seen[key] = true
			result = append(result, r)
		}
	}

	return result
}

// AssignIDs numbers rules sequentially from first, the host requires unique
// positive IDs within a ruleset.
func AssignIDs(rules []models.Rule, first int) {
	if first <= 0 {
		first = 1
	}
	for i := range rules {
		rules[i].ID = first + i
	}
}
