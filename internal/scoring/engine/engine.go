// Package engine evaluates scoring rules against a record's fields. It is
// pure: no storage, no clock of its own, fully deterministic for a given
// rule set, field view, and evaluation time.
package engine

import (
	"time"

	"salesdesk_backend/internal/rules"
	"salesdesk_backend/internal/scoring/repository"
)

// DefaultMaxScore caps totals when a template carries no explicit maximum.
const DefaultMaxScore = 100

// Result is the outcome of one scoring pass.
type Result struct {
	// Total is the summed points clamped to [0, max].
	Total int
	// Breakdown maps each matched rule's name to the points it awarded,
	// before clamping.
	Breakdown map[string]int
}

// Evaluate runs the rule set in order against the field view. Inactive rules
// are skipped, an unresolvable field simply fails to match. Points sum
// without intermediate bounds, the clamp happens once at the end.
func Evaluate(ruleSet []repository.Rule, maxScore int, fields rules.Fields, now time.Time) Result {
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}

	total := 0
	breakdown := make(map[string]int, len(ruleSet))

	for _, rule := range ruleSet {
		if !rule.IsActive {
			continue
		}
		resolved, _ := rules.Resolve(fields, rule.FieldKey)
		if !rules.Evaluate(rule.Operator, resolved, rule.Value, now) {
			continue
		}
		total += rule.Points
		breakdown[rule.Name] += rule.Points
	}

	if total < 0 {
		total = 0
	}
	if total > maxScore {
		total = maxScore
	}

	return Result{Total: total, Breakdown: breakdown}
}
