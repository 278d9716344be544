package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/rules"
	"salesdesk_backend/internal/scoring/repository"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func rule(name, fieldKey string, op rules.Operator, value rules.Value, points int) repository.Rule {
	return repository.Rule{
		ID:       uuid.New(),
		Name:     name,
		FieldKey: fieldKey,
		Operator: op,
		Value:    value,
		Points:   points,
		IsActive: true,
	}
}

func TestEvaluate_SumsMatchedRules(t *testing.T) {
	ruleSet := []repository.Rule{
		rule("has email", "email", rules.OpIsNotEmpty, rules.StringValue(""), 10),
		rule("big budget", "qualification.budget", rules.OpGreaterThan, rules.NumberValue(5000), 25),
		rule("bad source", "source", rules.OpEquals, rules.StringValue("cold_call"), -5),
	}
	fields := rules.Fields{
		System:        map[string]any{"email": "a@b.example", "source": "web"},
		Qualification: map[string]any{"budget": 9000},
	}

	result := Evaluate(ruleSet, 100, fields, testNow)
	if result.Total != 35 {
		t.Fatalf("expected 35, got %d", result.Total)
	}
	if result.Breakdown["has email"] != 10 || result.Breakdown["big budget"] != 25 {
		t.Fatalf("unexpected breakdown: %+v", result.Breakdown)
	}
	if _, ok := result.Breakdown["bad source"]; ok {
		t.Fatal("unmatched rule must not appear in the breakdown")
	}
}

func TestEvaluate_ClampsAtEndOnly(t *testing.T) {
	ruleSet := []repository.Rule{
		rule("penalty", "email", rules.OpIsEmpty, rules.StringValue(""), -50),
		rule("recovery", "source", rules.OpEquals, rules.StringValue("referral"), 30),
	}
	fields := rules.Fields{System: map[string]any{"email": "", "source": "referral"}}

	// Intermediate total dips to -50, the final clamp lands on 0, not on a
	// clamped-per-rule 30.
	result := Evaluate(ruleSet, 100, fields, testNow)
	if result.Total != 0 {
		t.Fatalf("expected 0 after final clamp, got %d", result.Total)
	}

	over := []repository.Rule{
		rule("a", "source", rules.OpEquals, rules.StringValue("referral"), 80),
		rule("b", "source", rules.OpEquals, rules.StringValue("referral"), 80),
	}
	result = Evaluate(over, 100, fields, testNow)
	if result.Total != 100 {
		t.Fatalf("expected clamp to 100, got %d", result.Total)
	}
	if result.Breakdown["a"] != 80 || result.Breakdown["b"] != 80 {
		t.Fatalf("breakdown must keep pre-clamp points, got %+v", result.Breakdown)
	}
}

func TestEvaluate_SkipsInactiveRules(t *testing.T) {
	inactive := rule("disabled", "email", rules.OpIsNotEmpty, rules.StringValue(""), 40)
	inactive.IsActive = false
	ruleSet := []repository.Rule{
		inactive,
		rule("enabled", "email", rules.OpIsNotEmpty, rules.StringValue(""), 10),
	}
	fields := rules.Fields{System: map[string]any{"email": "a@b.example"}}

	result := Evaluate(ruleSet, 100, fields, testNow)
	if result.Total != 10 {
		t.Fatalf("expected inactive rule skipped, got %d", result.Total)
	}
}

func TestEvaluate_UnresolvableFieldDoesNotMatch(t *testing.T) {
	ruleSet := []repository.Rule{
		rule("missing custom", "custom.industry", rules.OpEquals, rules.StringValue("saas"), 15),
		rule("missing is empty", "custom.industry", rules.OpIsEmpty, rules.StringValue(""), 5),
	}

	result := Evaluate(ruleSet, 100, rules.Fields{}, testNow)
	if result.Total != 5 {
		t.Fatalf("missing field matches only is_empty, got %d", result.Total)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ruleSet := []repository.Rule{
		rule("stale", "createdAt", rules.OpOlderThan, rules.NumberValue(30), 20),
		rule("named", "name", rules.OpContains, rules.StringValue("corp"), 5),
	}
	fields := rules.Fields{System: map[string]any{
		"createdAt": testNow.AddDate(0, -2, 0),
		"name":      "acme corp",
	}}

	first := Evaluate(ruleSet, 100, fields, testNow)
	for i := 0; i < 10; i++ {
		again := Evaluate(ruleSet, 100, fields, testNow)
		if again.Total != first.Total || len(again.Breakdown) != len(first.Breakdown) {
			t.Fatalf("evaluation must be deterministic: %+v vs %+v", first, again)
		}
	}
	if first.Total != 25 {
		t.Fatalf("expected 25, got %d", first.Total)
	}
}

func TestEvaluate_ZeroMaxScoreFallsBack(t *testing.T) {
	ruleSet := []repository.Rule{
		rule("match", "name", rules.OpIsNotEmpty, rules.StringValue(""), 150),
	}
	fields := rules.Fields{System: map[string]any{"name": "x"}}

	result := Evaluate(ruleSet, 0, fields, testNow)
	if result.Total != DefaultMaxScore {
		t.Fatalf("expected fallback cap %d, got %d", DefaultMaxScore, result.Total)
	}
}
