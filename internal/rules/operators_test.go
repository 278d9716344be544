package rules

import (
	"encoding/json"
	"testing"
	"time"
)

var evalNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestEvaluate_Equals_CaseSensitiveStringForm(t *testing.T) {
	if !Evaluate(OpEquals, "Website", StringValue("Website"), evalNow) {
		t.Fatal("expected exact match to fire")
	}
	if Evaluate(OpEquals, "website", StringValue("Website"), evalNow) {
		t.Fatal("expected case mismatch to not fire")
	}
	if !Evaluate(OpEquals, 42.0, NumberValue(42), evalNow) {
		t.Fatal("expected numeric equality on coerced string form")
	}
	if !Evaluate(OpNotEquals, "a", StringValue("b"), evalNow) {
		t.Fatal("expected not_equals to fire on different values")
	}
}

func TestEvaluate_Contains_SubstringAndMembership(t *testing.T) {
	if !Evaluate(OpContains, "north-holland", StringValue("north"), evalNow) {
		t.Fatal("expected substring match to fire")
	}
	if !Evaluate(OpContains, []string{"solar", "roof"}, StringValue("solar"), evalNow) {
		t.Fatal("expected set membership to fire for array values")
	}
	if Evaluate(OpContains, []string{"solar", "roof"}, StringValue("sol"), evalNow) {
		t.Fatal("membership on arrays is exact, not substring")
	}
	if !Evaluate(OpNotContains, []string{"roof"}, StringValue("solar"), evalNow) {
		t.Fatal("expected not_contains to fire when absent")
	}
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	if !Evaluate(OpGreaterThan, 25000.0, NumberValue(10000), evalNow) {
		t.Fatal("expected 25000 > 10000 to fire")
	}
	if Evaluate(OpGreaterThan, "not a number", NumberValue(10), evalNow) {
		t.Fatal("non-numeric resolved value must not match")
	}
	if !Evaluate(OpLessThan, "5", NumberValue(10), evalNow) {
		t.Fatal("numeric strings participate in comparison")
	}
	if Evaluate(OpLessThan, nil, NumberValue(10), evalNow) {
		t.Fatal("missing value must not match a numeric comparison")
	}
}

func TestEvaluate_InNotIn(t *testing.T) {
	list := ListValue("website", "referral")
	if !Evaluate(OpIn, "website", list, evalNow) {
		t.Fatal("expected in to fire on membership")
	}
	if Evaluate(OpIn, "cold", list, evalNow) {
		t.Fatal("expected in to not fire for non-member")
	}
	if !Evaluate(OpNotIn, "cold", list, evalNow) {
		t.Fatal("expected not_in to fire for non-member")
	}
}

func TestEvaluate_Emptiness(t *testing.T) {
	if !Evaluate(OpIsEmpty, "  ", Value{}, evalNow) {
		t.Fatal("whitespace is empty")
	}
	if Evaluate(OpIsEmpty, 0, Value{}, evalNow) {
		t.Fatal("zero is not empty")
	}
	if !Evaluate(OpIsNotEmpty, false, Value{}, evalNow) {
		t.Fatal("false is a present value")
	}
}

func TestEvaluate_OlderThan(t *testing.T) {
	tenDaysAgo := evalNow.Add(-10 * 24 * time.Hour)
	if !Evaluate(OpOlderThan, tenDaysAgo, NumberValue(7), evalNow) {
		t.Fatal("expected a 10 day old timestamp to be older than 7 days")
	}
	if Evaluate(OpOlderThan, tenDaysAgo, NumberValue(14), evalNow) {
		t.Fatal("expected a 10 day old timestamp to not be older than 14 days")
	}
	if !Evaluate(OpOlderThan, tenDaysAgo.Format(time.RFC3339), NumberValue(7), evalNow) {
		t.Fatal("expected RFC3339 strings to parse")
	}
	if Evaluate(OpOlderThan, "not a date", NumberValue(1), evalNow) {
		t.Fatal("unparseable dates must not match")
	}
}

func TestValue_JSONRoundTripShapes(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`"hello"`), &v); err != nil || v.Kind != KindString || v.Str != "hello" {
		t.Fatalf("expected string value, got %+v err=%v", v, err)
	}
	if err := json.Unmarshal([]byte(`12.5`), &v); err != nil || v.Kind != KindNumber || v.Num != 12.5 {
		t.Fatalf("expected number value, got %+v err=%v", v, err)
	}
	if err := json.Unmarshal([]byte(`true`), &v); err != nil || v.Kind != KindBool || !v.Bool {
		t.Fatalf("expected bool value, got %+v err=%v", v, err)
	}
	if err := json.Unmarshal([]byte(`["a","b"]`), &v); err != nil || v.Kind != KindList || len(v.List) != 2 {
		t.Fatalf("expected list value, got %+v err=%v", v, err)
	}
}

func TestValue_ValidateForOperator(t *testing.T) {
	if err := StringValue("x").ValidateForOperator(OpGreaterThan); err == nil {
		t.Fatal("greater_than requires a numeric value")
	}
	if err := NumberValue(5).ValidateForOperator(OpOlderThan); err != nil {
		t.Fatalf("older_than accepts numbers: %v", err)
	}
	if err := StringValue("x").ValidateForOperator(OpIn); err == nil {
		t.Fatal("in requires a list value")
	}
	if err := ListValue().ValidateForOperator(OpIn); err == nil {
		t.Fatal("in requires a non-empty list")
	}
	if err := ListValue("a").ValidateForOperator(OpEquals); err == nil {
		t.Fatal("equals does not accept a list")
	}
	if err := StringValue("x").ValidateForOperator(Operator("bogus")); err == nil {
		t.Fatal("unknown operators are rejected")
	}
}
