package rules

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Operator identifies a comparison in the shared operator table.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
	OpOlderThan   Operator = "older_than"
)

// IsKnownOperator reports whether op is part of the operator table.
func IsKnownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpIn, OpNotIn,
		OpIsEmpty, OpIsNotEmpty, OpOlderThan:
		return true
	}
	return false
}

// Evaluate applies the operator to (resolved, comparand) and reports whether
// the rule fires. Operators with type requirements that the resolved value
// cannot meet (non-numeric for greater_than, unparseable date for
// older_than) simply do not match; they never error.
func Evaluate(op Operator, resolved any, comparand Value, now time.Time) bool {
	switch op {
	case OpEquals:
		return coerceString(resolved) == comparand.StringForm()
	case OpNotEquals:
		return coerceString(resolved) != comparand.StringForm()
	case OpContains:
		return containsMatch(resolved, comparand)
	case OpNotContains:
		return !containsMatch(resolved, comparand)
	case OpGreaterThan:
		n, ok := coerceNumber(resolved)
		return ok && n > comparand.Num
	case OpLessThan:
		n, ok := coerceNumber(resolved)
		return ok && n < comparand.Num
	case OpIn:
		return listContains(comparand.AsList(), coerceString(resolved))
	case OpNotIn:
		return !listContains(comparand.AsList(), coerceString(resolved))
	case OpIsEmpty:
		return IsEmpty(resolved)
	case OpIsNotEmpty:
		return !IsEmpty(resolved)
	case OpOlderThan:
		ts, ok := coerceTime(resolved)
		if !ok {
			return false
		}
		ageDays := now.Sub(ts).Hours() / 24
		return ageDays > comparand.Num
	default:
		return false
	}
}

// containsMatch is a substring test on the string form, or a set-membership
// test when the resolved value is an array.
func containsMatch(resolved any, comparand Value) bool {
	if items, ok := coerceList(resolved); ok {
		return listContains(items, comparand.StringForm())
	}
	return strings.Contains(coerceString(resolved), comparand.StringForm())
}

func listContains(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

// coerceString renders any resolved scalar to its comparison string form.
func coerceString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case *string:
		if typed == nil {
			return ""
		}
		return *typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return formatNumber(typed)
	case float32:
		return formatNumber(float64(typed))
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case json.Number:
		return typed.String()
	case time.Time:
		return typed.Format(time.RFC3339)
	default:
		return ""
	}
}

// coerceNumber extracts a numeric value; non-numeric resolved values report
// false so numeric operators fall through to "no match".
func coerceNumber(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		n, err := typed.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// coerceList normalizes array-shaped resolved values to a string slice.
func coerceList(v any) ([]string, bool) {
	switch typed := v.(type) {
	case []string:
		return typed, true
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, coerceString(item))
		}
		return items, true
	default:
		return nil, false
	}
}

// coerceTime parses a resolved value as a timestamp. Strings accept RFC3339
// and plain dates; numbers are unix seconds.
func coerceTime(v any) (time.Time, bool) {
	switch typed := v.(type) {
	case time.Time:
		return typed, true
	case *time.Time:
		if typed == nil {
			return time.Time{}, false
		}
		return *typed, true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(typed), 0), true
	case int64:
		return time.Unix(typed, 0), true
	default:
		return time.Time{}, false
	}
}
