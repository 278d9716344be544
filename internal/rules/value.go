package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"salesdesk_backend/platform/apperr"
)

// ValueKind discriminates the typed rule value variant.
type ValueKind int

const (
	// KindString holds a plain string comparand.
	KindString ValueKind = iota
	// KindNumber holds a numeric comparand.
	KindNumber
	// KindBool holds a boolean comparand.
	KindBool
	// KindList holds a list of string comparands.
	KindList
)

// Value is the tagged variant behind a rule's dynamically-typed comparand.
// Exactly one member is meaningful, selected by Kind. The shape is validated
// against the rule's operator at rule-creation time, not at evaluation time.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// StringValue builds a string-kind value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue builds a number-kind value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue builds a bool-kind value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// ListValue builds a list-kind value.
func ListValue(items ...string) Value { return Value{Kind: KindList, List: items} }

// UnmarshalJSON decodes a JSON scalar or string array into the variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch typed := raw.(type) {
	case string:
		*v = StringValue(typed)
	case json.Number:
		n, err := typed.Float64()
		if err != nil {
			return err
		}
		*v = NumberValue(n)
	case bool:
		*v = BoolValue(typed)
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			switch entry := item.(type) {
			case string:
				items = append(items, entry)
			case json.Number:
				items = append(items, entry.String())
			default:
				return fmt.Errorf("rule value list entries must be strings or numbers")
			}
		}
		*v = ListValue(items...)
	case nil:
		*v = StringValue("")
	default:
		return fmt.Errorf("unsupported rule value type")
	}

	return nil
}

// MarshalJSON encodes the variant back to its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

// StringForm returns the coerced string form used by the equality and
// containment operators.
func (v Value) StringForm() string {
	switch v.Kind {
	case KindNumber:
		return formatNumber(v.Num)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		// Lists have no scalar form; equality against a list never matches.
		return ""
	default:
		return v.Str
	}
}

// AsList returns the value as a membership list. Scalars become a
// single-element list so "in" rules tolerate a scalar comparand.
func (v Value) AsList() []string {
	if v.Kind == KindList {
		return v.List
	}
	return []string{v.StringForm()}
}

// ValidateForOperator checks that the variant shape fits the operator.
// Returns a validation error suitable for surfacing at rule-creation time.
func (v Value) ValidateForOperator(op Operator) error {
	switch op {
	case OpGreaterThan, OpLessThan, OpOlderThan:
		if v.Kind != KindNumber {
			return apperr.Validation(fmt.Sprintf("operator %q requires a numeric value", op))
		}
	case OpIn, OpNotIn:
		if v.Kind != KindList {
			return apperr.Validation(fmt.Sprintf("operator %q requires a list value", op))
		}
		if len(v.List) == 0 {
			return apperr.Validation(fmt.Sprintf("operator %q requires a non-empty list", op))
		}
	case OpEquals, OpNotEquals, OpContains, OpNotContains:
		if v.Kind == KindList && (op == OpEquals || op == OpNotEquals) {
			return apperr.Validation(fmt.Sprintf("operator %q does not accept a list value", op))
		}
	case OpIsEmpty, OpIsNotEmpty:
		// Emptiness operators ignore the comparand.
	default:
		return apperr.Validation(fmt.Sprintf("unknown operator %q", op))
	}
	return nil
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
