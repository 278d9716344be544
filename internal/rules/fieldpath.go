// Package rules implements the shared rule-evaluation primitives used by the
// scoring and routing engines and by the stage field-requirement gate:
// dotted field-key resolution, the typed rule value variant, and the
// operator table.
package rules

import "strings"

const (
	prefixQualification = "qualification."
	prefixCustom        = "custom."
)

// Fields is the resolvable view of a record. System holds the flat built-in
// fields (name, email, source, ...), Qualification and Custom hold the
// free-form maps addressed by their prefixes.
type Fields struct {
	System        map[string]any
	Qualification map[string]any
	Custom        map[string]any
}

// Resolve reads a value out of the record view given a dotted field key.
// The prefix set is closed: "qualification.*", "custom.*", or a bare system
// field name. The second return reports whether the key was present at all.
func Resolve(f Fields, key string) (any, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}

	switch {
	case strings.HasPrefix(key, prefixQualification):
		return lookup(f.Qualification, strings.TrimPrefix(key, prefixQualification))
	case strings.HasPrefix(key, prefixCustom):
		return lookup(f.Custom, strings.TrimPrefix(key, prefixCustom))
	default:
		return lookup(f.System, key)
	}
}

func lookup(m map[string]any, key string) (any, bool) {
	if m == nil || key == "" {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// IsEmpty reports whether a resolved value counts as missing. Only literal
// emptiness qualifies: nil and empty/whitespace strings. Zero, false, and
// empty arrays are present values.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if s, ok := v.(*string); ok {
		return s == nil || strings.TrimSpace(*s) == ""
	}
	return false
}
