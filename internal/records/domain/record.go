// Package domain holds the record model shared by the records services and
// repositories.
package domain

import (
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/rules"
)

// Module scopes pipelines, stages, priorities, and records.
type Module string

const (
	ModuleLeads         Module = "leads"
	ModuleOpportunities Module = "opportunities"
)

// IsValidModule reports whether m is a known module.
func IsValidModule(m Module) bool {
	return m == ModuleLeads || m == ModuleOpportunities
}

// Record is a lead or opportunity moving through a pipeline.
type Record struct {
	ID             uuid.UUID
	Module         Module
	PipelineID     uuid.UUID
	StageID        uuid.UUID
	Name           string
	Company        *string
	Email          *string
	Phone          *string
	Source         *string
	Value          *float64
	OwnerID        uuid.UUID
	CreatedBy      uuid.UUID
	Score          int
	ScoreBreakdown map[string]int
	PriorityID     *uuid.UUID
	Qualification  map[string]any
	CustomFields   map[string]any
	ConvertedAt    *time.Time
	DisqualifiedAt *time.Time
	WonAt          *time.Time
	LostAt         *time.Time
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal reports whether the record reached an absorbing stage. Terminal
// records are read-only: stage, score, and owner are frozen.
func (r *Record) IsTerminal() bool {
	return r.ConvertedAt != nil || r.DisqualifiedAt != nil || r.WonAt != nil || r.LostAt != nil
}

// Fields builds the resolvable view used by the rule engines and the
// field-requirement gate.
func (r *Record) Fields() rules.Fields {
	system := map[string]any{
		"name":      r.Name,
		"company":   deref(r.Company),
		"email":     deref(r.Email),
		"phone":     deref(r.Phone),
		"source":    deref(r.Source),
		"score":     r.Score,
		"ownerId":   r.OwnerID.String(),
		"createdAt": r.CreatedAt,
	}
	if r.Value != nil {
		system["value"] = *r.Value
	}

	return rules.Fields{
		System:        system,
		Qualification: r.Qualification,
		Custom:        r.CustomFields,
	}
}

// ApplyFieldEdits merges dotted-key field edits into the record. System
// fields accept the closed set the UI can write; unknown bare keys are
// ignored rather than invented.
func (r *Record) ApplyFieldEdits(fields map[string]any) {
	for key, value := range fields {
		switch {
		case len(key) > len("qualification.") && key[:len("qualification.")] == "qualification.":
			if r.Qualification == nil {
				r.Qualification = map[string]any{}
			}
			r.Qualification[key[len("qualification."):]] = value
		case len(key) > len("custom.") && key[:len("custom.")] == "custom.":
			if r.CustomFields == nil {
				r.CustomFields = map[string]any{}
			}
			r.CustomFields[key[len("custom."):]] = value
		default:
			r.applySystemField(key, value)
		}
	}
}

func (r *Record) applySystemField(key string, value any) {
	switch key {
	case "name":
		if s, ok := value.(string); ok {
			r.Name = s
		}
	case "company":
		r.Company = optionalString(value)
	case "email":
		r.Email = optionalString(value)
	case "phone":
		r.Phone = optionalString(value)
	case "source":
		r.Source = optionalString(value)
	case "value":
		if n, ok := value.(float64); ok {
			r.Value = &n
		}
	}
}

func optionalString(value any) *string {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok {
		return &s
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
