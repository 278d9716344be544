package transport

import (
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/rules"
	"salesdesk_backend/internal/scoring/repository"
)

type CreateTemplateRequest struct {
	Module   string `json:"module" validate:"required,oneof=leads opportunities"`
	Name     string `json:"name" validate:"required,min=1,max=120"`
	MaxScore int    `json:"maxScore" validate:"min=0,max=1000"`
	IsActive bool   `json:"isActive"`
}

type UpdateTemplateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	MaxScore *int    `json:"maxScore,omitempty" validate:"omitempty,min=1,max=1000"`
	IsActive *bool   `json:"isActive,omitempty"`
}

type CreateRuleRequest struct {
	Name      string      `json:"name" validate:"required,min=1,max=120"`
	FieldKey  string      `json:"fieldKey" validate:"required,min=1,max=200"`
	Operator  string      `json:"operator" validate:"required"`
	Value     rules.Value `json:"value"`
	Points    int         `json:"points" validate:"min=-1000,max=1000"`
	SortOrder int         `json:"sortOrder" validate:"min=0"`
}

type UpdateRuleRequest struct {
	Name      *string      `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	FieldKey  *string      `json:"fieldKey,omitempty" validate:"omitempty,min=1,max=200"`
	Operator  *string      `json:"operator,omitempty"`
	Value     *rules.Value `json:"value,omitempty"`
	Points    *int         `json:"points,omitempty" validate:"omitempty,min=-1000,max=1000"`
	SortOrder *int         `json:"sortOrder,omitempty" validate:"omitempty,min=0"`
	IsActive  *bool        `json:"isActive,omitempty"`
}

type TemplateResponse struct {
	ID       uuid.UUID `json:"id"`
	Module   string    `json:"module"`
	Name     string    `json:"name"`
	MaxScore int       `json:"maxScore"`
	IsActive bool      `json:"isActive"`
}

type RuleResponse struct {
	ID         uuid.UUID   `json:"id"`
	TemplateID uuid.UUID   `json:"templateId"`
	Name       string      `json:"name"`
	FieldKey   string      `json:"fieldKey"`
	Operator   string      `json:"operator"`
	Value      rules.Value `json:"value"`
	Points     int         `json:"points"`
	SortOrder  int         `json:"sortOrder"`
	IsActive   bool        `json:"isActive"`
}

type JobResponse struct {
	ID              uuid.UUID  `json:"id"`
	Module          string     `json:"module"`
	Status          string     `json:"status"`
	Processed       int        `json:"processed"`
	Skipped         int        `json:"skipped"`
	CancelRequested bool       `json:"cancelRequested"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func ToTemplateResponse(t repository.Template) TemplateResponse {
	return TemplateResponse{
		ID:       t.ID,
		Module:   string(t.Module),
		Name:     t.Name,
		MaxScore: t.MaxScore,
		IsActive: t.IsActive,
	}
}

func ToTemplateResponses(templates []repository.Template) []TemplateResponse {
	out := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, ToTemplateResponse(t))
	}
	return out
}

func ToRuleResponse(r repository.Rule) RuleResponse {
	return RuleResponse{
		ID:         r.ID,
		TemplateID: r.TemplateID,
		Name:       r.Name,
		FieldKey:   r.FieldKey,
		Operator:   string(r.Operator),
		Value:      r.Value,
		Points:     r.Points,
		SortOrder:  r.SortOrder,
		IsActive:   r.IsActive,
	}
}

func ToRuleResponses(ruleSet []repository.Rule) []RuleResponse {
	out := make([]RuleResponse, 0, len(ruleSet))
	for _, r := range ruleSet {
		out = append(out, ToRuleResponse(r))
	}
	return out
}

func ToJobResponse(j repository.Job) JobResponse {
	return JobResponse{
		ID:              j.ID,
		Module:          string(j.Module),
		Status:          j.Status,
		Processed:       j.Processed,
		Skipped:         j.Skipped,
		CancelRequested: j.CancelRequested,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
		CreatedAt:       j.CreatedAt,
	}
}
