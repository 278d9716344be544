package transport

import (
	"github.com/google/uuid"

	"salesdesk_backend/internal/routing/repository"
	"salesdesk_backend/internal/rules"
)

type ConditionInput struct {
	FieldKey string      `json:"fieldKey" validate:"required,min=1,max=200"`
	Operator string      `json:"operator" validate:"required"`
	Value    rules.Value `json:"value"`
}

type PoolMemberInput struct {
	UserID uuid.UUID `json:"userId" validate:"required"`
	Weight int       `json:"weight" validate:"min=0"`
}

type CreateRuleRequest struct {
	Module         string            `json:"module" validate:"required,oneof=leads opportunities"`
	Name           string            `json:"name" validate:"required,min=1,max=120"`
	Priority       int               `json:"priority" validate:"min=0"`
	Conditions     []ConditionInput  `json:"conditions" validate:"dive"`
	AssignmentType string            `json:"assignmentType" validate:"required,oneof=specific_user team_lead round_robin weighted"`
	AssigneeID     *uuid.UUID        `json:"assigneeId,omitempty"`
	TeamID         *uuid.UUID        `json:"teamId,omitempty"`
	Pool           []PoolMemberInput `json:"pool,omitempty" validate:"dive"`
}

type UpdateRuleRequest struct {
	Name           *string           `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Priority       *int              `json:"priority,omitempty" validate:"omitempty,min=0"`
	IsActive       *bool             `json:"isActive,omitempty"`
	Conditions     []ConditionInput  `json:"conditions,omitempty" validate:"omitempty,dive"`
	AssignmentType *string           `json:"assignmentType,omitempty" validate:"omitempty,oneof=specific_user team_lead round_robin weighted"`
	AssigneeID     *uuid.UUID        `json:"assigneeId,omitempty"`
	TeamID         *uuid.UUID        `json:"teamId,omitempty"`
	Pool           []PoolMemberInput `json:"pool,omitempty" validate:"omitempty,dive"`
}

type RuleResponse struct {
	ID             uuid.UUID              `json:"id"`
	Module         string                 `json:"module"`
	Name           string                 `json:"name"`
	Priority       int                    `json:"priority"`
	IsActive       bool                   `json:"isActive"`
	Conditions     []repository.Condition `json:"conditions"`
	AssignmentType string                 `json:"assignmentType"`
	AssigneeID     *uuid.UUID             `json:"assigneeId,omitempty"`
	TeamID         *uuid.UUID             `json:"teamId,omitempty"`
	Pool           []repository.PoolMember `json:"pool,omitempty"`
}

func ToConditions(inputs []ConditionInput) []repository.Condition {
	out := make([]repository.Condition, 0, len(inputs))
	for _, input := range inputs {
		out = append(out, repository.Condition{
			FieldKey: input.FieldKey,
			Operator: rules.Operator(input.Operator),
			Value:    input.Value,
		})
	}
	return out
}

func ToPool(inputs []PoolMemberInput) []repository.PoolMember {
	out := make([]repository.PoolMember, 0, len(inputs))
	for _, input := range inputs {
		out = append(out, repository.PoolMember{UserID: input.UserID, Weight: input.Weight})
	}
	return out
}

func ToRuleResponse(r repository.Rule) RuleResponse {
	return RuleResponse{
		ID:             r.ID,
		Module:         string(r.Module),
		Name:           r.Name,
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		Conditions:     r.Conditions,
		AssignmentType: r.AssignmentType,
		AssigneeID:     r.AssigneeID,
		TeamID:         r.TeamID,
		Pool:           r.Pool,
	}
}

func ToRuleResponses(ruleSet []repository.Rule) []RuleResponse {
	out := make([]RuleResponse, 0, len(ruleSet))
	for _, r := range ruleSet {
		out = append(out, ToRuleResponse(r))
	}
	return out
}
