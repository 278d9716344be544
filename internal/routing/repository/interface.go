package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
)

// Assignment types for routing rules.
const (
	AssignSpecificUser = "specific_user"
	AssignTeamLead     = "team_lead"
	AssignRoundRobin   = "round_robin"
	AssignWeighted     = "weighted"
)

// IsKnownAssignmentType reports whether t is a supported assignment type.
func IsKnownAssignmentType(t string) bool {
	switch t {
	case AssignSpecificUser, AssignTeamLead, AssignRoundRobin, AssignWeighted:
		return true
	}
	return false
}

// Condition is one predicate of a rule; a rule fires only when all of its
// conditions match.
type Condition struct {
	FieldKey string         `json:"fieldKey"`
	Operator rules.Operator `json:"operator"`
	Value    rules.Value    `json:"value"`
}

// PoolMember is a candidate owner for round_robin and weighted assignment.
// Weight is ignored for round_robin.
type PoolMember struct {
	UserID uuid.UUID `json:"userId"`
	Weight int       `json:"weight"`
}

// Rule routes a new record to an owner. Rules evaluate in ascending
// Priority; the first match wins.
type Rule struct {
	ID              uuid.UUID
	Module          domain.Module
	Name            string
	Priority        int
	IsActive        bool
	Conditions      []Condition
	AssignmentType  string
	AssigneeID      *uuid.UUID
	TeamID          *uuid.UUID
	Pool            []PoolMember
	RoundRobinIndex int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams contains parameters for creating a routing rule.
type CreateParams struct {
	Module         domain.Module
	Name           string
	Priority       int
	Conditions     []Condition
	AssignmentType string
	AssigneeID     *uuid.UUID
	TeamID         *uuid.UUID
	Pool           []PoolMember
}

// UpdateParams contains parameters for updating a routing rule. The Set
// flags guard the replaceable collections.
type UpdateParams struct {
	ID                uuid.UUID
	Name              *string
	Priority          *int
	IsActive          *bool
	Conditions        []Condition
	SetConditions     bool
	AssignmentType    *string
	AssigneeID        *uuid.UUID
	SetAssigneeID     bool
	TeamID            *uuid.UUID
	SetTeamID         bool
	Pool              []PoolMember
	SetPool           bool
	ResetRobinCounter bool
}

// Repository provides routing rule persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Rule, error)
	List(ctx context.Context, module domain.Module) ([]Rule, error)
	// ListActive returns the module's active rules in ascending priority.
	ListActive(ctx context.Context, module domain.Module) ([]Rule, error)
	Create(ctx context.Context, params CreateParams) (Rule, error)
	Update(ctx context.Context, params UpdateParams) (Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// RoundRobinIndex reads the rule's current rotation counter.
	RoundRobinIndex(ctx context.Context, ruleID uuid.UUID) (int, error)
	// ClaimRoundRobinSlot advances the counter from expected to next. It
	// reports false when another assignment got there first.
	ClaimRoundRobinSlot(ctx context.Context, ruleID uuid.UUID, expected, next int) (bool, error)
}
