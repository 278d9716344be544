// Package service implements routing rule management. Rule evaluation lives
// in the engine package; this layer guards the invariants rules must hold
// before they are allowed to route.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/routing/repository"
	"salesdesk_backend/platform/apperr"
)

// Service exposes routing rule operations.
type Service struct {
	repo repository.Repository
}

// New creates a new routing service.
func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a routing rule.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Rule, error) {
	return s.repo.Get(ctx, id)
}

// List returns the module's rules in priority order.
func (s *Service) List(ctx context.Context, module domain.Module) ([]repository.Rule, error) {
	if !domain.IsValidModule(module) {
		return nil, apperr.Validation("unknown module")
	}
	return s.repo.List(ctx, module)
}

// Create creates a routing rule after validating its conditions and
// assignment target.
func (s *Service) Create(ctx context.Context, params repository.CreateParams) (repository.Rule, error) {
	if !domain.IsValidModule(params.Module) {
		return repository.Rule{}, apperr.Validation("unknown module")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return repository.Rule{}, apperr.Validation("rule name is required")
	}
	if err := validateConditions(params.Conditions); err != nil {
		return repository.Rule{}, err
	}
	if err := validateTarget(params.AssignmentType, params.AssigneeID, params.TeamID, params.Pool); err != nil {
		return repository.Rule{}, err
	}

	return s.repo.Create(ctx, params)
}

// Update updates a routing rule, revalidating the state the rule will be in
// after the update.
func (s *Service) Update(ctx context.Context, params repository.UpdateParams) (repository.Rule, error) {
	current, err := s.repo.Get(ctx, params.ID)
	if err != nil {
		return repository.Rule{}, err
	}

	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		return repository.Rule{}, apperr.Validation("rule name is required")
	}
	if params.SetConditions {
		if err := validateConditions(params.Conditions); err != nil {
			return repository.Rule{}, err
		}
	}

	assignmentType := current.AssignmentType
	if params.AssignmentType != nil {
		assignmentType = *params.AssignmentType
	}
	assigneeID := current.AssigneeID
	if params.SetAssigneeID {
		assigneeID = params.AssigneeID
	}
	teamID := current.TeamID
	if params.SetTeamID {
		teamID = params.TeamID
	}
	pool := current.Pool
	if params.SetPool {
		pool = params.Pool
		// A new pool restarts the rotation.
		params.ResetRobinCounter = true
	}
	if err := validateTarget(assignmentType, assigneeID, teamID, pool); err != nil {
		return repository.Rule{}, err
	}

	return s.repo.Update(ctx, params)
}

// Delete removes a routing rule.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func validateConditions(conditions []repository.Condition) error {
	for _, condition := range conditions {
		if strings.TrimSpace(condition.FieldKey) == "" {
			return apperr.Validation("condition field key is required")
		}
		if err := condition.Value.ValidateForOperator(condition.Operator); err != nil {
			return err
		}
	}
	return nil
}

func validateTarget(assignmentType string, assigneeID, teamID *uuid.UUID, pool []repository.PoolMember) error {
	switch assignmentType {
	case repository.AssignSpecificUser:
		if assigneeID == nil {
			return apperr.Validation("specific_user rules require an assignee")
		}
	case repository.AssignTeamLead:
		if teamID == nil {
			return apperr.Validation("team_lead rules require a team")
		}
	case repository.AssignRoundRobin:
		if len(pool) == 0 {
			return apperr.Validation("round_robin rules require a pool")
		}
	case repository.AssignWeighted:
		if len(pool) == 0 {
			return apperr.Validation("weighted rules require a pool")
		}
		positive := false
		for _, member := range pool {
			if member.Weight < 0 {
				return apperr.Validation("pool weights cannot be negative")
			}
			if member.Weight > 0 {
				positive = true
			}
		}
		if !positive {
			return apperr.Validation("weighted rules require at least one positive weight")
		}
	default:
		return apperr.Validation("unknown assignment type")
	}
	return nil
}
