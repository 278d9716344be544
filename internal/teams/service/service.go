// Package service exposes user and team lookups plus record membership
// management shared by routing and the stage transition flow.
package service

import (
	"context"

	"github.com/google/uuid"

	"salesdesk_backend/internal/teams/repository"
	"salesdesk_backend/platform/apperr"
)

// Access levels for record team membership.
const (
	AccessViewer = "viewer"
	AccessEditor = "editor"
)

// Service exposes team operations.
type Service struct {
	repo repository.Repository
}

// New creates a new teams service.
func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// GetUser returns a user.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (repository.User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListActiveUsers returns all active users.
func (s *Service) ListActiveUsers(ctx context.Context) ([]repository.User, error) {
	return s.repo.ListActiveUsers(ctx)
}

// ListTeams returns all teams.
func (s *Service) ListTeams(ctx context.Context) ([]repository.Team, error) {
	return s.repo.ListTeams(ctx)
}

// TeamLeadID resolves a team's active lead.
func (s *Service) TeamLeadID(ctx context.Context, teamID uuid.UUID) (uuid.UUID, error) {
	lead, err := s.repo.TeamLead(ctx, teamID)
	if err != nil {
		return uuid.Nil, err
	}
	return lead.ID, nil
}

// AddRecordMember grants a user access to a record's team.
func (s *Service) AddRecordMember(ctx context.Context, recordID, userID uuid.UUID, accessLevel string) error {
	if accessLevel != AccessViewer && accessLevel != AccessEditor {
		return apperr.Validation("unknown access level")
	}
	return s.repo.AddRecordMember(ctx, recordID, userID, accessLevel)
}

// ListRecordMembers returns a record's team members.
func (s *Service) ListRecordMembers(ctx context.Context, recordID uuid.UUID) ([]repository.Member, error) {
	return s.repo.ListRecordMembers(ctx, recordID)
}
