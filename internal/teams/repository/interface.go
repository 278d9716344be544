package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a routable owner for records.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	IsActive  bool
	CreatedAt time.Time
}

// Team groups users under a lead for team_lead routing.
type Team struct {
	ID        uuid.UUID
	Name      string
	LeadID    *uuid.UUID
	CreatedAt time.Time
}

// Member ties a user to a record's working team with an access level.
type Member struct {
	RecordID    uuid.UUID
	UserID      uuid.UUID
	AccessLevel string
	AddedAt     time.Time
}

// Repository provides user, team, and record membership persistence.
type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	ListActiveUsers(ctx context.Context) ([]User, error)
	GetTeam(ctx context.Context, id uuid.UUID) (Team, error)
	ListTeams(ctx context.Context) ([]Team, error)
	// TeamLead returns the lead of a team.
	TeamLead(ctx context.Context, teamID uuid.UUID) (User, error)
	// AddRecordMember grants a user access to a record; adding an existing
	// member updates the access level.
	AddRecordMember(ctx context.Context, recordID, userID uuid.UUID, accessLevel string) error
	ListRecordMembers(ctx context.Context, recordID uuid.UUID) ([]Member, error)
}
