package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesdesk_backend/platform/apperr"
)

const (
	userNotFoundMessage = "user not found"
	teamNotFoundMessage = "team not found"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new teams repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetUser retrieves a user by ID.
func (r *Repo) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT id, name, email, is_active, created_at FROM users WHERE id = $1`

	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound(userNotFoundMessage)
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListActiveUsers retrieves all active users ordered by name.
func (r *Repo) ListActiveUsers(ctx context.Context) ([]User, error) {
	query := `SELECT id, name, email, is_active, created_at FROM users WHERE is_active = true ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var results []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		results = append(results, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return results, nil
}

// GetTeam retrieves a team by ID.
func (r *Repo) GetTeam(ctx context.Context, id uuid.UUID) (Team, error) {
	query := `SELECT id, name, lead_id, created_at FROM teams WHERE id = $1`

	var t Team
	err := r.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.LeadID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Team{}, apperr.NotFound(teamNotFoundMessage)
		}
		return Team{}, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

// ListTeams retrieves all teams ordered by name.
func (r *Repo) ListTeams(ctx context.Context) ([]Team, error) {
	query := `SELECT id, name, lead_id, created_at FROM teams ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var results []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.LeadID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return results, nil
}

// TeamLead retrieves the lead of a team. A team without a lead reports not
// found so routing can fall through to its fallback.
func (r *Repo) TeamLead(ctx context.Context, teamID uuid.UUID) (User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.is_active, u.created_at
		FROM teams t
		JOIN users u ON u.id = t.lead_id
		WHERE t.id = $1 AND u.is_active = true`

	var u User
	err := r.pool.QueryRow(ctx, query, teamID).Scan(&u.ID, &u.Name, &u.Email, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("team has no active lead")
		}
		return User{}, fmt.Errorf("team lead: %w", err)
	}
	return u, nil
}

// AddRecordMember grants a user access to a record, upserting the level.
func (r *Repo) AddRecordMember(ctx context.Context, recordID, userID uuid.UUID, accessLevel string) error {
	query := `
		INSERT INTO record_team_members (record_id, user_id, access_level)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id, user_id) DO UPDATE SET access_level = EXCLUDED.access_level`

	if _, err := r.pool.Exec(ctx, query, recordID, userID, accessLevel); err != nil {
		return fmt.Errorf("add record member: %w", err)
	}
	return nil
}

// ListRecordMembers retrieves a record's team members.
func (r *Repo) ListRecordMembers(ctx context.Context, recordID uuid.UUID) ([]Member, error) {
	query := `
		SELECT record_id, user_id, access_level, added_at
		FROM record_team_members
		WHERE record_id = $1
		ORDER BY added_at ASC`

	rows, err := r.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("list record members: %w", err)
	}
	defer rows.Close()

	var results []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.RecordID, &m.UserID, &m.AccessLevel, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan record member: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record members: %w", err)
	}
	return results, nil
}
