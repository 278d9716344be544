package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/platform/apperr"
)

const ruleNotFoundMessage = "routing rule not found"

const ruleColumns = `id, module, name, priority, is_active, conditions, assignment_type, assignee_id, team_id, pool, round_robin_index, created_at, updated_at`

// Repo implements the Repository interface with PostgreSQL. Conditions and
// the assignment pool are stored as JSONB.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new routing repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// Get retrieves a rule by ID.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM routing_rules WHERE id = $1`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return Rule{}, fmt.Errorf("get routing rule: %w", err)
	}
	return rule, nil
}

// List retrieves all rules for a module in ascending priority.
func (r *Repo) List(ctx context.Context, module domain.Module) ([]Rule, error) {
	return r.list(ctx, module, false)
}

// ListActive retrieves the module's active rules in ascending priority.
func (r *Repo) ListActive(ctx context.Context, module domain.Module) ([]Rule, error) {
	return r.list(ctx, module, true)
}

func (r *Repo) list(ctx context.Context, module domain.Module, activeOnly bool) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM routing_rules WHERE module = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY priority ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer rows.Close()

	var results []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routing rule: %w", err)
		}
		results = append(results, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routing rules: %w", err)
	}
	return results, nil
}

// Create creates a routing rule.
func (r *Repo) Create(ctx context.Context, params CreateParams) (Rule, error) {
	conditionsJSON, poolJSON, err := encodeCollections(params.Conditions, params.Pool)
	if err != nil {
		return Rule{}, err
	}

	query := `
		INSERT INTO routing_rules (module, name, priority, conditions, assignment_type, assignee_id, team_id, pool)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + ruleColumns

	rule, err := scanRule(r.pool.QueryRow(ctx, query,
		params.Module, params.Name, params.Priority, conditionsJSON,
		params.AssignmentType, params.AssigneeID, params.TeamID, poolJSON,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return Rule{}, apperr.Conflict("a routing rule with this name already exists")
		}
		return Rule{}, fmt.Errorf("create routing rule: %w", err)
	}
	return rule, nil
}

// Update updates a routing rule.
func (r *Repo) Update(ctx context.Context, params UpdateParams) (Rule, error) {
	conditionsJSON, poolJSON, err := encodeCollections(params.Conditions, params.Pool)
	if err != nil {
		return Rule{}, err
	}

	query := `
		UPDATE routing_rules SET
			name = COALESCE($2, name),
			priority = COALESCE($3, priority),
			is_active = COALESCE($4, is_active),
			conditions = CASE WHEN $5 THEN $6::jsonb ELSE conditions END,
			assignment_type = COALESCE($7, assignment_type),
			assignee_id = CASE WHEN $8 THEN $9 ELSE assignee_id END,
			team_id = CASE WHEN $10 THEN $11 ELSE team_id END,
			pool = CASE WHEN $12 THEN $13::jsonb ELSE pool END,
			round_robin_index = CASE WHEN $14 THEN 0 ELSE round_robin_index END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + ruleColumns

	rule, err := scanRule(r.pool.QueryRow(ctx, query,
		params.ID, params.Name, params.Priority, params.IsActive,
		params.SetConditions, conditionsJSON,
		params.AssignmentType,
		params.SetAssigneeID, params.AssigneeID,
		params.SetTeamID, params.TeamID,
		params.SetPool, poolJSON,
		params.ResetRobinCounter,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return Rule{}, fmt.Errorf("update routing rule: %w", err)
	}
	return rule, nil
}

// Delete removes a routing rule.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete routing rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(ruleNotFoundMessage)
	}
	return nil
}

// RoundRobinIndex reads the rule's rotation counter.
func (r *Repo) RoundRobinIndex(ctx context.Context, ruleID uuid.UUID) (int, error) {
	var index int
	err := r.pool.QueryRow(ctx, `SELECT round_robin_index FROM routing_rules WHERE id = $1`, ruleID).Scan(&index)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound(ruleNotFoundMessage)
		}
		return 0, fmt.Errorf("round robin index: %w", err)
	}
	return index, nil
}

// ClaimRoundRobinSlot advances the counter with a compare-and-set so two
// concurrent intakes never land on the same slot.
func (r *Repo) ClaimRoundRobinSlot(ctx context.Context, ruleID uuid.UUID, expected, next int) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE routing_rules SET round_robin_index = $3
		WHERE id = $1 AND round_robin_index = $2`,
		ruleID, expected, next,
	)
	if err != nil {
		return false, fmt.Errorf("claim round robin slot: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func encodeCollections(conditions []Condition, pool []PoolMember) ([]byte, []byte, error) {
	if conditions == nil {
		conditions = []Condition{}
	}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	if pool == nil {
		pool = []PoolMember{}
	}
	poolJSON, err := json.Marshal(pool)
	if err != nil {
		return nil, nil, fmt.Errorf("encode pool: %w", err)
	}
	return conditionsJSON, poolJSON, nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	var conditionsJSON, poolJSON []byte
	err := row.Scan(
		&rule.ID, &rule.Module, &rule.Name, &rule.Priority, &rule.IsActive,
		&conditionsJSON, &rule.AssignmentType, &rule.AssigneeID, &rule.TeamID,
		&poolJSON, &rule.RoundRobinIndex, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return Rule{}, err
	}
	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return Rule{}, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal(poolJSON, &rule.Pool); err != nil {
		return Rule{}, fmt.Errorf("decode pool: %w", err)
	}
	return rule, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
