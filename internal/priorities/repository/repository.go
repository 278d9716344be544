package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/platform/apperr"
)

const priorityNotFoundMessage = "priority not found"

const priorityColumns = `id, module, name, color, min_score, max_score, sort_order, is_default, is_active, created_at, updated_at`

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new priorities repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// Get retrieves a priority by its ID.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Priority, error) {
	query := `SELECT ` + priorityColumns + ` FROM priorities WHERE id = $1`

	p, err := scanPriority(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Priority{}, apperr.NotFound(priorityNotFoundMessage)
		}
		return Priority{}, fmt.Errorf("get priority: %w", err)
	}

	return p, nil
}

// List retrieves all priorities for a module ordered by sort_order.
func (r *Repo) List(ctx context.Context, module domain.Module) ([]Priority, error) {
	query := `SELECT ` + priorityColumns + ` FROM priorities WHERE module = $1 ORDER BY sort_order ASC`

	rows, err := r.pool.Query(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("list priorities: %w", err)
	}
	defer rows.Close()

	var results []Priority
	for rows.Next() {
		p, err := scanPriority(rows)
		if err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priorities: %w", err)
	}

	return results, nil
}

// Create creates a new priority. When IsDefault is set the previous default
// of the module is cleared in the same transaction.
func (r *Repo) Create(ctx context.Context, params CreateParams) (Priority, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Priority{}, fmt.Errorf("create priority begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE priorities SET is_default = false WHERE module = $1 AND is_default = true`, params.Module); err != nil {
			return Priority{}, fmt.Errorf("clear default priority: %w", err)
		}
	}

	query := `
		INSERT INTO priorities (module, name, color, min_score, max_score, sort_order, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + priorityColumns

	p, err := scanPriority(tx.QueryRow(ctx, query,
		params.Module, params.Name, params.Color, params.MinScore, params.MaxScore,
		params.SortOrder, params.IsDefault,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return Priority{}, apperr.Conflict("a priority with this name already exists")
		}
		return Priority{}, fmt.Errorf("create priority: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Priority{}, fmt.Errorf("create priority commit: %w", err)
	}

	return p, nil
}

// Update updates a priority. Nil score bounds are only written when the
// corresponding Set flag is raised.
func (r *Repo) Update(ctx context.Context, params UpdateParams) (Priority, error) {
	query := `
		UPDATE priorities SET
			name = COALESCE($2, name),
			color = COALESCE($3, color),
			min_score = CASE WHEN $4 THEN $5 ELSE min_score END,
			max_score = CASE WHEN $6 THEN $7 ELSE max_score END,
			sort_order = COALESCE($8, sort_order),
			is_active = COALESCE($9, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + priorityColumns

	p, err := scanPriority(r.pool.QueryRow(ctx, query,
		params.ID, params.Name, params.Color,
		params.SetMinScore, params.MinScore,
		params.SetMaxScore, params.MaxScore,
		params.SortOrder, params.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Priority{}, apperr.NotFound(priorityNotFoundMessage)
		}
		if isUniqueViolation(err) {
			return Priority{}, apperr.Conflict("a priority with this name already exists")
		}
		return Priority{}, fmt.Errorf("update priority: %w", err)
	}

	return p, nil
}

// Delete removes a priority. Records referencing it keep a dangling nil
// priority until the next rescore.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete priority begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE records SET priority_id = NULL WHERE priority_id = $1`, id); err != nil {
		return fmt.Errorf("detach priority: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM priorities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete priority: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(priorityNotFoundMessage)
	}

	return tx.Commit(ctx)
}

// SetDefault marks a priority default and clears the previous one.
func (r *Repo) SetDefault(ctx context.Context, id uuid.UUID, module domain.Module) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set default begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE priorities SET is_default = false WHERE module = $1 AND is_default = true`, module); err != nil {
		return fmt.Errorf("clear default priority: %w", err)
	}

	result, err := tx.Exec(ctx, `UPDATE priorities SET is_default = true, updated_at = now() WHERE id = $1 AND module = $2`, id, module)
	if err != nil {
		return fmt.Errorf("set default priority: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(priorityNotFoundMessage)
	}

	return tx.Commit(ctx)
}

func scanPriority(row pgx.Row) (Priority, error) {
	var p Priority
	err := row.Scan(
		&p.ID, &p.Module, &p.Name, &p.Color, &p.MinScore, &p.MaxScore,
		&p.SortOrder, &p.IsDefault, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
