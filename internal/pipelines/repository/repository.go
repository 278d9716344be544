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

const (
	pipelineNotFoundMessage = "pipeline not found"
	stageNotFoundMessage    = "stage not found"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new pipelines repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetPipeline retrieves a pipeline by its ID.
func (r *Repo) GetPipeline(ctx context.Context, id uuid.UUID) (Pipeline, error) {
	query := `
		SELECT id, module, name, is_default, created_at, updated_at
		FROM pipelines
		WHERE id = $1`

	var p Pipeline
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Module, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pipeline{}, apperr.NotFound(pipelineNotFoundMessage)
		}
		return Pipeline{}, fmt.Errorf("get pipeline: %w", err)
	}

	return p, nil
}

// ListPipelines retrieves all pipelines for a module ordered by name.
func (r *Repo) ListPipelines(ctx context.Context, module domain.Module) ([]Pipeline, error) {
	query := `
		SELECT id, module, name, is_default, created_at, updated_at
		FROM pipelines
		WHERE module = $1
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	return scanPipelines(rows)
}

// DefaultPipeline retrieves the default pipeline for a module.
func (r *Repo) DefaultPipeline(ctx context.Context, module domain.Module) (Pipeline, error) {
	query := `
		SELECT id, module, name, is_default, created_at, updated_at
		FROM pipelines
		WHERE module = $1 AND is_default = true`

	var p Pipeline
	err := r.pool.QueryRow(ctx, query, module).Scan(
		&p.ID, &p.Module, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pipeline{}, apperr.NotFound(pipelineNotFoundMessage)
		}
		return Pipeline{}, fmt.Errorf("default pipeline: %w", err)
	}

	return p, nil
}

// CreatePipeline creates a new pipeline. When IsDefault is set the previous
// default of the module is cleared in the same transaction.
func (r *Repo) CreatePipeline(ctx context.Context, params CreatePipelineParams) (Pipeline, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Pipeline{}, fmt.Errorf("create pipeline begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE pipelines SET is_default = false WHERE module = $1 AND is_default = true`, params.Module); err != nil {
			return Pipeline{}, fmt.Errorf("clear default pipeline: %w", err)
		}
	}

	query := `
		INSERT INTO pipelines (module, name, is_default)
		VALUES ($1, $2, $3)
		RETURNING id, module, name, is_default, created_at, updated_at`

	var p Pipeline
	err = tx.QueryRow(ctx, query, params.Module, params.Name, params.IsDefault).Scan(
		&p.ID, &p.Module, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Pipeline{}, apperr.Conflict("a pipeline with this name already exists")
		}
		return Pipeline{}, fmt.Errorf("create pipeline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Pipeline{}, fmt.Errorf("create pipeline commit: %w", err)
	}

	return p, nil
}

// UpdatePipeline updates an existing pipeline's name.
func (r *Repo) UpdatePipeline(ctx context.Context, params UpdatePipelineParams) (Pipeline, error) {
	query := `
		UPDATE pipelines SET
			name = COALESCE($2, name),
			updated_at = now()
		WHERE id = $1
		RETURNING id, module, name, is_default, created_at, updated_at`

	var p Pipeline
	err := r.pool.QueryRow(ctx, query, params.ID, params.Name).Scan(
		&p.ID, &p.Module, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pipeline{}, apperr.NotFound(pipelineNotFoundMessage)
		}
		if isUniqueViolation(err) {
			return Pipeline{}, apperr.Conflict("a pipeline with this name already exists")
		}
		return Pipeline{}, fmt.Errorf("update pipeline: %w", err)
	}

	return p, nil
}

// SetDefaultPipeline marks a pipeline default and clears the previous one.
func (r *Repo) SetDefaultPipeline(ctx context.Context, id uuid.UUID, module domain.Module) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set default begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE pipelines SET is_default = false WHERE module = $1 AND is_default = true`, module); err != nil {
		return fmt.Errorf("clear default pipeline: %w", err)
	}

	result, err := tx.Exec(ctx, `UPDATE pipelines SET is_default = true, updated_at = now() WHERE id = $1 AND module = $2`, id, module)
	if err != nil {
		return fmt.Errorf("set default pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(pipelineNotFoundMessage)
	}

	return tx.Commit(ctx)
}

// DeletePipeline removes a pipeline. Stage and requirement rows cascade.
func (r *Repo) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(pipelineNotFoundMessage)
	}
	return nil
}

// PipelineHasRecords checks whether any record references one of the
// pipeline's stages.
func (r *Repo) PipelineHasRecords(ctx context.Context, pipelineID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM records WHERE pipeline_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, pipelineID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pipeline records: %w", err)
	}

	return exists, nil
}

// GetStage retrieves a stage by its ID.
func (r *Repo) GetStage(ctx context.Context, id uuid.UUID) (Stage, error) {
	query := `
		SELECT id, pipeline_id, module, name, slug, color, sort_order,
			is_system, is_won, is_lost, lock_previous_fields
		FROM pipeline_stages
		WHERE id = $1`

	var s Stage
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.PipelineID, &s.Module, &s.Name, &s.Slug, &s.Color, &s.SortOrder,
		&s.IsSystem, &s.IsWon, &s.IsLost, &s.LockPreviousFields,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stage{}, apperr.NotFound(stageNotFoundMessage)
		}
		return Stage{}, fmt.Errorf("get stage: %w", err)
	}

	return s, nil
}

// ListStages retrieves all stages of a pipeline ordered by sort_order.
func (r *Repo) ListStages(ctx context.Context, pipelineID uuid.UUID) ([]Stage, error) {
	query := `
		SELECT id, pipeline_id, module, name, slug, color, sort_order,
			is_system, is_won, is_lost, lock_previous_fields
		FROM pipeline_stages
		WHERE pipeline_id = $1
		ORDER BY sort_order ASC`

	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var results []Stage
	for rows.Next() {
		var s Stage
		err := rows.Scan(
			&s.ID, &s.PipelineID, &s.Module, &s.Name, &s.Slug, &s.Color, &s.SortOrder,
			&s.IsSystem, &s.IsWon, &s.IsLost, &s.LockPreviousFields,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}

	return results, nil
}

// CreateStage appends a stage at the end of the pipeline's ordering.
func (r *Repo) CreateStage(ctx context.Context, params CreateStageParams) (Stage, error) {
	query := `
		INSERT INTO pipeline_stages (pipeline_id, module, name, slug, color, sort_order, is_won, is_lost, lock_previous_fields)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(sort_order), -1) + 1 FROM pipeline_stages WHERE pipeline_id = $1),
			$6, $7, $8)
		RETURNING id, pipeline_id, module, name, slug, color, sort_order,
			is_system, is_won, is_lost, lock_previous_fields`

	var s Stage
	err := r.pool.QueryRow(ctx, query,
		params.PipelineID, params.Module, params.Name, params.Slug, params.Color,
		params.IsWon, params.IsLost, params.LockPreviousFields,
	).Scan(
		&s.ID, &s.PipelineID, &s.Module, &s.Name, &s.Slug, &s.Color, &s.SortOrder,
		&s.IsSystem, &s.IsWon, &s.IsLost, &s.LockPreviousFields,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Stage{}, apperr.Conflict("a stage with this slug already exists in the pipeline")
		}
		return Stage{}, fmt.Errorf("create stage: %w", err)
	}

	return s, nil
}

// UpdateStage updates a stage's mutable attributes.
func (r *Repo) UpdateStage(ctx context.Context, params UpdateStageParams) (Stage, error) {
	query := `
		UPDATE pipeline_stages SET
			name = COALESCE($2, name),
			color = COALESCE($3, color),
			lock_previous_fields = COALESCE($4, lock_previous_fields)
		WHERE id = $1
		RETURNING id, pipeline_id, module, name, slug, color, sort_order,
			is_system, is_won, is_lost, lock_previous_fields`

	var s Stage
	err := r.pool.QueryRow(ctx, query, params.ID, params.Name, params.Color, params.LockPreviousFields).Scan(
		&s.ID, &s.PipelineID, &s.Module, &s.Name, &s.Slug, &s.Color, &s.SortOrder,
		&s.IsSystem, &s.IsWon, &s.IsLost, &s.LockPreviousFields,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stage{}, apperr.NotFound(stageNotFoundMessage)
		}
		return Stage{}, fmt.Errorf("update stage: %w", err)
	}

	return s, nil
}

// DeleteStage removes a stage and closes the sort_order gap it leaves.
func (r *Repo) DeleteStage(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete stage begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var pipelineID uuid.UUID
	var sortOrder int
	err = tx.QueryRow(ctx, `DELETE FROM pipeline_stages WHERE id = $1 RETURNING pipeline_id, sort_order`, id).Scan(&pipelineID, &sortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(stageNotFoundMessage)
		}
		return fmt.Errorf("delete stage: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE pipeline_stages SET sort_order = sort_order - 1 WHERE pipeline_id = $1 AND sort_order > $2`, pipelineID, sortOrder); err != nil {
		return fmt.Errorf("compact stage order: %w", err)
	}

	return tx.Commit(ctx)
}

// ReorderStages rewrites sort_order densely following orderedIDs.
func (r *Repo) ReorderStages(ctx context.Context, pipelineID uuid.UUID, orderedIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reorder stages begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Shift out of the way first so the unique (pipeline_id, sort_order)
	// constraint is not violated mid-rewrite.
	if _, err := tx.Exec(ctx, `UPDATE pipeline_stages SET sort_order = sort_order + 1000000 WHERE pipeline_id = $1`, pipelineID); err != nil {
		return fmt.Errorf("shift stage order: %w", err)
	}

	for index, id := range orderedIDs {
		result, err := tx.Exec(ctx, `UPDATE pipeline_stages SET sort_order = $3 WHERE id = $1 AND pipeline_id = $2`, id, pipelineID, index)
		if err != nil {
			return fmt.Errorf("reorder stage: %w", err)
		}
		if result.RowsAffected() == 0 {
			return apperr.NotFound(stageNotFoundMessage)
		}
	}

	return tx.Commit(ctx)
}

// ListFieldRequirements retrieves a stage's requirements in display order.
func (r *Repo) ListFieldRequirements(ctx context.Context, stageID uuid.UUID) ([]FieldRequirement, error) {
	query := `
		SELECT stage_id, field_key, field_label, is_required, display_order
		FROM stage_field_requirements
		WHERE stage_id = $1
		ORDER BY display_order ASC`

	rows, err := r.pool.Query(ctx, query, stageID)
	if err != nil {
		return nil, fmt.Errorf("list field requirements: %w", err)
	}
	defer rows.Close()

	var results []FieldRequirement
	for rows.Next() {
		var fr FieldRequirement
		if err := rows.Scan(&fr.StageID, &fr.FieldKey, &fr.FieldLabel, &fr.IsRequired, &fr.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan field requirement: %w", err)
		}
		results = append(results, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field requirements: %w", err)
	}

	return results, nil
}

// ReplaceFieldRequirements swaps the stage's requirement list atomically.
func (r *Repo) ReplaceFieldRequirements(ctx context.Context, stageID uuid.UUID, requirements []FieldRequirement) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace requirements begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM stage_field_requirements WHERE stage_id = $1`, stageID); err != nil {
		return fmt.Errorf("clear field requirements: %w", err)
	}

	for index, fr := range requirements {
		_, err := tx.Exec(ctx, `
			INSERT INTO stage_field_requirements (stage_id, field_key, field_label, is_required, display_order)
			VALUES ($1, $2, $3, $4, $5)`,
			stageID, fr.FieldKey, fr.FieldLabel, fr.IsRequired, index,
		)
		if err != nil {
			return fmt.Errorf("insert field requirement: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanPipelines(rows pgx.Rows) ([]Pipeline, error) {
	var results []Pipeline
	for rows.Next() {
		var p Pipeline
		if err := rows.Scan(&p.ID, &p.Module, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	return results, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
