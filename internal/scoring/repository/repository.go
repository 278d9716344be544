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

const (
	templateNotFoundMessage = "score template not found"
	ruleNotFoundMessage     = "score rule not found"
	jobNotFoundMessage      = "rescore job not found"
)

const templateColumns = `id, module, name, max_score, is_active, created_at, updated_at`
const ruleColumns = `id, template_id, name, field_key, operator, value, points, sort_order, is_active, created_at, updated_at`
const jobColumns = `id, module, status, processed, skipped, cancel_requested, requested_by, started_at, finished_at, created_at`

// Repo implements the Repository interface with PostgreSQL. Rule comparands
// are stored as JSONB and round-trip through the rules.Value codec.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new scoring repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetTemplate retrieves a template by its ID.
func (r *Repo) GetTemplate(ctx context.Context, id uuid.UUID) (Template, error) {
	query := `SELECT ` + templateColumns + ` FROM score_templates WHERE id = $1`

	t, err := scanTemplate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		return Template{}, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListTemplates retrieves all templates for a module ordered by name.
func (r *Repo) ListTemplates(ctx context.Context, module domain.Module) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM score_templates WHERE module = $1 ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var results []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return results, nil
}

// ActiveTemplate retrieves the module's active template.
func (r *Repo) ActiveTemplate(ctx context.Context, module domain.Module) (Template, error) {
	query := `SELECT ` + templateColumns + ` FROM score_templates WHERE module = $1 AND is_active = true`

	t, err := scanTemplate(r.pool.QueryRow(ctx, query, module))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		return Template{}, fmt.Errorf("active template: %w", err)
	}
	return t, nil
}

// CreateTemplate creates a template. When IsActive is set the previous
// active template of the module is deactivated in the same transaction.
func (r *Repo) CreateTemplate(ctx context.Context, params CreateTemplateParams) (Template, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Template{}, fmt.Errorf("create template begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IsActive {
		if _, err := tx.Exec(ctx, `UPDATE score_templates SET is_active = false WHERE module = $1 AND is_active = true`, params.Module); err != nil {
			return Template{}, fmt.Errorf("deactivate templates: %w", err)
		}
	}

	query := `
		INSERT INTO score_templates (module, name, max_score, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + templateColumns

	t, err := scanTemplate(tx.QueryRow(ctx, query, params.Module, params.Name, params.MaxScore, params.IsActive))
	if err != nil {
		if isUniqueViolation(err) {
			return Template{}, apperr.Conflict("a template with this name already exists")
		}
		return Template{}, fmt.Errorf("create template: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Template{}, fmt.Errorf("create template commit: %w", err)
	}
	return t, nil
}

// UpdateTemplate updates a template's name and max score.
func (r *Repo) UpdateTemplate(ctx context.Context, params UpdateTemplateParams) (Template, error) {
	query := `
		UPDATE score_templates SET
			name = COALESCE($2, name),
			max_score = COALESCE($3, max_score),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + templateColumns

	t, err := scanTemplate(r.pool.QueryRow(ctx, query, params.ID, params.Name, params.MaxScore))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		return Template{}, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// DeleteTemplate removes a template. Rule rows cascade.
func (r *Repo) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM score_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(templateNotFoundMessage)
	}
	return nil
}

// ActivateTemplate makes a template active and deactivates its siblings.
func (r *Repo) ActivateTemplate(ctx context.Context, id uuid.UUID, module domain.Module) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("activate template begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE score_templates SET is_active = false WHERE module = $1 AND is_active = true`, module); err != nil {
		return fmt.Errorf("deactivate templates: %w", err)
	}

	result, err := tx.Exec(ctx, `UPDATE score_templates SET is_active = true, updated_at = now() WHERE id = $1 AND module = $2`, id, module)
	if err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(templateNotFoundMessage)
	}

	return tx.Commit(ctx)
}

// GetRule retrieves a rule by its ID.
func (r *Repo) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM score_rules WHERE id = $1`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// ListRules retrieves a template's rules ordered by sort_order.
func (r *Repo) ListRules(ctx context.Context, templateID uuid.UUID) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM score_rules WHERE template_id = $1 ORDER BY sort_order ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var results []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		results = append(results, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return results, nil
}

// CreateRule creates a rule with its JSONB comparand.
func (r *Repo) CreateRule(ctx context.Context, params CreateRuleParams) (Rule, error) {
	valueJSON, err := json.Marshal(params.Value)
	if err != nil {
		return Rule{}, fmt.Errorf("encode rule value: %w", err)
	}

	query := `
		INSERT INTO score_rules (template_id, name, field_key, operator, value, points, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + ruleColumns

	rule, err := scanRule(r.pool.QueryRow(ctx, query,
		params.TemplateID, params.Name, params.FieldKey, params.Operator,
		valueJSON, params.Points, params.SortOrder,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Rule{}, apperr.NotFound(templateNotFoundMessage)
		}
		return Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return rule, nil
}

// UpdateRule updates a rule. The comparand is only rewritten when SetValue
// is raised.
func (r *Repo) UpdateRule(ctx context.Context, params UpdateRuleParams) (Rule, error) {
	var valueJSON []byte
	if params.SetValue {
		encoded, err := json.Marshal(params.Value)
		if err != nil {
			return Rule{}, fmt.Errorf("encode rule value: %w", err)
		}
		valueJSON = encoded
	}

	query := `
		UPDATE score_rules SET
			name = COALESCE($2, name),
			field_key = COALESCE($3, field_key),
			operator = COALESCE($4, operator),
			value = CASE WHEN $5 THEN $6::jsonb ELSE value END,
			points = COALESCE($7, points),
			sort_order = COALESCE($8, sort_order),
			is_active = COALESCE($9, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + ruleColumns

	rule, err := scanRule(r.pool.QueryRow(ctx, query,
		params.ID, params.Name, params.FieldKey, params.Operator,
		params.SetValue, valueJSON, params.Points, params.SortOrder, params.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule.
func (r *Repo) DeleteRule(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM score_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(ruleNotFoundMessage)
	}
	return nil
}

// CreateJob records a pending rescore run.
func (r *Repo) CreateJob(ctx context.Context, module domain.Module, requestedBy uuid.UUID) (Job, error) {
	query := `
		INSERT INTO rescore_jobs (module, status, requested_by)
		VALUES ($1, $2, $3)
		RETURNING ` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, query, module, JobStatusPending, requestedBy))
	if err != nil {
		return Job{}, fmt.Errorf("create rescore job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a rescore job by its ID.
func (r *Repo) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM rescore_jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, apperr.NotFound(jobNotFoundMessage)
		}
		return Job{}, fmt.Errorf("get rescore job: %w", err)
	}
	return job, nil
}

// MarkJobRunning transitions a pending job to running. Running it twice is a
// no-op so asynq retries stay idempotent.
func (r *Repo) MarkJobRunning(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE rescore_jobs SET status = $2, started_at = COALESCE(started_at, now())
		WHERE id = $1 AND status IN ($3, $2)`,
		id, JobStatusRunning, JobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.Conflict("rescore job is not runnable")
	}
	return nil
}

// UpdateJobProgress persists counters between pages.
func (r *Repo) UpdateJobProgress(ctx context.Context, id uuid.UUID, processed, skipped int) error {
	_, err := r.pool.Exec(ctx, `UPDATE rescore_jobs SET processed = $2, skipped = $3 WHERE id = $1`, id, processed, skipped)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FinishJob records the terminal status and final counters.
func (r *Repo) FinishJob(ctx context.Context, id uuid.UUID, status string, processed, skipped int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rescore_jobs SET status = $2, processed = $3, skipped = $4, finished_at = now()
		WHERE id = $1`,
		id, status, processed, skipped,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// RequestCancel raises the cancel flag. The batch loop checks it between
// pages, so cancellation is not immediate.
func (r *Repo) RequestCancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE rescore_jobs SET cancel_requested = true
		WHERE id = $1 AND status IN ($2, $3)`,
		id, JobStatusPending, JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.Conflict("rescore job is not cancellable")
	}
	return nil
}

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Module, &t.Name, &t.MaxScore, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	var valueJSON []byte
	err := row.Scan(
		&rule.ID, &rule.TemplateID, &rule.Name, &rule.FieldKey, &rule.Operator,
		&valueJSON, &rule.Points, &rule.SortOrder, &rule.IsActive,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return Rule{}, err
	}
	if err := json.Unmarshal(valueJSON, &rule.Value); err != nil {
		return Rule{}, fmt.Errorf("decode rule value: %w", err)
	}
	return rule, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var job Job
	err := row.Scan(
		&job.ID, &job.Module, &job.Status, &job.Processed, &job.Skipped,
		&job.CancelRequested, &job.RequestedBy, &job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)
	return job, err
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23503"
	}
	return false
}
