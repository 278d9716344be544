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
	recordNotFoundMessage = "record not found"
	versionConflictMessage = "record was modified concurrently"
)

const recordColumns = `id, module, pipeline_id, stage_id, name, company, email, phone, source, value,
	owner_id, created_by, score, score_breakdown, priority_id, qualification, custom_fields,
	converted_at, disqualified_at, won_at, lost_at, version, created_at, updated_at`

// Repo implements the Repository interface with PostgreSQL. The score
// breakdown, qualification, and custom field maps live in JSONB columns.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new records repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// Get retrieves a record by ID.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, apperr.NotFound(recordNotFoundMessage)
		}
		return domain.Record{}, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// List retrieves a filtered page of records plus the total count.
func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Record, int, error) {
	where := `WHERE module = $1`
	args := []any{params.Module}

	if params.StageID != nil {
		args = append(args, *params.StageID)
		where += fmt.Sprintf(` AND stage_id = $%d`, len(args))
	}
	if params.OwnerID != nil {
		args = append(args, *params.OwnerID)
		where += fmt.Sprintf(` AND owner_id = $%d`, len(args))
	}
	if params.PriorityID != nil {
		args = append(args, *params.PriorityID)
		where += fmt.Sprintf(` AND priority_id = $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	limit := params.Limit
	if limit < 1 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, params.Offset)
	query := fmt.Sprintf(`SELECT %s FROM records %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Create inserts a record.
func (r *Repo) Create(ctx context.Context, record *domain.Record) (domain.Record, error) {
	breakdown, qualification, custom, err := encodeMaps(record)
	if err != nil {
		return domain.Record{}, err
	}

	query := `
		INSERT INTO records (module, pipeline_id, stage_id, name, company, email, phone, source, value,
			owner_id, created_by, score, score_breakdown, priority_id, qualification, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + recordColumns

	created, err := scanRecord(r.pool.QueryRow(ctx, query,
		record.Module, record.PipelineID, record.StageID, record.Name,
		record.Company, record.Email, record.Phone, record.Source, record.Value,
		record.OwnerID, record.CreatedBy, record.Score, breakdown, record.PriorityID,
		qualification, custom,
	))
	if err != nil {
		return domain.Record{}, fmt.Errorf("create record: %w", err)
	}
	return created, nil
}

// Update persists the record's mutable state under the version guard.
func (r *Repo) Update(ctx context.Context, record *domain.Record) (domain.Record, error) {
	breakdown, qualification, custom, err := encodeMaps(record)
	if err != nil {
		return domain.Record{}, err
	}

	query := `
		UPDATE records SET
			stage_id = $3, name = $4, company = $5, email = $6, phone = $7, source = $8, value = $9,
			owner_id = $10, score = $11, score_breakdown = $12, priority_id = $13,
			qualification = $14, custom_fields = $15,
			converted_at = $16, disqualified_at = $17, won_at = $18, lost_at = $19,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + recordColumns

	updated, err := scanRecord(r.pool.QueryRow(ctx, query,
		record.ID, record.Version,
		record.StageID, record.Name, record.Company, record.Email, record.Phone,
		record.Source, record.Value, record.OwnerID, record.Score, breakdown,
		record.PriorityID, qualification, custom,
		record.ConvertedAt, record.DisqualifiedAt, record.WonAt, record.LostAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, r.versionOrNotFound(ctx, record.ID)
		}
		return domain.Record{}, fmt.Errorf("update record: %w", err)
	}
	return updated, nil
}

// UpdateScore writes only the scoring outcome under the version guard.
func (r *Repo) UpdateScore(ctx context.Context, id uuid.UUID, version int, score int, breakdown map[string]int, priorityID *uuid.UUID) error {
	if breakdown == nil {
		breakdown = map[string]int{}
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE records SET score = $3, score_breakdown = $4, priority_id = $5,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`,
		id, version, score, breakdownJSON, priorityID,
	)
	if err != nil {
		return fmt.Errorf("update record score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.versionOrNotFound(ctx, id)
	}
	return nil
}

// ListScoringPage returns records strictly after afterID in ID order.
func (r *Repo) ListScoringPage(ctx context.Context, module domain.Module, afterID uuid.UUID, limit int) ([]domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE module = $1 AND id > $2 ORDER BY id ASC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, module, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("scoring page: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FindDuplicate looks for a live record of the module sharing the email or
// phone.
func (r *Repo) FindDuplicate(ctx context.Context, module domain.Module, email, phone *string) (*domain.Record, error) {
	if email == nil && phone == nil {
		return nil, nil
	}

	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE module = $1
		  AND converted_at IS NULL AND disqualified_at IS NULL AND won_at IS NULL AND lost_at IS NULL
		  AND (($2::text IS NOT NULL AND email = $2) OR ($3::text IS NOT NULL AND phone = $3))
		ORDER BY created_at ASC
		LIMIT 1`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, module, email, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return &record, nil
}

// AddAudit appends an entry to the record's trail.
func (r *Repo) AddAudit(ctx context.Context, entry AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	query := `
		INSERT INTO record_audit (record_id, action, actor_id, from_stage_id, to_stage_id, reason, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.pool.Exec(ctx, query,
		entry.RecordID, entry.Action, entry.ActorID,
		entry.FromStageID, entry.ToStageID, entry.Reason, detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("add audit: %w", err)
	}
	return nil
}

// ListAudit retrieves a record's trail, newest first.
func (r *Repo) ListAudit(ctx context.Context, recordID uuid.UUID) ([]AuditEntry, error) {
	query := `
		SELECT id, record_id, action, actor_id, from_stage_id, to_stage_id, reason, details, created_at
		FROM record_audit
		WHERE record_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var results []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var detailsJSON []byte
		err := rows.Scan(
			&entry.ID, &entry.RecordID, &entry.Action, &entry.ActorID,
			&entry.FromStageID, &entry.ToStageID, &entry.Reason, &detailsJSON, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return results, nil
}

// versionOrNotFound distinguishes a stale version from a missing record
// after a guarded update touched zero rows.
func (r *Repo) versionOrNotFound(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM records WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check record: %w", err)
	}
	if !exists {
		return apperr.NotFound(recordNotFoundMessage)
	}
	return apperr.Conflict(versionConflictMessage)
}

func encodeMaps(record *domain.Record) ([]byte, []byte, []byte, error) {
	breakdown := record.ScoreBreakdown
	if breakdown == nil {
		breakdown = map[string]int{}
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode breakdown: %w", err)
	}

	qualification := record.Qualification
	if qualification == nil {
		qualification = map[string]any{}
	}
	qualificationJSON, err := json.Marshal(qualification)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode qualification: %w", err)
	}

	custom := record.CustomFields
	if custom == nil {
		custom = map[string]any{}
	}
	customJSON, err := json.Marshal(custom)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode custom fields: %w", err)
	}

	return breakdownJSON, qualificationJSON, customJSON, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var record domain.Record
	var breakdownJSON, qualificationJSON, customJSON []byte
	err := row.Scan(
		&record.ID, &record.Module, &record.PipelineID, &record.StageID, &record.Name,
		&record.Company, &record.Email, &record.Phone, &record.Source, &record.Value,
		&record.OwnerID, &record.CreatedBy, &record.Score, &breakdownJSON, &record.PriorityID,
		&qualificationJSON, &customJSON,
		&record.ConvertedAt, &record.DisqualifiedAt, &record.WonAt, &record.LostAt,
		&record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return domain.Record{}, err
	}
	if err := json.Unmarshal(breakdownJSON, &record.ScoreBreakdown); err != nil {
		return domain.Record{}, fmt.Errorf("decode breakdown: %w", err)
	}
	if err := json.Unmarshal(qualificationJSON, &record.Qualification); err != nil {
		return domain.Record{}, fmt.Errorf("decode qualification: %w", err)
	}
	if err := json.Unmarshal(customJSON, &record.CustomFields); err != nil {
		return domain.Record{}, fmt.Errorf("decode custom fields: %w", err)
	}
	return record, nil
}

func scanRecords(rows pgx.Rows) ([]domain.Record, error) {
	var results []domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return results, nil
}
