// Package service implements score template and rule management plus the
// paged rescore-all batch.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/internal/scoring/engine"
	"salesdesk_backend/internal/scoring/repository"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
)

// rescoreParallelism caps the in-flight score evaluations within one page.
const rescoreParallelism = 4

// RecordPage is one slice of a module's records ordered by ID, the cursor
// for the next page being the last ID of the previous one.
type RecordStore interface {
	ListScoringPage(ctx context.Context, module domain.Module, afterID uuid.UUID, limit int) ([]domain.Record, error)
	// UpdateScore writes the scoring outcome guarded by the record version.
	UpdateScore(ctx context.Context, id uuid.UUID, version int, score int, breakdown map[string]int, priorityID *uuid.UUID) error
}

// PriorityResolver maps a fresh score to a priority band.
type PriorityResolver interface {
	ResolvePriorityID(ctx context.Context, module domain.Module, score int) (*uuid.UUID, error)
}

// Enqueuer hands a rescore job to the background worker.
type Enqueuer interface {
	EnqueueRescore(ctx context.Context, jobID uuid.UUID, module domain.Module) error
}

// Service exposes scoring operations.
type Service struct {
	repo     repository.Repository
	records  RecordStore
	resolver PriorityResolver
	enqueuer Enqueuer
	pageSize int
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new scoring service.
func New(repo repository.Repository, records RecordStore, resolver PriorityResolver, enqueuer Enqueuer, pageSize int, log *logger.Logger) *Service {
	if pageSize < 1 {
		pageSize = 200
	}
	return &Service{
		repo:     repo,
		records:  records,
		resolver: resolver,
		enqueuer: enqueuer,
		pageSize: pageSize,
		log:      log,
		now:      time.Now,
	}
}

// =============================================================================
// Scoring
// =============================================================================

// Score runs the module's active template against a field view. Without an
// active template the result is zero with an empty breakdown.
func (s *Service) Score(ctx context.Context, module domain.Module, fields rules.Fields) (engine.Result, error) {
	template, err := s.repo.ActiveTemplate(ctx, module)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return engine.Result{Breakdown: map[string]int{}}, nil
		}
		return engine.Result{}, err
	}

	ruleSet, err := s.repo.ListRules(ctx, template.ID)
	if err != nil {
		return engine.Result{}, err
	}

	return engine.Evaluate(ruleSet, template.MaxScore, fields, s.now()), nil
}

// =============================================================================
// Template CRUD
// =============================================================================

// GetTemplate returns a template.
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (repository.Template, error) {
	return s.repo.GetTemplate(ctx, id)
}

// ListTemplates returns the module's templates.
func (s *Service) ListTemplates(ctx context.Context, module domain.Module) ([]repository.Template, error) {
	if !domain.IsValidModule(module) {
		return nil, apperr.Validation("unknown module")
	}
	return s.repo.ListTemplates(ctx, module)
}

// CreateTemplate creates a template.
func (s *Service) CreateTemplate(ctx context.Context, params repository.CreateTemplateParams) (repository.Template, error) {
	if !domain.IsValidModule(params.Module) {
		return repository.Template{}, apperr.Validation("unknown module")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return repository.Template{}, apperr.Validation("template name is required")
	}
	if params.MaxScore <= 0 {
		params.MaxScore = engine.DefaultMaxScore
	}
	return s.repo.CreateTemplate(ctx, params)
}

// UpdateTemplate updates a template's name and cap. Activation goes through
// ActivateTemplate so the module keeps a single active template.
func (s *Service) UpdateTemplate(ctx context.Context, params repository.UpdateTemplateParams) (repository.Template, error) {
	current, err := s.repo.GetTemplate(ctx, params.ID)
	if err != nil {
		return repository.Template{}, err
	}

	if params.Name != nil {
		trimmed := strings.TrimSpace(*params.Name)
		if trimmed == "" {
			return repository.Template{}, apperr.Validation("template name is required")
		}
		params.Name = &trimmed
	}
	if params.MaxScore != nil && *params.MaxScore <= 0 {
		return repository.Template{}, apperr.Validation("maxScore must be positive")
	}
	if params.IsActive != nil && !*params.IsActive && current.IsActive {
		return repository.Template{}, apperr.Validation("cannot deactivate the active template directly")
	}

	updated, err := s.repo.UpdateTemplate(ctx, params)
	if err != nil {
		return repository.Template{}, err
	}

	if params.IsActive != nil && *params.IsActive && !current.IsActive {
		if err := s.repo.ActivateTemplate(ctx, params.ID, current.Module); err != nil {
			return repository.Template{}, err
		}
		updated.IsActive = true
	}

	return updated, nil
}

// DeleteTemplate removes a template. The active template cannot be deleted.
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if template.IsActive {
		return apperr.Conflict("cannot delete the active template")
	}
	return s.repo.DeleteTemplate(ctx, id)
}

// =============================================================================
// Rule CRUD
// =============================================================================

// ListRules returns a template's rules in evaluation order.
func (s *Service) ListRules(ctx context.Context, templateID uuid.UUID) ([]repository.Rule, error) {
	if _, err := s.repo.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.repo.ListRules(ctx, templateID)
}

// CreateRule creates a rule. The operator must be known and the comparand
// must fit it; a rule that can never evaluate is rejected up front.
func (s *Service) CreateRule(ctx context.Context, params repository.CreateRuleParams) (repository.Rule, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return repository.Rule{}, apperr.Validation("rule name is required")
	}
	if strings.TrimSpace(params.FieldKey) == "" {
		return repository.Rule{}, apperr.Validation("field key is required")
	}
	if err := params.Value.ValidateForOperator(params.Operator); err != nil {
		return repository.Rule{}, err
	}
	return s.repo.CreateRule(ctx, params)
}

// UpdateRule updates a rule, revalidating the operator and comparand pair
// that will be in effect after the update.
func (s *Service) UpdateRule(ctx context.Context, params repository.UpdateRuleParams) (repository.Rule, error) {
	current, err := s.repo.GetRule(ctx, params.ID)
	if err != nil {
		return repository.Rule{}, err
	}

	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		return repository.Rule{}, apperr.Validation("rule name is required")
	}
	if params.FieldKey != nil && strings.TrimSpace(*params.FieldKey) == "" {
		return repository.Rule{}, apperr.Validation("field key is required")
	}

	operator := current.Operator
	if params.Operator != nil {
		operator = *params.Operator
	}
	value := current.Value
	if params.SetValue {
		value = params.Value
	}
	if err := value.ValidateForOperator(operator); err != nil {
		return repository.Rule{}, err
	}

	return s.repo.UpdateRule(ctx, params)
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRule(ctx, id)
}

// =============================================================================
// Rescore batch
// =============================================================================

// RequestRescore records a rescore job and enqueues it for the worker. The
// caller gets the job back immediately; progress is polled via GetJob.
func (s *Service) RequestRescore(ctx context.Context, module domain.Module, requestedBy uuid.UUID) (repository.Job, error) {
	if !domain.IsValidModule(module) {
		return repository.Job{}, apperr.Validation("unknown module")
	}

	job, err := s.repo.CreateJob(ctx, module, requestedBy)
	if err != nil {
		return repository.Job{}, err
	}

	if err := s.enqueuer.EnqueueRescore(ctx, job.ID, module); err != nil {
		_ = s.repo.FinishJob(ctx, job.ID, repository.JobStatusFailed, 0, 0)
		return repository.Job{}, fmt.Errorf("enqueue rescore: %w", err)
	}

	return job, nil
}

// RequestRescoreForTemplate enqueues a rescore for the module a template
// belongs to. The template only selects the module; the batch always runs
// against whichever template is active when the worker picks the job up.
func (s *Service) RequestRescoreForTemplate(ctx context.Context, templateID, requestedBy uuid.UUID) (repository.Job, error) {
	template, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return repository.Job{}, err
	}
	return s.RequestRescore(ctx, template.Module, requestedBy)
}

// GetJob returns a rescore job with its counters.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (repository.Job, error) {
	return s.repo.GetJob(ctx, id)
}

// CancelJob raises the job's cancel flag.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) error {
	return s.repo.RequestCancel(ctx, id)
}

// RunRescore executes a rescore job: pages through the module's records by
// ID cursor, re-evaluates each against the active template, and resolves
// the priority band. A record that fails to score or store is skipped and
// counted, never aborting the batch. The cancel flag is honored between
// pages. Re-running a finished job re-scores from scratch, which lands on
// the same result, so asynq retries are safe.
func (s *Service) RunRescore(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := s.repo.MarkJobRunning(ctx, jobID); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Already finished by an earlier delivery.
			return nil
		}
		return err
	}

	processed, skipped := 0, 0
	cursor := uuid.Nil

	for {
		current, err := s.repo.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if current.CancelRequested {
			s.log.Info("rescore cancelled", "jobId", jobID, "processed", processed, "skipped", skipped)
			return s.repo.FinishJob(ctx, jobID, repository.JobStatusCancelled, processed, skipped)
		}

		page, err := s.records.ListScoringPage(ctx, job.Module, cursor, s.pageSize)
		if err != nil {
			_ = s.repo.FinishJob(ctx, jobID, repository.JobStatusFailed, processed, skipped)
			return fmt.Errorf("rescore page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		cursor = page[len(page)-1].ID

		var pageProcessed, pageSkipped atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(rescoreParallelism)
		for i := range page {
			record := &page[i]
			if record.IsTerminal() {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := s.rescoreOne(gctx, record); err != nil {
					pageSkipped.Add(1)
					s.log.Warn("rescore record skipped", "jobId", jobID, "recordId", record.ID, "error", err)
					return nil
				}
				pageProcessed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			_ = s.repo.FinishJob(ctx, jobID, repository.JobStatusFailed, processed, skipped)
			return fmt.Errorf("rescore page: %w", err)
		}
		processed += int(pageProcessed.Load())
		skipped += int(pageSkipped.Load())

		if err := s.repo.UpdateJobProgress(ctx, jobID, processed, skipped); err != nil {
			s.log.Warn("rescore progress write failed", "jobId", jobID, "error", err)
		}
		s.log.BatchProgress("rescore", processed, skipped)

		if len(page) < s.pageSize {
			break
		}
	}

	return s.repo.FinishJob(ctx, jobID, repository.JobStatusCompleted, processed, skipped)
}

func (s *Service) rescoreOne(ctx context.Context, record *domain.Record) error {
	result, err := s.Score(ctx, record.Module, record.Fields())
	if err != nil {
		return err
	}

	priorityID, err := s.resolver.ResolvePriorityID(ctx, record.Module, result.Total)
	if err != nil {
		return err
	}

	return s.records.UpdateScore(ctx, record.ID, record.Version, result.Total, result.Breakdown, priorityID)
}
