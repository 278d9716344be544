// Package service implements pipeline and stage management: the stage graph
// queries used by transitions, the required-field gate, and the admin CRUD
// invariants (single default pipeline, terminal stage uniqueness, dense
// ordering).
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"salesdesk_backend/internal/pipelines/repository"
	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
)

// Service exposes pipeline, stage, and requirement operations.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates a new pipelines service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// =============================================================================
// Stage graph
// =============================================================================

// StagesFor returns the pipeline's stages sorted by sort order.
func (s *Service) StagesFor(ctx context.Context, pipelineID uuid.UUID) ([]repository.Stage, error) {
	if _, err := s.repo.GetPipeline(ctx, pipelineID); err != nil {
		return nil, err
	}
	return s.repo.ListStages(ctx, pipelineID)
}

// GetStage returns a single stage.
func (s *Service) GetStage(ctx context.Context, stageID uuid.UUID) (repository.Stage, error) {
	return s.repo.GetStage(ctx, stageID)
}

// IndexOf returns the position of a stage within its pipeline's ordering.
func (s *Service) IndexOf(ctx context.Context, pipelineID, stageID uuid.UUID) (int, error) {
	stages, err := s.repo.ListStages(ctx, pipelineID)
	if err != nil {
		return 0, err
	}
	for index, stage := range stages {
		if stage.ID == stageID {
			return index, nil
		}
	}
	return 0, apperr.NotFound("stage does not belong to pipeline")
}

// IsBackward reports whether moving from one stage to another goes against
// the pipeline's ordering. Both stages must belong to the given pipeline.
func (s *Service) IsBackward(ctx context.Context, pipelineID, fromStageID, toStageID uuid.UUID) (bool, error) {
	stages, err := s.repo.ListStages(ctx, pipelineID)
	if err != nil {
		return false, err
	}

	fromIndex, toIndex := -1, -1
	for index, stage := range stages {
		if stage.ID == fromStageID {
			fromIndex = index
		}
		if stage.ID == toStageID {
			toIndex = index
		}
	}
	if fromIndex < 0 || toIndex < 0 {
		return false, apperr.NotFound("stage does not belong to pipeline")
	}

	return toIndex < fromIndex, nil
}

// =============================================================================
// Field requirement gate
// =============================================================================

// MissingRequiredFields returns the target stage's required fields whose
// resolved value on the record is empty, in display order.
//
// The gate fails open: if the requirement list cannot be loaded the error is
// logged and no requirements are reported, so a storage hiccup never blocks
// a user from progressing a record.
func (s *Service) MissingRequiredFields(ctx context.Context, stageID uuid.UUID, fields rules.Fields) []repository.FieldRequirement {
	requirements, err := s.repo.ListFieldRequirements(ctx, stageID)
	if err != nil {
		if s.log != nil {
			s.log.Warn("field requirement load failed, gate open", "stageId", stageID, "error", err)
		}
		return nil
	}

	var missing []repository.FieldRequirement
	for _, requirement := range requirements {
		if !requirement.IsRequired {
			continue
		}
		value, _ := rules.Resolve(fields, requirement.FieldKey)
		if rules.IsEmpty(value) {
			missing = append(missing, requirement)
		}
	}

	return missing
}

// =============================================================================
// Pipeline CRUD
// =============================================================================

// ListPipelines returns the module's pipelines.
func (s *Service) ListPipelines(ctx context.Context, module domain.Module) ([]repository.Pipeline, error) {
	if !domain.IsValidModule(module) {
		return nil, apperr.Validation("unknown module")
	}
	return s.repo.ListPipelines(ctx, module)
}

// DefaultPipeline returns the module's default pipeline.
func (s *Service) DefaultPipeline(ctx context.Context, module domain.Module) (repository.Pipeline, error) {
	return s.repo.DefaultPipeline(ctx, module)
}

// CreatePipeline creates a pipeline. Marking it default clears the previous
// default of the module.
func (s *Service) CreatePipeline(ctx context.Context, module domain.Module, name string, isDefault bool) (repository.Pipeline, error) {
	if !domain.IsValidModule(module) {
		return repository.Pipeline{}, apperr.Validation("unknown module")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Pipeline{}, apperr.Validation("pipeline name is required")
	}

	return s.repo.CreatePipeline(ctx, repository.CreatePipelineParams{
		Module:    module,
		Name:      name,
		IsDefault: isDefault,
	})
}

// UpdatePipeline renames a pipeline and optionally promotes it to default.
func (s *Service) UpdatePipeline(ctx context.Context, id uuid.UUID, name *string, isDefault *bool) (repository.Pipeline, error) {
	pipeline, err := s.repo.GetPipeline(ctx, id)
	if err != nil {
		return repository.Pipeline{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return repository.Pipeline{}, apperr.Validation("pipeline name is required")
		}
		name = &trimmed
	}

	if isDefault != nil && !*isDefault && pipeline.IsDefault {
		// The default flag moves by promoting another pipeline, never by
		// leaving the module without one.
		return repository.Pipeline{}, apperr.Validation("cannot unset the default pipeline directly")
	}

	updated, err := s.repo.UpdatePipeline(ctx, repository.UpdatePipelineParams{ID: id, Name: name})
	if err != nil {
		return repository.Pipeline{}, err
	}

	if isDefault != nil && *isDefault && !pipeline.IsDefault {
		if err := s.repo.SetDefaultPipeline(ctx, id, pipeline.Module); err != nil {
			return repository.Pipeline{}, err
		}
		updated.IsDefault = true
	}

	return updated, nil
}

// DeletePipeline removes a pipeline unless it is default or referenced.
func (s *Service) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	pipeline, err := s.repo.GetPipeline(ctx, id)
	if err != nil {
		return err
	}
	if pipeline.IsDefault {
		return apperr.Conflict("cannot delete the default pipeline")
	}

	hasRecords, err := s.repo.PipelineHasRecords(ctx, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if hasRecords {
		return apperr.Conflict("pipeline is referenced by records")
	}

	return s.repo.DeletePipeline(ctx, id)
}

// =============================================================================
// Stage CRUD
// =============================================================================

// CreateStage appends a stage, enforcing at most one won and one lost stage
// per pipeline.
func (s *Service) CreateStage(ctx context.Context, params repository.CreateStageParams) (repository.Stage, error) {
	pipeline, err := s.repo.GetPipeline(ctx, params.PipelineID)
	if err != nil {
		return repository.Stage{}, err
	}
	params.Module = pipeline.Module

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return repository.Stage{}, apperr.Validation("stage name is required")
	}
	if params.Slug == "" {
		params.Slug = slugify(params.Name)
	}
	if params.IsWon && params.IsLost {
		return repository.Stage{}, apperr.Validation("a stage cannot be both won and lost")
	}

	if params.IsWon || params.IsLost {
		stages, err := s.repo.ListStages(ctx, params.PipelineID)
		if err != nil {
			return repository.Stage{}, err
		}
		for _, stage := range stages {
			if params.IsWon && stage.IsWon {
				return repository.Stage{}, apperr.Conflict("pipeline already has a won stage")
			}
			if params.IsLost && stage.IsLost {
				return repository.Stage{}, apperr.Conflict("pipeline already has a lost stage")
			}
		}
	}

	return s.repo.CreateStage(ctx, params)
}

// UpdateStage updates a stage's mutable attributes.
func (s *Service) UpdateStage(ctx context.Context, params repository.UpdateStageParams) (repository.Stage, error) {
	if params.Name != nil {
		trimmed := strings.TrimSpace(*params.Name)
		if trimmed == "" {
			return repository.Stage{}, apperr.Validation("stage name is required")
		}
		params.Name = &trimmed
	}
	return s.repo.UpdateStage(ctx, params)
}

// DeleteStage removes a stage. System stages cannot be deleted.
func (s *Service) DeleteStage(ctx context.Context, id uuid.UUID) error {
	stage, err := s.repo.GetStage(ctx, id)
	if err != nil {
		return err
	}
	if stage.IsSystem {
		return apperr.Conflict("system stages cannot be deleted")
	}
	return s.repo.DeleteStage(ctx, id)
}

// ReorderStages rewrites the pipeline ordering densely. The ordered list
// must name every stage of the pipeline exactly once.
func (s *Service) ReorderStages(ctx context.Context, pipelineID uuid.UUID, orderedIDs []uuid.UUID) error {
	stages, err := s.repo.ListStages(ctx, pipelineID)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(stages) {
		return apperr.Validation("reorder must include every stage of the pipeline")
	}

	known := make(map[uuid.UUID]bool, len(stages))
	for _, stage := range stages {
		known[stage.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] {
			return apperr.Validation("reorder references a stage outside the pipeline")
		}
		if seen[id] {
			return apperr.Validation("reorder lists a stage twice")
		}
		seen[id] = true
	}

	return s.repo.ReorderStages(ctx, pipelineID, orderedIDs)
}

// =============================================================================
// Field requirements
// =============================================================================

// ListFieldRequirements returns a stage's requirements in display order.
func (s *Service) ListFieldRequirements(ctx context.Context, stageID uuid.UUID) ([]repository.FieldRequirement, error) {
	if _, err := s.repo.GetStage(ctx, stageID); err != nil {
		return nil, err
	}
	return s.repo.ListFieldRequirements(ctx, stageID)
}

// ReplaceFieldRequirements swaps a stage's requirement list.
func (s *Service) ReplaceFieldRequirements(ctx context.Context, stageID uuid.UUID, requirements []repository.FieldRequirement) error {
	if _, err := s.repo.GetStage(ctx, stageID); err != nil {
		return err
	}
	for _, requirement := range requirements {
		if strings.TrimSpace(requirement.FieldKey) == "" {
			return apperr.Validation("field key is required")
		}
	}
	return s.repo.ReplaceFieldRequirements(ctx, stageID, requirements)
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "_")
	return slug
}
