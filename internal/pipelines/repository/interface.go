package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
)

// Pipeline is a named, ordered sequence of stages scoped to a module.
type Pipeline struct {
	ID        uuid.UUID
	Module    domain.Module
	Name      string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stage is a pipeline step. SortOrder is dense and unique within the
// pipeline and defines the only transition ordering.
type Stage struct {
	ID                 uuid.UUID
	PipelineID         uuid.UUID
	Module             domain.Module
	Name               string
	Slug               string
	Color              *string
	SortOrder          int
	IsSystem           bool
	IsWon              bool
	IsLost             bool
	LockPreviousFields bool
}

// FieldRequirement is a required or optional field on a target stage.
type FieldRequirement struct {
	StageID      uuid.UUID `json:"stageId"`
	FieldKey     string    `json:"fieldKey"`
	FieldLabel   string    `json:"fieldLabel"`
	IsRequired   bool      `json:"isRequired"`
	DisplayOrder int       `json:"displayOrder"`
}

// CreatePipelineParams contains parameters for creating a pipeline.
type CreatePipelineParams struct {
	Module    domain.Module
	Name      string
	IsDefault bool
}

// UpdatePipelineParams contains parameters for updating a pipeline.
type UpdatePipelineParams struct {
	ID        uuid.UUID
	Name      *string
	IsDefault *bool
}

// CreateStageParams contains parameters for creating a stage.
type CreateStageParams struct {
	PipelineID         uuid.UUID
	Module             domain.Module
	Name               string
	Slug               string
	Color              *string
	IsWon              bool
	IsLost             bool
	LockPreviousFields bool
}

// UpdateStageParams contains parameters for updating a stage.
type UpdateStageParams struct {
	ID                 uuid.UUID
	Name               *string
	Color              *string
	LockPreviousFields *bool
}

// PipelineReader provides read operations for pipelines and stages.
type PipelineReader interface {
	GetPipeline(ctx context.Context, id uuid.UUID) (Pipeline, error)
	ListPipelines(ctx context.Context, module domain.Module) ([]Pipeline, error)
	DefaultPipeline(ctx context.Context, module domain.Module) (Pipeline, error)
	GetStage(ctx context.Context, id uuid.UUID) (Stage, error)
	ListStages(ctx context.Context, pipelineID uuid.UUID) ([]Stage, error)
	ListFieldRequirements(ctx context.Context, stageID uuid.UUID) ([]FieldRequirement, error)
	PipelineHasRecords(ctx context.Context, pipelineID uuid.UUID) (bool, error)
}

// PipelineWriter provides write operations for pipelines and stages.
type PipelineWriter interface {
	CreatePipeline(ctx context.Context, params CreatePipelineParams) (Pipeline, error)
	UpdatePipeline(ctx context.Context, params UpdatePipelineParams) (Pipeline, error)
	DeletePipeline(ctx context.Context, id uuid.UUID) error
	// SetDefaultPipeline marks the pipeline default and clears the previous
	// default of the same module in one transaction.
	SetDefaultPipeline(ctx context.Context, id uuid.UUID, module domain.Module) error
	CreateStage(ctx context.Context, params CreateStageParams) (Stage, error)
	UpdateStage(ctx context.Context, params UpdateStageParams) (Stage, error)
	DeleteStage(ctx context.Context, id uuid.UUID) error
	// ReorderStages rewrites sort_order densely following orderedIDs.
	ReorderStages(ctx context.Context, pipelineID uuid.UUID, orderedIDs []uuid.UUID) error
	ReplaceFieldRequirements(ctx context.Context, stageID uuid.UUID, requirements []FieldRequirement) error
}

// Repository combines all pipeline repository operations.
type Repository interface {
	PipelineReader
	PipelineWriter
}
