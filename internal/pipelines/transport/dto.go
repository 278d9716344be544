package transport

import (
	"github.com/google/uuid"

	"salesdesk_backend/internal/pipelines/repository"
)

// Request DTOs

type CreatePipelineRequest struct {
	Module    string `json:"module" validate:"required,oneof=leads opportunities"`
	Name      string `json:"name" validate:"required,min=1,max=120"`
	IsDefault bool   `json:"isDefault"`
}

type UpdatePipelineRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	IsDefault *bool   `json:"isDefault,omitempty"`
}

type CreateStageRequest struct {
	Name               string  `json:"name" validate:"required,min=1,max=120"`
	Slug               string  `json:"slug,omitempty" validate:"omitempty,max=120"`
	Color              *string `json:"color,omitempty" validate:"omitempty,max=20"`
	IsWon              bool    `json:"isWon"`
	IsLost             bool    `json:"isLost"`
	LockPreviousFields bool    `json:"lockPreviousFields"`
}

type UpdateStageRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Color              *string `json:"color,omitempty" validate:"omitempty,max=20"`
	LockPreviousFields *bool   `json:"lockPreviousFields,omitempty"`
}

type ReorderStagesRequest struct {
	StageIDs []uuid.UUID `json:"stageIds" validate:"required,min=1"`
}

type FieldRequirementInput struct {
	FieldKey     string `json:"fieldKey" validate:"required,min=1,max=200"`
	FieldLabel   string `json:"fieldLabel" validate:"max=200"`
	IsRequired   bool   `json:"isRequired"`
	DisplayOrder int    `json:"displayOrder"`
}

type ReplaceFieldRequirementsRequest struct {
	Requirements []FieldRequirementInput `json:"requirements" validate:"dive"`
}

// Response DTOs

type PipelineResponse struct {
	ID        uuid.UUID `json:"id"`
	Module    string    `json:"module"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"isDefault"`
}

type StageResponse struct {
	ID                 uuid.UUID `json:"id"`
	PipelineID         uuid.UUID `json:"pipelineId"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Color              *string   `json:"color,omitempty"`
	SortOrder          int       `json:"sortOrder"`
	IsSystem           bool      `json:"isSystem"`
	IsWon              bool      `json:"isWon"`
	IsLost             bool      `json:"isLost"`
	LockPreviousFields bool      `json:"lockPreviousFields"`
}

func ToPipelineResponse(p repository.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:        p.ID,
		Module:    string(p.Module),
		Name:      p.Name,
		IsDefault: p.IsDefault,
	}
}

func ToPipelineResponses(pipelines []repository.Pipeline) []PipelineResponse {
	out := make([]PipelineResponse, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, ToPipelineResponse(p))
	}
	return out
}

func ToStageResponse(s repository.Stage) StageResponse {
	return StageResponse{
		ID:                 s.ID,
		PipelineID:         s.PipelineID,
		Name:               s.Name,
		Slug:               s.Slug,
		Color:              s.Color,
		SortOrder:          s.SortOrder,
		IsSystem:           s.IsSystem,
		IsWon:              s.IsWon,
		IsLost:             s.IsLost,
		LockPreviousFields: s.LockPreviousFields,
	}
}

func ToStageResponses(stages []repository.Stage) []StageResponse {
	out := make([]StageResponse, 0, len(stages))
	for _, s := range stages {
		out = append(out, ToStageResponse(s))
	}
	return out
}
