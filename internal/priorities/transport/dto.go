package transport

import (
	"github.com/google/uuid"

	"salesdesk_backend/internal/priorities/repository"
)

type CreatePriorityRequest struct {
	Module    string  `json:"module" validate:"required,oneof=leads opportunities"`
	Name      string  `json:"name" validate:"required,min=1,max=120"`
	Color     *string `json:"color,omitempty" validate:"omitempty,max=20"`
	MinScore  *int    `json:"minScore,omitempty" validate:"omitempty,min=0,max=1000"`
	MaxScore  *int    `json:"maxScore,omitempty" validate:"omitempty,min=0,max=1000"`
	SortOrder int     `json:"sortOrder" validate:"min=0"`
	IsDefault bool    `json:"isDefault"`
}

// UpdatePriorityRequest distinguishes absent bounds from explicit nulls via
// the Clear flags, so a band can be opened up again after being narrowed.
type UpdatePriorityRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Color         *string `json:"color,omitempty" validate:"omitempty,max=20"`
	MinScore      *int    `json:"minScore,omitempty" validate:"omitempty,min=0,max=1000"`
	ClearMinScore bool    `json:"clearMinScore"`
	MaxScore      *int    `json:"maxScore,omitempty" validate:"omitempty,min=0,max=1000"`
	ClearMaxScore bool    `json:"clearMaxScore"`
	SortOrder     *int    `json:"sortOrder,omitempty" validate:"omitempty,min=0"`
	IsDefault     *bool   `json:"isDefault,omitempty"`
	IsActive      *bool   `json:"isActive,omitempty"`
}

type PriorityResponse struct {
	ID        uuid.UUID `json:"id"`
	Module    string    `json:"module"`
	Name      string    `json:"name"`
	Color     *string   `json:"color,omitempty"`
	MinScore  *int      `json:"minScore"`
	MaxScore  *int      `json:"maxScore"`
	SortOrder int       `json:"sortOrder"`
	IsDefault bool      `json:"isDefault"`
	IsActive  bool      `json:"isActive"`
}

func ToPriorityResponse(p repository.Priority) PriorityResponse {
	return PriorityResponse{
		ID:        p.ID,
		Module:    string(p.Module),
		Name:      p.Name,
		Color:     p.Color,
		MinScore:  p.MinScore,
		MaxScore:  p.MaxScore,
		SortOrder: p.SortOrder,
		IsDefault: p.IsDefault,
		IsActive:  p.IsActive,
	}
}

func ToPriorityResponses(priorities []repository.Priority) []PriorityResponse {
	out := make([]PriorityResponse, 0, len(priorities))
	for _, p := range priorities {
		out = append(out, ToPriorityResponse(p))
	}
	return out
}
