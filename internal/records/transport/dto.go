package transport

import (
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/records/repository"
)

// Request DTOs

type CreateRecordRequest struct {
	Module        string         `json:"module" validate:"required,oneof=leads opportunities"`
	PipelineID    *uuid.UUID     `json:"pipelineId,omitempty"`
	Name          string         `json:"name" validate:"required,min=1,max=200"`
	Company       *string        `json:"company,omitempty" validate:"omitempty,max=200"`
	Email         *string        `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string        `json:"phone,omitempty" validate:"omitempty,max=40"`
	Source        *string        `json:"source,omitempty" validate:"omitempty,max=120"`
	Value         *float64       `json:"value,omitempty" validate:"omitempty,gte=0"`
	Qualification map[string]any `json:"qualification,omitempty"`
	CustomFields  map[string]any `json:"customFields,omitempty"`
}

type UpdateFieldsRequest struct {
	Fields map[string]any `json:"fields" validate:"required,min=1"`
}

type ChangeStageRequest struct {
	ToStageID uuid.UUID      `json:"toStageId" validate:"required"`
	Reason    string         `json:"reason,omitempty" validate:"omitempty,max=500"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type AssignOwnerRequest struct {
	OwnerID uuid.UUID `json:"ownerId" validate:"required"`
}

// Response DTOs

type RecordResponse struct {
	ID             uuid.UUID      `json:"id"`
	Module         string         `json:"module"`
	PipelineID     uuid.UUID      `json:"pipelineId"`
	StageID        uuid.UUID      `json:"stageId"`
	Name           string         `json:"name"`
	Company        *string        `json:"company,omitempty"`
	Email          *string        `json:"email,omitempty"`
	Phone          *string        `json:"phone,omitempty"`
	Source         *string        `json:"source,omitempty"`
	Value          *float64       `json:"value,omitempty"`
	OwnerID        uuid.UUID      `json:"ownerId"`
	Score          int            `json:"score"`
	ScoreBreakdown map[string]int `json:"scoreBreakdown,omitempty"`
	PriorityID     *uuid.UUID     `json:"priorityId,omitempty"`
	Qualification  map[string]any `json:"qualification,omitempty"`
	CustomFields   map[string]any `json:"customFields,omitempty"`
	ConvertedAt    *time.Time     `json:"convertedAt,omitempty"`
	DisqualifiedAt *time.Time     `json:"disqualifiedAt,omitempty"`
	WonAt          *time.Time     `json:"wonAt,omitempty"`
	LostAt         *time.Time     `json:"lostAt,omitempty"`
	Terminal       bool           `json:"terminal"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Total   int              `json:"total"`
}

type AuditEntryResponse struct {
	ID          uuid.UUID      `json:"id"`
	Action      string         `json:"action"`
	ActorID     uuid.UUID      `json:"actorId"`
	FromStageID *uuid.UUID     `json:"fromStageId,omitempty"`
	ToStageID   *uuid.UUID     `json:"toStageId,omitempty"`
	Reason      *string        `json:"reason,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func ToRecordResponse(r domain.Record) RecordResponse {
	return RecordResponse{
		ID:             r.ID,
		Module:         string(r.Module),
		PipelineID:     r.PipelineID,
		StageID:        r.StageID,
		Name:           r.Name,
		Company:        r.Company,
		Email:          r.Email,
		Phone:          r.Phone,
		Source:         r.Source,
		Value:          r.Value,
		OwnerID:        r.OwnerID,
		Score:          r.Score,
		ScoreBreakdown: r.ScoreBreakdown,
		PriorityID:     r.PriorityID,
		Qualification:  r.Qualification,
		CustomFields:   r.CustomFields,
		ConvertedAt:    r.ConvertedAt,
		DisqualifiedAt: r.DisqualifiedAt,
		WonAt:          r.WonAt,
		LostAt:         r.LostAt,
		Terminal:       r.IsTerminal(),
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func ToRecordListResponse(records []domain.Record, total int) RecordListResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ToRecordResponse(r))
	}
	return RecordListResponse{Records: out, Total: total}
}

func ToAuditEntryResponse(e repository.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:          e.ID,
		Action:      e.Action,
		ActorID:     e.ActorID,
		FromStageID: e.FromStageID,
		ToStageID:   e.ToStageID,
		Reason:      e.Reason,
		Details:     e.Details,
		CreatedAt:   e.CreatedAt,
	}
}

func ToAuditEntryResponses(entries []repository.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToAuditEntryResponse(e))
	}
	return out
}
