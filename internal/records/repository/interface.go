package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
)

// Audit actions recorded on the record trail.
const (
	AuditCreated      = "created"
	AuditUpdated      = "updated"
	AuditAssigned     = "assigned"
	AuditStageChanged = "stage_changed"
	AuditRescored     = "rescored"
)

// AuditEntry is one immutable line of a record's history.
type AuditEntry struct {
	ID          uuid.UUID
	RecordID    uuid.UUID
	Action      string
	ActorID     uuid.UUID
	FromStageID *uuid.UUID
	ToStageID   *uuid.UUID
	Reason      *string
	Details     map[string]any
	CreatedAt   time.Time
}

// ListParams filters and pages record listings.
type ListParams struct {
	Module     domain.Module
	StageID    *uuid.UUID
	OwnerID    *uuid.UUID
	PriorityID *uuid.UUID
	Limit      int
	Offset     int
}

// Repository provides record persistence. All mutating operations are
// guarded by the record version; a stale version reports a conflict.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Record, error)
	List(ctx context.Context, params ListParams) ([]domain.Record, int, error)
	Create(ctx context.Context, record *domain.Record) (domain.Record, error)
	// Update persists the record's mutable state when the stored version
	// still matches record.Version, bumping the version by one.
	Update(ctx context.Context, record *domain.Record) (domain.Record, error)
	// UpdateScore writes only the scoring outcome under the version guard.
	UpdateScore(ctx context.Context, id uuid.UUID, version int, score int, breakdown map[string]int, priorityID *uuid.UUID) error
	// ListScoringPage returns records of a module ordered by ID, strictly
	// after afterID, for the rescore batch cursor.
	ListScoringPage(ctx context.Context, module domain.Module, afterID uuid.UUID, limit int) ([]domain.Record, error)
	// FindDuplicate looks for a non-terminal record of the module sharing
	// the email or phone. Nil when there is none.
	FindDuplicate(ctx context.Context, module domain.Module, email, phone *string) (*domain.Record, error)

	AddAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, recordID uuid.UUID) ([]AuditEntry, error)
}
