package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
)

// Priority is a score band label (e.g. Hot, Warm, Cold) scoped to a module.
// Nil bounds are open: a nil MinScore matches any score below MaxScore and
// vice versa.
type Priority struct {
	ID        uuid.UUID
	Module    domain.Module
	Name      string
	Color     *string
	MinScore  *int
	MaxScore  *int
	SortOrder int
	IsDefault bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateParams contains parameters for creating a priority.
type CreateParams struct {
	Module    domain.Module
	Name      string
	Color     *string
	MinScore  *int
	MaxScore  *int
	SortOrder int
	IsDefault bool
}

// UpdateParams contains parameters for updating a priority. SetMinScore and
// SetMaxScore distinguish "leave unchanged" from "clear the bound".
type UpdateParams struct {
	ID          uuid.UUID
	Name        *string
	Color       *string
	MinScore    *int
	SetMinScore bool
	MaxScore    *int
	SetMaxScore bool
	SortOrder   *int
	IsDefault   *bool
	IsActive    *bool
}

// Repository provides priority persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Priority, error)
	// List returns the module's priorities sorted by sort order.
	List(ctx context.Context, module domain.Module) ([]Priority, error)
	Create(ctx context.Context, params CreateParams) (Priority, error)
	Update(ctx context.Context, params UpdateParams) (Priority, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// SetDefault marks the priority default and clears the previous default
	// of the same module in one transaction.
	SetDefault(ctx context.Context, id uuid.UUID, module domain.Module) error
}
