package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
)

// Template is a named set of scoring rules for a module. At most one
// template per module is active, the engine only ever runs the active one.
type Template struct {
	ID        uuid.UUID
	Module    domain.Module
	Name      string
	MaxScore  int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rule awards points when its condition matches a record field. Value is the
// typed comparand, validated against the operator when the rule is written.
type Rule struct {
	ID         uuid.UUID
	TemplateID uuid.UUID
	Name       string
	FieldKey   string
	Operator   rules.Operator
	Value      rules.Value
	Points     int
	SortOrder  int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Job status values for rescore batch runs.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
	JobStatusFailed    = "failed"
)

// Job tracks one rescore-all run over a module's records.
type Job struct {
	ID              uuid.UUID
	Module          domain.Module
	Status          string
	Processed       int
	Skipped         int
	CancelRequested bool
	RequestedBy     uuid.UUID
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
}

// CreateTemplateParams contains parameters for creating a template.
type CreateTemplateParams struct {
	Module   domain.Module
	Name     string
	MaxScore int
	IsActive bool
}

// UpdateTemplateParams contains parameters for updating a template.
type UpdateTemplateParams struct {
	ID       uuid.UUID
	Name     *string
	MaxScore *int
	IsActive *bool
}

// CreateRuleParams contains parameters for creating a rule.
type CreateRuleParams struct {
	TemplateID uuid.UUID
	Name       string
	FieldKey   string
	Operator   rules.Operator
	Value      rules.Value
	Points     int
	SortOrder  int
}

// UpdateRuleParams contains parameters for updating a rule. SetValue guards
// the comparand so an untouched value is not overwritten with the zero one.
type UpdateRuleParams struct {
	ID        uuid.UUID
	Name      *string
	FieldKey  *string
	Operator  *rules.Operator
	Value     rules.Value
	SetValue  bool
	Points    *int
	SortOrder *int
	IsActive  *bool
}

// TemplateRepository provides template and rule persistence.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (Template, error)
	ListTemplates(ctx context.Context, module domain.Module) ([]Template, error)
	// ActiveTemplate returns the module's single active template.
	ActiveTemplate(ctx context.Context, module domain.Module) (Template, error)
	CreateTemplate(ctx context.Context, params CreateTemplateParams) (Template, error)
	UpdateTemplate(ctx context.Context, params UpdateTemplateParams) (Template, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
	// ActivateTemplate makes the template active and deactivates the rest of
	// its module in one transaction.
	ActivateTemplate(ctx context.Context, id uuid.UUID, module domain.Module) error

	GetRule(ctx context.Context, id uuid.UUID) (Rule, error)
	// ListRules returns a template's rules sorted by sort order.
	ListRules(ctx context.Context, templateID uuid.UUID) ([]Rule, error)
	CreateRule(ctx context.Context, params CreateRuleParams) (Rule, error)
	UpdateRule(ctx context.Context, params UpdateRuleParams) (Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// JobRepository tracks rescore batch runs.
type JobRepository interface {
	CreateJob(ctx context.Context, module domain.Module, requestedBy uuid.UUID) (Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	// MarkJobRunning transitions a pending job to running.
	MarkJobRunning(ctx context.Context, id uuid.UUID) error
	// UpdateJobProgress persists the running counters between pages.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, processed, skipped int) error
	FinishJob(ctx context.Context, id uuid.UUID, status string, processed, skipped int) error
	// RequestCancel raises the cancel flag checked between pages.
	RequestCancel(ctx context.Context, id uuid.UUID) error
}

// Repository combines all scoring repository operations.
type Repository interface {
	TemplateRepository
	JobRepository
}
