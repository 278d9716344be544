// Package service implements priority management and the score-to-priority
// resolver used after every scoring pass.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"salesdesk_backend/internal/priorities/repository"
	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
)

// openBound stands in for a missing score bound when ranking range widths.
// It only has to dominate any real band width, scores live in [0, 100].
const openBound = 1 << 20

// Service exposes priority operations.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates a new priorities service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Resolve picks the priority band for a score. Among the active priorities
// whose range contains the score the narrowest range wins, a nil bound
// counting as open. Ties fall to the lowest sort order. When nothing matches
// the module's default priority is returned, and nil when there is none.
func (s *Service) Resolve(ctx context.Context, module domain.Module, score int) (*repository.Priority, error) {
	priorities, err := s.repo.List(ctx, module)
	if err != nil {
		return nil, err
	}
	return ResolveFrom(priorities, score), nil
}

// ResolveFrom runs the resolution algorithm over an already loaded priority
// list sorted by sort order.
func ResolveFrom(priorities []repository.Priority, score int) *repository.Priority {
	var best *repository.Priority
	bestWidth := 0

	for i := range priorities {
		p := &priorities[i]
		if !p.IsActive || !contains(p, score) {
			continue
		}
		width := rangeWidth(p)
		if best == nil || width < bestWidth {
			best = p
			bestWidth = width
		}
	}
	if best != nil {
		return best
	}

	for i := range priorities {
		if priorities[i].IsDefault {
			return &priorities[i]
		}
	}
	return nil
}

func contains(p *repository.Priority, score int) bool {
	if p.MinScore != nil && score < *p.MinScore {
		return false
	}
	if p.MaxScore != nil && score > *p.MaxScore {
		return false
	}
	return true
}

func rangeWidth(p *repository.Priority) int {
	min, max := -openBound, openBound
	if p.MinScore != nil {
		min = *p.MinScore
	}
	if p.MaxScore != nil {
		max = *p.MaxScore
	}
	return max - min
}

// ResolvePriorityID is Resolve narrowed to the ID, for callers that only
// store the reference.
func (s *Service) ResolvePriorityID(ctx context.Context, module domain.Module, score int) (*uuid.UUID, error) {
	priority, err := s.Resolve(ctx, module, score)
	if err != nil {
		return nil, err
	}
	if priority == nil {
		return nil, nil
	}
	return &priority.ID, nil
}

// Get returns a single priority.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Priority, error) {
	return s.repo.Get(ctx, id)
}

// List returns the module's priorities in sort order.
func (s *Service) List(ctx context.Context, module domain.Module) ([]repository.Priority, error) {
	if !domain.IsValidModule(module) {
		return nil, apperr.Validation("unknown module")
	}
	return s.repo.List(ctx, module)
}

// Create creates a priority after validating its score range.
func (s *Service) Create(ctx context.Context, params repository.CreateParams) (repository.Priority, error) {
	if !domain.IsValidModule(params.Module) {
		return repository.Priority{}, apperr.Validation("unknown module")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return repository.Priority{}, apperr.Validation("priority name is required")
	}
	if err := validateRange(params.MinScore, params.MaxScore); err != nil {
		return repository.Priority{}, err
	}

	return s.repo.Create(ctx, params)
}

// Update updates a priority. Promoting to default routes through SetDefault
// so the module keeps exactly one.
func (s *Service) Update(ctx context.Context, params repository.UpdateParams) (repository.Priority, error) {
	current, err := s.repo.Get(ctx, params.ID)
	if err != nil {
		return repository.Priority{}, err
	}

	if params.Name != nil {
		trimmed := strings.TrimSpace(*params.Name)
		if trimmed == "" {
			return repository.Priority{}, apperr.Validation("priority name is required")
		}
		params.Name = &trimmed
	}

	min, max := current.MinScore, current.MaxScore
	if params.SetMinScore {
		min = params.MinScore
	}
	if params.SetMaxScore {
		max = params.MaxScore
	}
	if err := validateRange(min, max); err != nil {
		return repository.Priority{}, err
	}

	if params.IsDefault != nil && !*params.IsDefault && current.IsDefault {
		return repository.Priority{}, apperr.Validation("cannot unset the default priority directly")
	}

	updated, err := s.repo.Update(ctx, params)
	if err != nil {
		return repository.Priority{}, err
	}

	if params.IsDefault != nil && *params.IsDefault && !current.IsDefault {
		if err := s.repo.SetDefault(ctx, params.ID, current.Module); err != nil {
			return repository.Priority{}, err
		}
		updated.IsDefault = true
	}

	return updated, nil
}

// Delete removes a priority. The default priority cannot be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	priority, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if priority.IsDefault {
		return apperr.Conflict("cannot delete the default priority")
	}
	return s.repo.Delete(ctx, id)
}

func validateRange(min, max *int) error {
	if min != nil && *min < 0 {
		return apperr.Validation("minScore cannot be negative")
	}
	if max != nil && *max < 0 {
		return apperr.Validation("maxScore cannot be negative")
	}
	if min != nil && max != nil && *min > *max {
		return apperr.Validation("minScore cannot exceed maxScore")
	}
	return nil
}
