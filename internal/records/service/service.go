// Package service orchestrates the record lifecycle: intake with duplicate
// detection, routing, and scoring; field edits; stage transitions; and
// ownership changes. Every mutation is version guarded and audited.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/events"
	pipelinerepo "salesdesk_backend/internal/pipelines/repository"
	priorityrepo "salesdesk_backend/internal/priorities/repository"
	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/records/repository"
	routingengine "salesdesk_backend/internal/routing/engine"
	"salesdesk_backend/internal/rules"
	scoringengine "salesdesk_backend/internal/scoring/engine"
	"salesdesk_backend/internal/settings"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/phone"
)

// StageGraph is the slice of the pipelines service the orchestrator needs.
type StageGraph interface {
	DefaultPipeline(ctx context.Context, module domain.Module) (pipelinerepo.Pipeline, error)
	StagesFor(ctx context.Context, pipelineID uuid.UUID) ([]pipelinerepo.Stage, error)
	GetStage(ctx context.Context, stageID uuid.UUID) (pipelinerepo.Stage, error)
	IsBackward(ctx context.Context, pipelineID, fromStageID, toStageID uuid.UUID) (bool, error)
	MissingRequiredFields(ctx context.Context, stageID uuid.UUID, fields rules.Fields) []pipelinerepo.FieldRequirement
}

// Scorer evaluates the active template for a module.
type Scorer interface {
	Score(ctx context.Context, module domain.Module, fields rules.Fields) (scoringengine.Result, error)
}

// PriorityResolver maps a score to a priority band.
type PriorityResolver interface {
	Resolve(ctx context.Context, module domain.Module, score int) (*priorityrepo.Priority, error)
}

// Router assigns an owner to a new record.
type Router interface {
	Assign(ctx context.Context, module domain.Module, fields rules.Fields, creatorID uuid.UUID) (routingengine.Assignment, error)
}

// TeamMembers grants record access to users.
type TeamMembers interface {
	AddRecordMember(ctx context.Context, recordID, userID uuid.UUID, accessLevel string) error
}

// SettingsReader provides the typed setting subsets the orchestrator honors.
type SettingsReader interface {
	Stages(ctx context.Context) (settings.StageSettings, error)
	Conversion(ctx context.Context) (settings.ConversionSettings, error)
	DuplicateDetection(ctx context.Context) (settings.DuplicateDetectionSettings, error)
}

// Service exposes record operations.
type Service struct {
	repo          repository.Repository
	graph         StageGraph
	scorer        Scorer
	priorities    PriorityResolver
	router        Router
	teams         TeamMembers
	settings      SettingsReader
	bus           events.Bus
	defaultRegion string
	log           *logger.Logger
	now           func() time.Time
}

// New creates a new records service.
func New(
	repo repository.Repository,
	graph StageGraph,
	scorer Scorer,
	priorities PriorityResolver,
	router Router,
	teams TeamMembers,
	settingsReader SettingsReader,
	bus events.Bus,
	defaultRegion string,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:          repo,
		graph:         graph,
		scorer:        scorer,
		priorities:    priorities,
		router:        router,
		teams:         teams,
		settings:      settingsReader,
		bus:           bus,
		defaultRegion: defaultRegion,
		log:           log,
		now:           time.Now,
	}
}

// SetScorer injects the scoring service after construction. The scoring
// module consumes the records repository, so the composition root closes
// the cycle in a second step.
func (s *Service) SetScorer(scorer Scorer) {
	s.scorer = scorer
}

// CreateParams carries the intake payload.
type CreateParams struct {
	Module        domain.Module
	PipelineID    *uuid.UUID
	Name          string
	Company       *string
	Email         *string
	Phone         *string
	Source        *string
	Value         *float64
	Qualification map[string]any
	CustomFields  map[string]any
}

// Create runs the intake flow: normalize, duplicate-check, place on the
// pipeline's first stage, route to an owner, score, and resolve priority.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, params CreateParams) (domain.Record, error) {
	if !domain.IsValidModule(params.Module) {
		return domain.Record{}, apperr.Validation("unknown module")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return domain.Record{}, apperr.Validation("record name is required")
	}

	if params.Phone != nil {
		normalized := phone.NormalizeE164(*params.Phone, s.defaultRegion)
		params.Phone = &normalized
	}

	if err := s.checkDuplicates(ctx, params); err != nil {
		return domain.Record{}, err
	}

	pipeline, firstStage, err := s.entryStage(ctx, params)
	if err != nil {
		return domain.Record{}, err
	}

	record := domain.Record{
		Module:        params.Module,
		PipelineID:    pipeline.ID,
		StageID:       firstStage.ID,
		Name:          params.Name,
		Company:       params.Company,
		Email:         params.Email,
		Phone:         params.Phone,
		Source:        params.Source,
		Value:         params.Value,
		OwnerID:       actorID,
		CreatedBy:     actorID,
		Qualification: params.Qualification,
		CustomFields:  params.CustomFields,
	}

	assignment, err := s.router.Assign(ctx, params.Module, record.Fields(), actorID)
	if err != nil {
		return domain.Record{}, err
	}
	record.OwnerID = assignment.OwnerID

	if err := s.applyScore(ctx, &record); err != nil {
		return domain.Record{}, err
	}

	created, err := s.repo.Create(ctx, &record)
	if err != nil {
		return domain.Record{}, err
	}

	s.audit(ctx, repository.AuditEntry{
		RecordID:  created.ID,
		Action:    repository.AuditCreated,
		ActorID:   actorID,
		ToStageID: &created.StageID,
	})
	s.bus.Publish(ctx, events.RecordCreated{
		BaseEvent: events.NewBaseEvent(),
		RecordID:  created.ID,
		Module:    string(created.Module),
		OwnerID:   created.OwnerID,
	})

	if assignment.RuleID != nil {
		s.audit(ctx, repository.AuditEntry{
			RecordID: created.ID,
			Action:   repository.AuditAssigned,
			ActorID:  actorID,
			Details:  map[string]any{"rule": assignment.RuleName, "ownerId": created.OwnerID.String()},
		})
		s.bus.Publish(ctx, events.RecordAssigned{
			BaseEvent:  events.NewBaseEvent(),
			RecordID:   created.ID,
			Module:     string(created.Module),
			OwnerID:    created.OwnerID,
			RuleName:   assignment.RuleName,
			AssignedBy: "routing",
		})
	}

	return created, nil
}

// Get returns a record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of records and the total count.
func (s *Service) List(ctx context.Context, params repository.ListParams) ([]domain.Record, int, error) {
	if !domain.IsValidModule(params.Module) {
		return nil, 0, apperr.Validation("unknown module")
	}
	return s.repo.List(ctx, params)
}

// UpdateFields merges dotted-key edits into the record and rescores it.
// Terminal records are read-only.
func (s *Service) UpdateFields(ctx context.Context, actorID, recordID uuid.UUID, fields map[string]any) (domain.Record, error) {
	record, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return domain.Record{}, err
	}
	if record.IsTerminal() {
		return domain.Record{}, apperr.Conflict("record is read-only")
	}
	if len(fields) == 0 {
		return record, nil
	}

	if rawPhone, ok := fields["phone"].(string); ok {
		fields["phone"] = phone.NormalizeE164(rawPhone, s.defaultRegion)
	}

	record.ApplyFieldEdits(fields)
	if err := s.applyScore(ctx, &record); err != nil {
		return domain.Record{}, err
	}

	updated, err := s.repo.Update(ctx, &record)
	if err != nil {
		return domain.Record{}, err
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	s.audit(ctx, repository.AuditEntry{
		RecordID: updated.ID,
		Action:   repository.AuditUpdated,
		ActorID:  actorID,
		Details:  map[string]any{"fields": keys},
	})

	return updated, nil
}

// ChangeStage moves a record to another stage of its pipeline.
//
// The flow is: reject terminal records; classify the move and demand an
// unlock reason for backward ones when configured; apply any supplied field
// edits; run the required-field gate on the target stage; persist with the
// terminal timestamp for won/lost stages; audit and publish.
func (s *Service) ChangeStage(ctx context.Context, actorID, recordID, toStageID uuid.UUID, reason string, suppliedFields map[string]any) (domain.Record, error) {
	record, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return domain.Record{}, err
	}
	if record.IsTerminal() {
		return domain.Record{}, apperr.Conflict("record is read-only")
	}

	toStage, err := s.graph.GetStage(ctx, toStageID)
	if err != nil {
		return domain.Record{}, err
	}
	if toStage.PipelineID != record.PipelineID {
		return domain.Record{}, apperr.Validation("stage does not belong to the record's pipeline")
	}
	if toStage.ID == record.StageID {
		return record, nil
	}

	backward, err := s.graph.IsBackward(ctx, record.PipelineID, record.StageID, toStageID)
	if err != nil {
		return domain.Record{}, err
	}
	reason = strings.TrimSpace(reason)
	if backward {
		stageSettings, err := s.settings.Stages(ctx)
		if err != nil {
			return domain.Record{}, err
		}
		if stageSettings.LockPreviousStages && stageSettings.RequireUnlockReason && reason == "" {
			return domain.Record{}, apperr.Validation("an unlock reason is required for backward transitions")
		}
	}

	if len(suppliedFields) > 0 {
		record.ApplyFieldEdits(suppliedFields)
	}

	if missing := s.graph.MissingRequiredFields(ctx, toStageID, record.Fields()); len(missing) > 0 {
		appErr := apperr.Validation("required fields are missing for the target stage")
		return domain.Record{}, appErr.WithDetails(missing)
	}

	fromStageID := record.StageID
	record.StageID = toStageID
	s.applyTerminalTimestamps(&record, toStage)

	if err := s.applyScore(ctx, &record); err != nil {
		return domain.Record{}, err
	}

	updated, err := s.repo.Update(ctx, &record)
	if err != nil {
		return domain.Record{}, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	s.audit(ctx, repository.AuditEntry{
		RecordID:    updated.ID,
		Action:      repository.AuditStageChanged,
		ActorID:     actorID,
		FromStageID: &fromStageID,
		ToStageID:   &toStageID,
		Reason:      reasonPtr,
		Details:     map[string]any{"backward": backward},
	})
	s.bus.Publish(ctx, events.RecordStageChanged{
		BaseEvent:   events.NewBaseEvent(),
		RecordID:    updated.ID,
		Module:      string(updated.Module),
		OwnerID:     updated.OwnerID,
		FromStageID: fromStageID,
		ToStageID:   toStageID,
		ToStageName: toStage.Name,
		Terminal:    updated.IsTerminal(),
	})

	return updated, nil
}

// AssignOwner hands the record to another user. Per the conversion
// settings the previous owner can stay on the record's team.
func (s *Service) AssignOwner(ctx context.Context, actorID, recordID, newOwnerID uuid.UUID) (domain.Record, error) {
	record, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return domain.Record{}, err
	}
	if record.IsTerminal() {
		return domain.Record{}, apperr.Conflict("record is read-only")
	}
	if record.OwnerID == newOwnerID {
		return record, nil
	}

	previousOwner := record.OwnerID
	record.OwnerID = newOwnerID

	updated, err := s.repo.Update(ctx, &record)
	if err != nil {
		return domain.Record{}, err
	}

	conversion, err := s.settings.Conversion(ctx)
	if err == nil && conversion.AddPreviousOwnerToTeam {
		if err := s.teams.AddRecordMember(ctx, updated.ID, previousOwner, conversion.PreviousOwnerAccessLevel); err != nil {
			s.log.Warn("could not keep previous owner on record team", "recordId", updated.ID, "error", err)
		}
	}

	s.audit(ctx, repository.AuditEntry{
		RecordID: updated.ID,
		Action:   repository.AuditAssigned,
		ActorID:  actorID,
		Details:  map[string]any{"ownerId": newOwnerID.String(), "previousOwnerId": previousOwner.String()},
	})
	s.bus.Publish(ctx, events.RecordAssigned{
		BaseEvent:  events.NewBaseEvent(),
		RecordID:   updated.ID,
		Module:     string(updated.Module),
		OwnerID:    newOwnerID,
		AssignedBy: "manual",
	})

	return updated, nil
}

// Audit returns the record's trail.
func (s *Service) Audit(ctx context.Context, recordID uuid.UUID) ([]repository.AuditEntry, error) {
	if _, err := s.repo.Get(ctx, recordID); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, recordID)
}

func (s *Service) checkDuplicates(ctx context.Context, params CreateParams) error {
	detection, err := s.settings.DuplicateDetection(ctx)
	if err != nil {
		return err
	}
	if !detection.Enabled {
		return nil
	}

	var email, phoneNumber *string
	if detection.MatchEmail && params.Email != nil && strings.TrimSpace(*params.Email) != "" {
		email = params.Email
	}
	if detection.MatchPhone && params.Phone != nil && strings.TrimSpace(*params.Phone) != "" {
		phoneNumber = params.Phone
	}

	duplicate, err := s.repo.FindDuplicate(ctx, params.Module, email, phoneNumber)
	if err != nil {
		return err
	}
	if duplicate != nil {
		appErr := apperr.Conflict("a record with this contact already exists")
		return appErr.WithDetails(map[string]any{"duplicateRecordId": duplicate.ID.String()})
	}
	return nil
}

func (s *Service) entryStage(ctx context.Context, params CreateParams) (pipelinerepo.Pipeline, pipelinerepo.Stage, error) {
	var pipeline pipelinerepo.Pipeline
	var err error
	if params.PipelineID != nil {
		stages, stErr := s.graph.StagesFor(ctx, *params.PipelineID)
		if stErr != nil {
			return pipelinerepo.Pipeline{}, pipelinerepo.Stage{}, stErr
		}
		if len(stages) == 0 {
			return pipelinerepo.Pipeline{}, pipelinerepo.Stage{}, apperr.Conflict("pipeline has no stages")
		}
		return pipelinerepo.Pipeline{ID: *params.PipelineID, Module: params.Module}, stages[0], nil
	}

	pipeline, err = s.graph.DefaultPipeline(ctx, params.Module)
	if err != nil {
		return pipelinerepo.Pipeline{}, pipelinerepo.Stage{}, err
	}
	stages, err := s.graph.StagesFor(ctx, pipeline.ID)
	if err != nil {
		return pipelinerepo.Pipeline{}, pipelinerepo.Stage{}, err
	}
	if len(stages) == 0 {
		return pipelinerepo.Pipeline{}, pipelinerepo.Stage{}, apperr.Conflict("pipeline has no stages")
	}
	return pipeline, stages[0], nil
}

// applyScore refreshes score, breakdown, and priority on the record.
func (s *Service) applyScore(ctx context.Context, record *domain.Record) error {
	if s.scorer == nil {
		return fmt.Errorf("scorer not wired")
	}
	result, err := s.scorer.Score(ctx, record.Module, record.Fields())
	if err != nil {
		return fmt.Errorf("score record: %w", err)
	}
	record.Score = result.Total
	record.ScoreBreakdown = result.Breakdown

	priority, err := s.priorities.Resolve(ctx, record.Module, result.Total)
	if err != nil {
		return fmt.Errorf("resolve priority: %w", err)
	}
	if priority != nil {
		record.PriorityID = &priority.ID
	} else {
		record.PriorityID = nil
	}
	return nil
}

// applyTerminalTimestamps freezes the record when it lands on a won or lost
// stage. Leads convert or disqualify; opportunities win or lose.
func (s *Service) applyTerminalTimestamps(record *domain.Record, stage pipelinerepo.Stage) {
	if !stage.IsWon && !stage.IsLost {
		return
	}
	now := s.now()
	switch record.Module {
	case domain.ModuleLeads:
		if stage.IsWon {
			record.ConvertedAt = &now
		} else {
			record.DisqualifiedAt = &now
		}
	case domain.ModuleOpportunities:
		if stage.IsWon {
			record.WonAt = &now
		} else {
			record.LostAt = &now
		}
	}
}

// audit failures are logged, never surfaced; the trail is best effort.
func (s *Service) audit(ctx context.Context, entry repository.AuditEntry) {
	if err := s.repo.AddAudit(ctx, entry); err != nil && s.log != nil {
		s.log.Warn("audit write failed", "recordId", entry.RecordID, "action", entry.Action, "error", err)
	}
}
