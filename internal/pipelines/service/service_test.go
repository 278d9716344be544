package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"salesdesk_backend/internal/pipelines/repository"
	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/platform/apperr"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	pipelines    map[uuid.UUID]repository.Pipeline
	stages       map[uuid.UUID][]repository.Stage
	requirements map[uuid.UUID][]repository.FieldRequirement
	hasRecords   map[uuid.UUID]bool
	reqErr       error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pipelines:    map[uuid.UUID]repository.Pipeline{},
		stages:       map[uuid.UUID][]repository.Stage{},
		requirements: map[uuid.UUID][]repository.FieldRequirement{},
		hasRecords:   map[uuid.UUID]bool{},
	}
}

func (f *fakeRepo) GetPipeline(_ context.Context, id uuid.UUID) (repository.Pipeline, error) {
	p, ok := f.pipelines[id]
	if !ok {
		return repository.Pipeline{}, apperr.NotFound("pipeline not found")
	}
	return p, nil
}

func (f *fakeRepo) ListPipelines(_ context.Context, module domain.Module) ([]repository.Pipeline, error) {
	var out []repository.Pipeline
	for _, p := range f.pipelines {
		if p.Module == module {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) DefaultPipeline(_ context.Context, module domain.Module) (repository.Pipeline, error) {
	for _, p := range f.pipelines {
		if p.Module == module && p.IsDefault {
			return p, nil
		}
	}
	return repository.Pipeline{}, apperr.NotFound("pipeline not found")
}

func (f *fakeRepo) GetStage(_ context.Context, id uuid.UUID) (repository.Stage, error) {
	for _, stages := range f.stages {
		for _, s := range stages {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return repository.Stage{}, apperr.NotFound("stage not found")
}

func (f *fakeRepo) ListStages(_ context.Context, pipelineID uuid.UUID) ([]repository.Stage, error) {
	return f.stages[pipelineID], nil
}

func (f *fakeRepo) ListFieldRequirements(_ context.Context, stageID uuid.UUID) ([]repository.FieldRequirement, error) {
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return f.requirements[stageID], nil
}

func (f *fakeRepo) PipelineHasRecords(_ context.Context, pipelineID uuid.UUID) (bool, error) {
	return f.hasRecords[pipelineID], nil
}

func (f *fakeRepo) CreatePipeline(_ context.Context, params repository.CreatePipelineParams) (repository.Pipeline, error) {
	p := repository.Pipeline{ID: uuid.New(), Module: params.Module, Name: params.Name, IsDefault: params.IsDefault}
	if params.IsDefault {
		for id, existing := range f.pipelines {
			if existing.Module == params.Module && existing.IsDefault {
				existing.IsDefault = false
				f.pipelines[id] = existing
			}
		}
	}
	f.pipelines[p.ID] = p
	return p, nil
}

func (f *fakeRepo) UpdatePipeline(_ context.Context, params repository.UpdatePipelineParams) (repository.Pipeline, error) {
	p, ok := f.pipelines[params.ID]
	if !ok {
		return repository.Pipeline{}, apperr.NotFound("pipeline not found")
	}
	if params.Name != nil {
		p.Name = *params.Name
	}
	f.pipelines[params.ID] = p
	return p, nil
}

func (f *fakeRepo) DeletePipeline(_ context.Context, id uuid.UUID) error {
	delete(f.pipelines, id)
	return nil
}

func (f *fakeRepo) SetDefaultPipeline(_ context.Context, id uuid.UUID, module domain.Module) error {
	for pid, existing := range f.pipelines {
		if existing.Module == module {
			existing.IsDefault = pid == id
			f.pipelines[pid] = existing
		}
	}
	return nil
}

func (f *fakeRepo) CreateStage(_ context.Context, params repository.CreateStageParams) (repository.Stage, error) {
	s := repository.Stage{
		ID:         uuid.New(),
		PipelineID: params.PipelineID,
		Module:     params.Module,
		Name:       params.Name,
		Slug:       params.Slug,
		SortOrder:  len(f.stages[params.PipelineID]),
		IsWon:      params.IsWon,
		IsLost:     params.IsLost,
	}
	f.stages[params.PipelineID] = append(f.stages[params.PipelineID], s)
	return s, nil
}

func (f *fakeRepo) UpdateStage(_ context.Context, params repository.UpdateStageParams) (repository.Stage, error) {
	for pid, stages := range f.stages {
		for i, s := range stages {
			if s.ID == params.ID {
				if params.Name != nil {
					s.Name = *params.Name
				}
				f.stages[pid][i] = s
				return s, nil
			}
		}
	}
	return repository.Stage{}, apperr.NotFound("stage not found")
}

func (f *fakeRepo) DeleteStage(_ context.Context, id uuid.UUID) error {
	for pid, stages := range f.stages {
		for i, s := range stages {
			if s.ID == id {
				f.stages[pid] = append(stages[:i], stages[i+1:]...)
				return nil
			}
		}
	}
	return apperr.NotFound("stage not found")
}

func (f *fakeRepo) ReorderStages(_ context.Context, pipelineID uuid.UUID, orderedIDs []uuid.UUID) error {
	byID := map[uuid.UUID]repository.Stage{}
	for _, s := range f.stages[pipelineID] {
		byID[s.ID] = s
	}
	out := make([]repository.Stage, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		s := byID[id]
		s.SortOrder = i
		out = append(out, s)
	}
	f.stages[pipelineID] = out
	return nil
}

func (f *fakeRepo) ReplaceFieldRequirements(_ context.Context, stageID uuid.UUID, requirements []repository.FieldRequirement) error {
	f.requirements[stageID] = requirements
	return nil
}

var _ repository.Repository = (*fakeRepo)(nil)

func seedPipeline(repo *fakeRepo, stageNames ...string) (repository.Pipeline, []repository.Stage) {
	p := repository.Pipeline{ID: uuid.New(), Module: domain.ModuleLeads, Name: "Sales", IsDefault: true}
	repo.pipelines[p.ID] = p

	stages := make([]repository.Stage, 0, len(stageNames))
	for i, name := range stageNames {
		stages = append(stages, repository.Stage{
			ID:         uuid.New(),
			PipelineID: p.ID,
			Module:     domain.ModuleLeads,
			Name:       name,
			SortOrder:  i,
		})
	}
	repo.stages[p.ID] = stages
	return p, stages
}

func TestIsBackward_Classification(t *testing.T) {
	repo := newFakeRepo()
	p, stages := seedPipeline(repo, "New", "Qualified", "Proposal")
	svc := New(repo, nil)

	backward, err := svc.IsBackward(context.Background(), p.ID, stages[2].ID, stages[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !backward {
		t.Fatal("moving from later to earlier stage must be backward")
	}

	backward, err = svc.IsBackward(context.Background(), p.ID, stages[0].ID, stages[2].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backward {
		t.Fatal("moving forward must not be classified as backward")
	}
}

func TestIsBackward_ForeignStageIsNotFound(t *testing.T) {
	repo := newFakeRepo()
	p, stages := seedPipeline(repo, "New", "Qualified")
	svc := New(repo, nil)

	_, err := svc.IsBackward(context.Background(), p.ID, stages[0].ID, uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for a foreign stage, got %v", err)
	}
}

func TestMissingRequiredFields_OrderedAndPermissive(t *testing.T) {
	repo := newFakeRepo()
	_, stages := seedPipeline(repo, "New", "Qualified")
	stageID := stages[1].ID
	repo.requirements[stageID] = []repository.FieldRequirement{
		{StageID: stageID, FieldKey: "email", FieldLabel: "E-mail", IsRequired: true, DisplayOrder: 0},
		{StageID: stageID, FieldKey: "qualification.budget", FieldLabel: "Budget", IsRequired: true, DisplayOrder: 1},
		{StageID: stageID, FieldKey: "custom.notes", FieldLabel: "Notes", IsRequired: false, DisplayOrder: 2},
	}
	svc := New(repo, nil)

	fields := rules.Fields{
		System:        map[string]any{"email": "  "},
		Qualification: map[string]any{"budget": 0},
	}

	missing := svc.MissingRequiredFields(context.Background(), stageID, fields)
	if len(missing) != 1 {
		t.Fatalf("expected 1 missing field, got %d", len(missing))
	}
	if missing[0].FieldKey != "email" {
		t.Fatalf("expected email to be missing, got %s", missing[0].FieldKey)
	}
}

func TestMissingRequiredFields_FailsOpenOnStorageError(t *testing.T) {
	repo := newFakeRepo()
	_, stages := seedPipeline(repo, "New", "Qualified")
	repo.reqErr = errors.New("storage down")
	svc := New(repo, nil)

	missing := svc.MissingRequiredFields(context.Background(), stages[1].ID, rules.Fields{})
	if missing != nil {
		t.Fatalf("gate must fail open on storage errors, got %v", missing)
	}
}

func TestCreatePipeline_DefaultMovesFlag(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil)

	first, err := svc.CreatePipeline(context.Background(), domain.ModuleLeads, "First", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = svc.CreatePipeline(context.Background(), domain.ModuleLeads, "Second", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.pipelines[first.ID].IsDefault {
		t.Fatal("creating a new default must clear the previous default")
	}
}

func TestDeletePipeline_Conflicts(t *testing.T) {
	repo := newFakeRepo()
	p, _ := seedPipeline(repo, "New")
	svc := New(repo, nil)

	if err := svc.DeletePipeline(context.Background(), p.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("deleting the default pipeline must conflict, got %v", err)
	}

	other, _ := svc.CreatePipeline(context.Background(), domain.ModuleLeads, "Other", false)
	repo.hasRecords[other.ID] = true
	if err := svc.DeletePipeline(context.Background(), other.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("deleting a referenced pipeline must conflict, got %v", err)
	}
}

func TestCreateStage_SingleWonStage(t *testing.T) {
	repo := newFakeRepo()
	p, _ := seedPipeline(repo, "New")
	repo.stages[p.ID] = append(repo.stages[p.ID], repository.Stage{
		ID: uuid.New(), PipelineID: p.ID, Module: domain.ModuleLeads, Name: "Won", SortOrder: 1, IsWon: true,
	})
	svc := New(repo, nil)

	_, err := svc.CreateStage(context.Background(), repository.CreateStageParams{
		PipelineID: p.ID,
		Name:       "Also Won",
		IsWon:      true,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for second won stage, got %v", err)
	}
}

func TestReorderStages_Validation(t *testing.T) {
	repo := newFakeRepo()
	p, stages := seedPipeline(repo, "New", "Qualified", "Proposal")
	svc := New(repo, nil)

	err := svc.ReorderStages(context.Background(), p.ID, []uuid.UUID{stages[0].ID, stages[1].ID})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("partial reorder must be rejected, got %v", err)
	}

	err = svc.ReorderStages(context.Background(), p.ID, []uuid.UUID{stages[2].ID, stages[0].ID, stages[1].ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reordered, _ := repo.ListStages(context.Background(), p.ID)
	if reordered[0].ID != stages[2].ID || reordered[0].SortOrder != 0 {
		t.Fatalf("expected dense rewrite starting at 0, got %+v", reordered[0])
	}
}
