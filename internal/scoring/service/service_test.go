package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/internal/scoring/repository"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
)

type fakeRepo struct {
	templates map[uuid.UUID]repository.Template
	rulesByT  map[uuid.UUID][]repository.Rule
	jobs      map[uuid.UUID]*repository.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		templates: map[uuid.UUID]repository.Template{},
		rulesByT:  map[uuid.UUID][]repository.Rule{},
		jobs:      map[uuid.UUID]*repository.Job{},
	}
}

func (f *fakeRepo) GetTemplate(_ context.Context, id uuid.UUID) (repository.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return repository.Template{}, apperr.NotFound("score template not found")
	}
	return t, nil
}

func (f *fakeRepo) ListTemplates(_ context.Context, module domain.Module) ([]repository.Template, error) {
	var out []repository.Template
	for _, t := range f.templates {
		if t.Module == module {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ActiveTemplate(_ context.Context, module domain.Module) (repository.Template, error) {
	for _, t := range f.templates {
		if t.Module == module && t.IsActive {
			return t, nil
		}
	}
	return repository.Template{}, apperr.NotFound("score template not found")
}

func (f *fakeRepo) CreateTemplate(_ context.Context, params repository.CreateTemplateParams) (repository.Template, error) {
	t := repository.Template{ID: uuid.New(), Module: params.Module, Name: params.Name, MaxScore: params.MaxScore, IsActive: params.IsActive}
	if params.IsActive {
		for id, existing := range f.templates {
			if existing.Module == params.Module && existing.IsActive {
				existing.IsActive = false
				f.templates[id] = existing
			}
		}
	}
	f.templates[t.ID] = t
	return t, nil
}

func (f *fakeRepo) UpdateTemplate(_ context.Context, params repository.UpdateTemplateParams) (repository.Template, error) {
	t, ok := f.templates[params.ID]
	if !ok {
		return repository.Template{}, apperr.NotFound("score template not found")
	}
	if params.Name != nil {
		t.Name = *params.Name
	}
	if params.MaxScore != nil {
		t.MaxScore = *params.MaxScore
	}
	f.templates[params.ID] = t
	return t, nil
}

func (f *fakeRepo) DeleteTemplate(_ context.Context, id uuid.UUID) error {
	delete(f.templates, id)
	return nil
}

func (f *fakeRepo) ActivateTemplate(_ context.Context, id uuid.UUID, module domain.Module) error {
	for tid, t := range f.templates {
		if t.Module == module {
			t.IsActive = tid == id
			f.templates[tid] = t
		}
	}
	return nil
}

func (f *fakeRepo) GetRule(_ context.Context, id uuid.UUID) (repository.Rule, error) {
	for _, ruleSet := range f.rulesByT {
		for _, rule := range ruleSet {
			if rule.ID == id {
				return rule, nil
			}
		}
	}
	return repository.Rule{}, apperr.NotFound("score rule not found")
}

func (f *fakeRepo) ListRules(_ context.Context, templateID uuid.UUID) ([]repository.Rule, error) {
	return f.rulesByT[templateID], nil
}

func (f *fakeRepo) CreateRule(_ context.Context, params repository.CreateRuleParams) (repository.Rule, error) {
	rule := repository.Rule{
		ID:         uuid.New(),
		TemplateID: params.TemplateID,
		Name:       params.Name,
		FieldKey:   params.FieldKey,
		Operator:   params.Operator,
		Value:      params.Value,
		Points:     params.Points,
		SortOrder:  params.SortOrder,
		IsActive:   true,
	}
	f.rulesByT[params.TemplateID] = append(f.rulesByT[params.TemplateID], rule)
	return rule, nil
}

func (f *fakeRepo) UpdateRule(_ context.Context, params repository.UpdateRuleParams) (repository.Rule, error) {
	for tid, ruleSet := range f.rulesByT {
		for i, rule := range ruleSet {
			if rule.ID == params.ID {
				if params.Operator != nil {
					rule.Operator = *params.Operator
				}
				if params.SetValue {
					rule.Value = params.Value
				}
				f.rulesByT[tid][i] = rule
				return rule, nil
			}
		}
	}
	return repository.Rule{}, apperr.NotFound("score rule not found")
}

func (f *fakeRepo) DeleteRule(_ context.Context, id uuid.UUID) error { return nil }

func (f *fakeRepo) CreateJob(_ context.Context, module domain.Module, requestedBy uuid.UUID) (repository.Job, error) {
	job := &repository.Job{ID: uuid.New(), Module: module, Status: repository.JobStatusPending, RequestedBy: requestedBy}
	f.jobs[job.ID] = job
	return *job, nil
}

func (f *fakeRepo) GetJob(_ context.Context, id uuid.UUID) (repository.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return repository.Job{}, apperr.NotFound("rescore job not found")
	}
	return *job, nil
}

func (f *fakeRepo) MarkJobRunning(_ context.Context, id uuid.UUID) error {
	job := f.jobs[id]
	if job.Status != repository.JobStatusPending && job.Status != repository.JobStatusRunning {
		return apperr.Conflict("rescore job is not runnable")
	}
	job.Status = repository.JobStatusRunning
	return nil
}

func (f *fakeRepo) UpdateJobProgress(_ context.Context, id uuid.UUID, processed, skipped int) error {
	job := f.jobs[id]
	job.Processed = processed
	job.Skipped = skipped
	return nil
}

func (f *fakeRepo) FinishJob(_ context.Context, id uuid.UUID, status string, processed, skipped int) error {
	job := f.jobs[id]
	job.Status = status
	job.Processed = processed
	job.Skipped = skipped
	return nil
}

func (f *fakeRepo) RequestCancel(_ context.Context, id uuid.UUID) error {
	f.jobs[id].CancelRequested = true
	return nil
}

var _ repository.Repository = (*fakeRepo)(nil)

type fakeRecordStore struct {
	mu          sync.Mutex
	records     []domain.Record
	failIDs     map[uuid.UUID]bool
	updated     map[uuid.UUID]int
	cancelAfter int
	repo        *fakeRepo
	jobID       uuid.UUID
	pages       int
}

func (f *fakeRecordStore) ListScoringPage(_ context.Context, module domain.Module, afterID uuid.UUID, limit int) ([]domain.Record, error) {
	f.pages++
	start := 0
	if afterID != uuid.Nil {
		for i, r := range f.records {
			if r.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	if start >= end {
		return nil, nil
	}
	return f.records[start:end], nil
}

func (f *fakeRecordStore) UpdateScore(_ context.Context, id uuid.UUID, version int, score int, breakdown map[string]int, priorityID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return apperr.Conflict("record version changed")
	}
	if f.updated == nil {
		f.updated = map[uuid.UUID]int{}
	}
	f.updated[id] = score
	if f.cancelAfter > 0 && len(f.updated) >= f.cancelAfter && f.repo != nil {
		f.repo.jobs[f.jobID].CancelRequested = true
	}
	return nil
}

type fakeResolver struct{}

func (fakeResolver) ResolvePriorityID(_ context.Context, _ domain.Module, _ int) (*uuid.UUID, error) {
	return nil, nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
	fail     bool
}

func (f *fakeEnqueuer) EnqueueRescore(_ context.Context, jobID uuid.UUID, _ domain.Module) error {
	if f.fail {
		return apperr.Internal("redis unavailable")
	}
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New("test")
}

func seedActiveTemplate(repo *fakeRepo) repository.Template {
	template, _ := repo.CreateTemplate(context.Background(), repository.CreateTemplateParams{
		Module:   domain.ModuleLeads,
		Name:     "Default",
		MaxScore: 100,
		IsActive: true,
	})
	_, _ = repo.CreateRule(context.Background(), repository.CreateRuleParams{
		TemplateID: template.ID,
		Name:       "has email",
		FieldKey:   "email",
		Operator:   rules.OpIsNotEmpty,
		Value:      rules.StringValue(""),
		Points:     10,
	})
	return template
}

func seedRecords(n int) []domain.Record {
	email := "a@b.example"
	out := make([]domain.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Record{
			ID:     uuid.New(),
			Module: domain.ModuleLeads,
			Email:  &email,
		})
	}
	return out
}

func TestCreateRule_RejectsMismatchedComparand(t *testing.T) {
	repo := newFakeRepo()
	template := seedActiveTemplate(repo)
	svc := New(repo, nil, fakeResolver{}, &fakeEnqueuer{}, 10, testLogger())

	_, err := svc.CreateRule(context.Background(), repository.CreateRuleParams{
		TemplateID: template.ID,
		Name:       "bad",
		FieldKey:   "score",
		Operator:   rules.OpGreaterThan,
		Value:      rules.StringValue("fifty"),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("greater_than with a string comparand must be rejected, got %v", err)
	}

	_, err = svc.CreateRule(context.Background(), repository.CreateRuleParams{
		TemplateID: template.ID,
		Name:       "bad list",
		FieldKey:   "source",
		Operator:   rules.OpIn,
		Value:      rules.ListValue([]string(nil)...),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("in with an empty list must be rejected, got %v", err)
	}
}

func TestScore_NoActiveTemplateIsZero(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, fakeResolver{}, &fakeEnqueuer{}, 10, testLogger())

	result, err := svc.Score(context.Background(), domain.ModuleLeads, rules.Fields{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 0 {
		t.Fatalf("expected zero total without a template, got %d", result.Total)
	}
}

func TestRequestRescore_EnqueuesJob(t *testing.T) {
	repo := newFakeRepo()
	enq := &fakeEnqueuer{}
	svc := New(repo, nil, fakeResolver{}, enq, 10, testLogger())

	job, err := svc.RequestRescore(context.Background(), domain.ModuleLeads, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != repository.JobStatusPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}
	if len(enq.enqueued) != 1 || enq.enqueued[0] != job.ID {
		t.Fatalf("expected job enqueued, got %v", enq.enqueued)
	}
}

func TestRequestRescoreForTemplate_UsesTemplateModule(t *testing.T) {
	repo := newFakeRepo()
	template := seedActiveTemplate(repo)
	enq := &fakeEnqueuer{}
	svc := New(repo, nil, fakeResolver{}, enq, 10, testLogger())

	job, err := svc.RequestRescoreForTemplate(context.Background(), template.ID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Module != domain.ModuleLeads {
		t.Fatalf("expected job for the template's module, got %s", job.Module)
	}

	_, err = svc.RequestRescoreForTemplate(context.Background(), uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown template must be not found, got %v", err)
	}
}

func TestRequestRescore_EnqueueFailureFailsJob(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, nil, fakeResolver{}, &fakeEnqueuer{fail: true}, 10, testLogger())

	_, err := svc.RequestRescore(context.Background(), domain.ModuleLeads, uuid.New())
	if err == nil {
		t.Fatal("expected error when enqueue fails")
	}
	for _, job := range repo.jobs {
		if job.Status != repository.JobStatusFailed {
			t.Fatalf("expected job marked failed, got %s", job.Status)
		}
	}
}

func TestRunRescore_PagesAndSkips(t *testing.T) {
	repo := newFakeRepo()
	seedActiveTemplate(repo)
	records := seedRecords(5)
	store := &fakeRecordStore{
		records: records,
		failIDs: map[uuid.UUID]bool{records[2].ID: true},
	}
	svc := New(repo, store, fakeResolver{}, &fakeEnqueuer{}, 2, testLogger())

	job, _ := repo.CreateJob(context.Background(), domain.ModuleLeads, uuid.New())
	if err := svc.RunRescore(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := *repo.jobs[job.ID]
	if final.Status != repository.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Processed != 4 || final.Skipped != 1 {
		t.Fatalf("expected 4 processed and 1 skipped, got %d/%d", final.Processed, final.Skipped)
	}
	if store.pages < 3 {
		t.Fatalf("expected paging with size 2 over 5 records, got %d pages", store.pages)
	}
	if store.updated[records[0].ID] != 10 {
		t.Fatalf("expected rescored total 10, got %d", store.updated[records[0].ID])
	}
}

func TestRunRescore_SkipsTerminalRecords(t *testing.T) {
	repo := newFakeRepo()
	seedActiveTemplate(repo)
	records := seedRecords(3)
	now := records[0].CreatedAt
	records[1].WonAt = &now
	store := &fakeRecordStore{records: records}
	svc := New(repo, store, fakeResolver{}, &fakeEnqueuer{}, 10, testLogger())

	job, _ := repo.CreateJob(context.Background(), domain.ModuleLeads, uuid.New())
	if err := svc.RunRescore(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.updated[records[1].ID]; ok {
		t.Fatal("terminal records must not be rescored")
	}
	if repo.jobs[job.ID].Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", repo.jobs[job.ID].Processed)
	}
}

func TestRunRescore_CancelBetweenPages(t *testing.T) {
	repo := newFakeRepo()
	seedActiveTemplate(repo)
	records := seedRecords(10)
	job, _ := repo.CreateJob(context.Background(), domain.ModuleLeads, uuid.New())
	store := &fakeRecordStore{
		records:     records,
		cancelAfter: 2,
		repo:        repo,
		jobID:       job.ID,
	}
	svc := New(repo, store, fakeResolver{}, &fakeEnqueuer{}, 2, testLogger())

	if err := svc.RunRescore(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := *repo.jobs[job.ID]
	if final.Status != repository.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
	if len(store.updated) >= len(records) {
		t.Fatal("cancel must stop the batch before the full set is rescored")
	}
}

func TestRunRescore_FinishedJobIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	seedActiveTemplate(repo)
	job, _ := repo.CreateJob(context.Background(), domain.ModuleLeads, uuid.New())
	repo.jobs[job.ID].Status = repository.JobStatusCompleted
	store := &fakeRecordStore{records: seedRecords(3)}
	svc := New(repo, store, fakeResolver{}, &fakeEnqueuer{}, 10, testLogger())

	if err := svc.RunRescore(context.Background(), job.ID); err != nil {
		t.Fatalf("re-delivery of a finished job must be a no-op, got %v", err)
	}
	if len(store.updated) != 0 {
		t.Fatal("finished job must not rescore records")
	}
}
