package service

import (
	"context"
	"testing"
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
)

// =============================================================================
// Fakes
// =============================================================================

type fakeRepo struct {
	records    map[uuid.UUID]domain.Record
	audit      []repository.AuditEntry
	duplicate  *domain.Record
	updateErr  error
	createSeen *domain.Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[uuid.UUID]domain.Record{}}
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (domain.Record, error) {
	record, ok := f.records[id]
	if !ok {
		return domain.Record{}, apperr.NotFound("record not found")
	}
	return record, nil
}

func (f *fakeRepo) List(_ context.Context, params repository.ListParams) ([]domain.Record, int, error) {
	var out []domain.Record
	for _, record := range f.records {
		if record.Module == params.Module {
			out = append(out, record)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) Create(_ context.Context, record *domain.Record) (domain.Record, error) {
	record.ID = uuid.New()
	record.Version = 1
	record.CreatedAt = time.Now()
	f.records[record.ID] = *record
	f.createSeen = record
	return *record, nil
}

func (f *fakeRepo) Update(_ context.Context, record *domain.Record) (domain.Record, error) {
	if f.updateErr != nil {
		return domain.Record{}, f.updateErr
	}
	stored, ok := f.records[record.ID]
	if !ok {
		return domain.Record{}, apperr.NotFound("record not found")
	}
	if stored.Version != record.Version {
		return domain.Record{}, apperr.Conflict("record was modified concurrently")
	}
	record.Version++
	f.records[record.ID] = *record
	return *record, nil
}

func (f *fakeRepo) UpdateScore(_ context.Context, id uuid.UUID, version, score int, breakdown map[string]int, priorityID *uuid.UUID) error {
	stored, ok := f.records[id]
	if !ok {
		return apperr.NotFound("record not found")
	}
	stored.Score = score
	stored.ScoreBreakdown = breakdown
	stored.PriorityID = priorityID
	stored.Version++
	f.records[id] = stored
	return nil
}

func (f *fakeRepo) ListScoringPage(_ context.Context, _ domain.Module, _ uuid.UUID, _ int) ([]domain.Record, error) {
	return nil, nil
}

func (f *fakeRepo) FindDuplicate(_ context.Context, _ domain.Module, email, phone *string) (*domain.Record, error) {
	if f.duplicate == nil || (email == nil && phone == nil) {
		return nil, nil
	}
	return f.duplicate, nil
}

func (f *fakeRepo) AddAudit(_ context.Context, entry repository.AuditEntry) error {
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeRepo) ListAudit(_ context.Context, recordID uuid.UUID) ([]repository.AuditEntry, error) {
	var out []repository.AuditEntry
	for _, entry := range f.audit {
		if entry.RecordID == recordID {
			out = append(out, entry)
		}
	}
	return out, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

type fakeGraph struct {
	pipeline pipelinerepo.Pipeline
	stages   []pipelinerepo.Stage
	missing  []pipelinerepo.FieldRequirement
}

func (f *fakeGraph) DefaultPipeline(_ context.Context, _ domain.Module) (pipelinerepo.Pipeline, error) {
	return f.pipeline, nil
}

func (f *fakeGraph) StagesFor(_ context.Context, _ uuid.UUID) ([]pipelinerepo.Stage, error) {
	return f.stages, nil
}

func (f *fakeGraph) GetStage(_ context.Context, stageID uuid.UUID) (pipelinerepo.Stage, error) {
	for _, stage := range f.stages {
		if stage.ID == stageID {
			return stage, nil
		}
	}
	return pipelinerepo.Stage{}, apperr.NotFound("stage not found")
}

func (f *fakeGraph) IsBackward(_ context.Context, _ uuid.UUID, fromStageID, toStageID uuid.UUID) (bool, error) {
	fromIndex, toIndex := -1, -1
	for index, stage := range f.stages {
		if stage.ID == fromStageID {
			fromIndex = index
		}
		if stage.ID == toStageID {
			toIndex = index
		}
	}
	if fromIndex < 0 || toIndex < 0 {
		return false, apperr.NotFound("stage does not belong to pipeline")
	}
	return toIndex < fromIndex, nil
}

func (f *fakeGraph) MissingRequiredFields(_ context.Context, _ uuid.UUID, fields rules.Fields) []pipelinerepo.FieldRequirement {
	var missing []pipelinerepo.FieldRequirement
	for _, requirement := range f.missing {
		value, _ := rules.Resolve(fields, requirement.FieldKey)
		if rules.IsEmpty(value) {
			missing = append(missing, requirement)
		}
	}
	return missing
}

type fakeScorer struct {
	total int
}

func (f *fakeScorer) Score(_ context.Context, _ domain.Module, _ rules.Fields) (scoringengine.Result, error) {
	return scoringengine.Result{Total: f.total, Breakdown: map[string]int{"fixed": f.total}}, nil
}

type fakePriorities struct {
	priority *priorityrepo.Priority
}

func (f *fakePriorities) Resolve(_ context.Context, _ domain.Module, _ int) (*priorityrepo.Priority, error) {
	return f.priority, nil
}

type fakeRouter struct {
	assignment routingengine.Assignment
	calls      int
}

func (f *fakeRouter) Assign(_ context.Context, _ domain.Module, _ rules.Fields, creatorID uuid.UUID) (routingengine.Assignment, error) {
	f.calls++
	if f.assignment.OwnerID == uuid.Nil {
		return routingengine.Assignment{OwnerID: creatorID}, nil
	}
	return f.assignment, nil
}

type fakeTeams struct {
	added []struct {
		RecordID uuid.UUID
		UserID   uuid.UUID
		Level    string
	}
}

func (f *fakeTeams) AddRecordMember(_ context.Context, recordID, userID uuid.UUID, accessLevel string) error {
	f.added = append(f.added, struct {
		RecordID uuid.UUID
		UserID   uuid.UUID
		Level    string
	}{recordID, userID, accessLevel})
	return nil
}

type fakeSettings struct {
	stages     settings.StageSettings
	conversion settings.ConversionSettings
	detection  settings.DuplicateDetectionSettings
}

func defaultFakeSettings() *fakeSettings {
	return &fakeSettings{
		stages:     settings.StageSettings{RequireUnlockReason: true, LockPreviousStages: true},
		conversion: settings.ConversionSettings{AddPreviousOwnerToTeam: true, PreviousOwnerAccessLevel: "viewer"},
		detection:  settings.DuplicateDetectionSettings{Enabled: true, MatchEmail: true, MatchPhone: true},
	}
}

func (f *fakeSettings) Stages(_ context.Context) (settings.StageSettings, error) {
	return f.stages, nil
}

func (f *fakeSettings) Conversion(_ context.Context) (settings.ConversionSettings, error) {
	return f.conversion, nil
}

func (f *fakeSettings) DuplicateDetection(_ context.Context) (settings.DuplicateDetectionSettings, error) {
	return f.detection, nil
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	graph    *fakeGraph
	router   *fakeRouter
	teams    *fakeTeams
	settings *fakeSettings
	stageNew uuid.UUID
	stageMid uuid.UUID
	stageWon uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pipelineID := uuid.New()
	stageNew := uuid.New()
	stageMid := uuid.New()
	stageWon := uuid.New()

	graph := &fakeGraph{
		pipeline: pipelinerepo.Pipeline{ID: pipelineID, Module: domain.ModuleLeads, IsDefault: true},
		stages: []pipelinerepo.Stage{
			{ID: stageNew, PipelineID: pipelineID, Name: "New", SortOrder: 0},
			{ID: stageMid, PipelineID: pipelineID, Name: "Qualified", SortOrder: 1},
			{ID: stageWon, PipelineID: pipelineID, Name: "Converted", SortOrder: 2, IsWon: true},
		},
	}

	repo := newFakeRepo()
	router := &fakeRouter{}
	teams := &fakeTeams{}
	settingsReader := defaultFakeSettings()

	svc := New(
		repo,
		graph,
		&fakeScorer{total: 40},
		&fakePriorities{},
		router,
		teams,
		settingsReader,
		events.NewInMemoryBus(logger.New("test")),
		"NL",
		logger.New("test"),
	)

	return &fixture{
		svc:      svc,
		repo:     repo,
		graph:    graph,
		router:   router,
		teams:    teams,
		settings: settingsReader,
		stageNew: stageNew,
		stageMid: stageMid,
		stageWon: stageWon,
	}
}

func (f *fixture) createRecord(t *testing.T, actorID uuid.UUID) domain.Record {
	t.Helper()
	email := "anna@example.com"
	record, err := f.svc.Create(context.Background(), actorID, CreateParams{
		Module: domain.ModuleLeads,
		Name:   "Anna de Vries",
		Email:  &email,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return record
}

// =============================================================================
// Tests
// =============================================================================

func TestCreatePlacesRecordOnFirstStageAndScores(t *testing.T) {
	f := newFixture(t)
	actorID := uuid.New()

	record := f.createRecord(t, actorID)

	if record.StageID != f.stageNew {
		t.Fatalf("expected first stage %s, got %s", f.stageNew, record.StageID)
	}
	if record.Score != 40 {
		t.Fatalf("expected score 40, got %d", record.Score)
	}
	if record.OwnerID != actorID {
		t.Fatalf("expected creator fallback owner, got %s", record.OwnerID)
	}
	if f.router.calls != 1 {
		t.Fatalf("expected one routing call, got %d", f.router.calls)
	}
	if len(f.repo.audit) != 1 || f.repo.audit[0].Action != repository.AuditCreated {
		t.Fatalf("expected a created audit entry, got %+v", f.repo.audit)
	}
}

func TestCreateRoutesToAssignedOwnerAndAudits(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	ruleID := uuid.New()
	f.router.assignment = routingengine.Assignment{OwnerID: ownerID, RuleID: &ruleID, RuleName: "high value"}

	record := f.createRecord(t, uuid.New())

	if record.OwnerID != ownerID {
		t.Fatalf("expected routed owner %s, got %s", ownerID, record.OwnerID)
	}
	if len(f.repo.audit) != 2 || f.repo.audit[1].Action != repository.AuditAssigned {
		t.Fatalf("expected created and assigned audit entries, got %+v", f.repo.audit)
	}
}

func TestCreateRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	existing := domain.Record{ID: uuid.New()}
	f.repo.duplicate = &existing

	email := "anna@example.com"
	_, err := f.svc.Create(context.Background(), uuid.New(), CreateParams{
		Module: domain.ModuleLeads,
		Name:   "Anna de Vries",
		Email:  &email,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateSkipsDuplicateCheckWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.repo.duplicate = &domain.Record{ID: uuid.New()}
	f.settings.detection.Enabled = false

	f.createRecord(t, uuid.New())
}

func TestCreateNormalizesPhone(t *testing.T) {
	f := newFixture(t)
	raw := "06 1234 5678"
	record, err := f.svc.Create(context.Background(), uuid.New(), CreateParams{
		Module: domain.ModuleLeads,
		Name:   "Anna de Vries",
		Phone:  &raw,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if record.Phone == nil || *record.Phone != "+31612345678" {
		t.Fatalf("expected normalized phone, got %v", record.Phone)
	}
}

func TestUpdateFieldsOnTerminalRecordConflicts(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	now := time.Now()
	stored := f.repo.records[record.ID]
	stored.ConvertedAt = &now
	f.repo.records[record.ID] = stored

	_, err := f.svc.UpdateFields(context.Background(), uuid.New(), record.ID, map[string]any{"name": "New Name"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on terminal record, got %v", err)
	}
}

func TestUpdateFieldsMergesAndRescores(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	updated, err := f.svc.UpdateFields(context.Background(), uuid.New(), record.ID, map[string]any{
		"qualification.budget": 50000.0,
		"company":              "Acme BV",
	})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if updated.Qualification["budget"] != 50000.0 {
		t.Fatalf("expected merged qualification, got %v", updated.Qualification)
	}
	if updated.Company == nil || *updated.Company != "Acme BV" {
		t.Fatalf("expected company edit, got %v", updated.Company)
	}
	if updated.Version != record.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
}

func TestChangeStageForwardSucceeds(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	updated, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", nil)
	if err != nil {
		t.Fatalf("ChangeStage: %v", err)
	}
	if updated.StageID != f.stageMid {
		t.Fatalf("expected stage %s, got %s", f.stageMid, updated.StageID)
	}
}

func TestChangeStageBackwardRequiresUnlockReason(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", nil); err != nil {
		t.Fatalf("forward move: %v", err)
	}

	_, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageNew, "", nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageNew, "customer asked to restart", nil); err != nil {
		t.Fatalf("backward move with reason: %v", err)
	}
}

func TestChangeStageBackwardWithoutReasonWhenNotRequired(t *testing.T) {
	f := newFixture(t)
	f.settings.stages.RequireUnlockReason = false
	record := f.createRecord(t, uuid.New())

	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", nil); err != nil {
		t.Fatalf("forward move: %v", err)
	}
	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageNew, "", nil); err != nil {
		t.Fatalf("backward move: %v", err)
	}
}

func TestChangeStageBackwardWithoutReasonWhenStagesUnlocked(t *testing.T) {
	f := newFixture(t)
	f.settings.stages.LockPreviousStages = false
	record := f.createRecord(t, uuid.New())

	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", nil); err != nil {
		t.Fatalf("forward move: %v", err)
	}
	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageNew, "", nil); err != nil {
		t.Fatalf("backward move: %v", err)
	}
}

func TestChangeStageGateBlocksOnMissingFields(t *testing.T) {
	f := newFixture(t)
	f.graph.missing = []pipelinerepo.FieldRequirement{
		{StageID: f.stageMid, FieldKey: "qualification.budget", FieldLabel: "Budget", IsRequired: true},
	}
	record := f.createRecord(t, uuid.New())

	_, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing fields, got %v", err)
	}

	// Supplying the field inline satisfies the gate in the same call.
	updated, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", map[string]any{
		"qualification.budget": 50000.0,
	})
	if err != nil {
		t.Fatalf("ChangeStage with supplied fields: %v", err)
	}
	if updated.Qualification["budget"] != 50000.0 {
		t.Fatalf("expected supplied field persisted, got %v", updated.Qualification)
	}
}

func TestChangeStageToWonFreezesLead(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	updated, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageWon, "", nil)
	if err != nil {
		t.Fatalf("ChangeStage: %v", err)
	}
	if updated.ConvertedAt == nil {
		t.Fatalf("expected convertedAt on a won lead stage")
	}
	if !updated.IsTerminal() {
		t.Fatalf("expected terminal record")
	}

	_, err = f.svc.ChangeStage(context.Background(), uuid.New(), updated.ID, f.stageMid, "reopen", nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict moving a terminal record, got %v", err)
	}
}

func TestChangeStageRejectsForeignStage(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	otherPipeline := uuid.New()
	foreign := uuid.New()
	f.graph.stages = append(f.graph.stages, pipelinerepo.Stage{ID: foreign, PipelineID: otherPipeline, Name: "Elsewhere"})

	_, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, foreign, "", nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for foreign stage, got %v", err)
	}
}

func TestAssignOwnerKeepsPreviousOwnerOnTeam(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	record := f.createRecord(t, creator)
	newOwner := uuid.New()

	updated, err := f.svc.AssignOwner(context.Background(), uuid.New(), record.ID, newOwner)
	if err != nil {
		t.Fatalf("AssignOwner: %v", err)
	}
	if updated.OwnerID != newOwner {
		t.Fatalf("expected owner %s, got %s", newOwner, updated.OwnerID)
	}
	if len(f.teams.added) != 1 {
		t.Fatalf("expected previous owner added to team, got %+v", f.teams.added)
	}
	if f.teams.added[0].UserID != creator || f.teams.added[0].Level != "viewer" {
		t.Fatalf("unexpected team grant %+v", f.teams.added[0])
	}
}

func TestAssignOwnerSkipsTeamGrantWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.settings.conversion.AddPreviousOwnerToTeam = false
	record := f.createRecord(t, uuid.New())

	if _, err := f.svc.AssignOwner(context.Background(), uuid.New(), record.ID, uuid.New()); err != nil {
		t.Fatalf("AssignOwner: %v", err)
	}
	if len(f.teams.added) != 0 {
		t.Fatalf("expected no team grant, got %+v", f.teams.added)
	}
}

func TestAuditTrailAccumulates(t *testing.T) {
	f := newFixture(t)
	record := f.createRecord(t, uuid.New())

	if _, err := f.svc.ChangeStage(context.Background(), uuid.New(), record.ID, f.stageMid, "", nil); err != nil {
		t.Fatalf("ChangeStage: %v", err)
	}
	if _, err := f.svc.AssignOwner(context.Background(), uuid.New(), record.ID, uuid.New()); err != nil {
		t.Fatalf("AssignOwner: %v", err)
	}

	trail, err := f.svc.Audit(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(trail))
	}
	actions := []string{trail[0].Action, trail[1].Action, trail[2].Action}
	want := []string{repository.AuditCreated, repository.AuditStageChanged, repository.AuditAssigned}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, actions)
		}
	}
}
