package engine

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/routing/repository"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
)

type fakeSource struct {
	rules   []repository.Rule
	indexes map[uuid.UUID]int
	// contested makes the first CAS attempt for a rule fail, simulating a
	// concurrent intake advancing the counter.
	contested map[uuid.UUID]int
}

func newFakeSource(ruleSet ...repository.Rule) *fakeSource {
	return &fakeSource{
		rules:     ruleSet,
		indexes:   map[uuid.UUID]int{},
		contested: map[uuid.UUID]int{},
	}
}

func (f *fakeSource) ListActive(_ context.Context, module domain.Module) ([]repository.Rule, error) {
	var out []repository.Rule
	for _, rule := range f.rules {
		if rule.Module == module && rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeSource) RoundRobinIndex(_ context.Context, ruleID uuid.UUID) (int, error) {
	return f.indexes[ruleID], nil
}

func (f *fakeSource) ClaimRoundRobinSlot(_ context.Context, ruleID uuid.UUID, expected, next int) (bool, error) {
	if f.contested[ruleID] > 0 {
		f.contested[ruleID]--
		f.indexes[ruleID]++
		return false, nil
	}
	if f.indexes[ruleID] != expected {
		return false, nil
	}
	f.indexes[ruleID] = next
	return true, nil
}

type fakeLeads struct {
	leads map[uuid.UUID]uuid.UUID
}

func (f *fakeLeads) TeamLeadID(_ context.Context, teamID uuid.UUID) (uuid.UUID, error) {
	lead, ok := f.leads[teamID]
	if !ok {
		return uuid.Nil, apperr.NotFound("team has no active lead")
	}
	return lead, nil
}

func testEngine(source *fakeSource, leads *fakeLeads) *Engine {
	if leads == nil {
		leads = &fakeLeads{leads: map[uuid.UUID]uuid.UUID{}}
	}
	return NewWithRand(source, leads, logger.New("test"), rand.New(rand.NewSource(1)))
}

func activeRule(name string, priority int, conditions []repository.Condition) repository.Rule {
	return repository.Rule{
		ID:         uuid.New(),
		Module:     domain.ModuleLeads,
		Name:       name,
		Priority:   priority,
		IsActive:   true,
		Conditions: conditions,
	}
}

func TestAssign_FirstMatchingPriorityWins(t *testing.T) {
	userA, userB := uuid.New(), uuid.New()

	low := activeRule("low", 10, nil)
	low.AssignmentType = repository.AssignSpecificUser
	low.AssigneeID = &userB

	high := activeRule("high", 1, []repository.Condition{
		{FieldKey: "source", Operator: rules.OpEquals, Value: rules.StringValue("web")},
	})
	high.AssignmentType = repository.AssignSpecificUser
	high.AssigneeID = &userA

	eng := testEngine(newFakeSource(high, low), nil)
	fields := rules.Fields{System: map[string]any{"source": "web"}}

	got, err := eng.Assign(context.Background(), domain.ModuleLeads, fields, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != userA || got.RuleName != "high" {
		t.Fatalf("expected the lower priority number to win, got %+v", got)
	}
}

func TestAssign_ConditionsAreConjunctive(t *testing.T) {
	userA := uuid.New()
	rule := activeRule("both", 1, []repository.Condition{
		{FieldKey: "source", Operator: rules.OpEquals, Value: rules.StringValue("web")},
		{FieldKey: "qualification.budget", Operator: rules.OpGreaterThan, Value: rules.NumberValue(1000)},
	})
	rule.AssignmentType = repository.AssignSpecificUser
	rule.AssigneeID = &userA

	eng := testEngine(newFakeSource(rule), nil)
	creator := uuid.New()

	fields := rules.Fields{System: map[string]any{"source": "web"}}
	got, err := eng.Assign(context.Background(), domain.ModuleLeads, fields, creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != creator {
		t.Fatal("a rule with one failing condition must not fire")
	}

	fields.Qualification = map[string]any{"budget": 5000}
	got, err = eng.Assign(context.Background(), domain.ModuleLeads, fields, creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != userA {
		t.Fatal("a rule with all conditions holding must fire")
	}
}

func TestAssign_FallsBackToCreator(t *testing.T) {
	eng := testEngine(newFakeSource(), nil)
	creator := uuid.New()

	got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != creator || got.RuleID != nil {
		t.Fatalf("expected creator fallback, got %+v", got)
	}
}

func TestAssign_TeamLead(t *testing.T) {
	teamID, leadID := uuid.New(), uuid.New()
	rule := activeRule("to lead", 1, nil)
	rule.AssignmentType = repository.AssignTeamLead
	rule.TeamID = &teamID

	eng := testEngine(newFakeSource(rule), &fakeLeads{leads: map[uuid.UUID]uuid.UUID{teamID: leadID}})

	got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != leadID {
		t.Fatalf("expected the team lead, got %+v", got)
	}
}

func TestAssign_LeadlessTeamFallsThrough(t *testing.T) {
	teamID := uuid.New()
	rule := activeRule("to lead", 1, nil)
	rule.AssignmentType = repository.AssignTeamLead
	rule.TeamID = &teamID

	eng := testEngine(newFakeSource(rule), nil)
	creator := uuid.New()

	got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != creator {
		t.Fatal("an unresolvable rule target must fall through to the creator")
	}
}

func TestAssign_RoundRobinRotates(t *testing.T) {
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	rule := activeRule("rotate", 1, nil)
	rule.AssignmentType = repository.AssignRoundRobin
	rule.Pool = []repository.PoolMember{{UserID: u1}, {UserID: u2}, {UserID: u3}}

	source := newFakeSource(rule)
	eng := testEngine(source, nil)

	want := []uuid.UUID{u1, u2, u3, u1, u2, u3, u1}
	for i, expected := range want {
		got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, uuid.New())
		if err != nil {
			t.Fatalf("assignment %d: unexpected error: %v", i, err)
		}
		if got.OwnerID != expected {
			t.Fatalf("assignment %d: expected pool rotation, got wrong owner", i)
		}
	}
}

func TestAssign_RoundRobinRetriesContention(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	rule := activeRule("rotate", 1, nil)
	rule.AssignmentType = repository.AssignRoundRobin
	rule.Pool = []repository.PoolMember{{UserID: u1}, {UserID: u2}}

	source := newFakeSource(rule)
	source.contested[rule.ID] = 2
	eng := testEngine(source, nil)

	got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, uuid.New())
	if err != nil {
		t.Fatalf("bounded retries must absorb light contention: %v", err)
	}
	if got.OwnerID != u1 && got.OwnerID != u2 {
		t.Fatalf("expected a pool member, got %+v", got)
	}

	source.contested[rule.ID] = claimRetries + 1
	_, err = eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, uuid.New())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("exhausted retries must conflict, got %v", err)
	}
}

func TestAssign_WeightedRespectsWeights(t *testing.T) {
	heavy, light := uuid.New(), uuid.New()
	rule := activeRule("weighted", 1, nil)
	rule.AssignmentType = repository.AssignWeighted
	rule.Pool = []repository.PoolMember{
		{UserID: heavy, Weight: 9},
		{UserID: light, Weight: 1},
	}

	eng := testEngine(newFakeSource(rule), nil)

	counts := map[uuid.UUID]int{}
	for i := 0; i < 1000; i++ {
		got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, uuid.New())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[got.OwnerID]++
	}

	if counts[heavy] <= counts[light] {
		t.Fatalf("weight 9 must dominate weight 1: %d vs %d", counts[heavy], counts[light])
	}
	if counts[light] == 0 {
		t.Fatal("a positive weight must still win sometimes")
	}
}

func TestAssign_InactiveRuleSkipped(t *testing.T) {
	userA := uuid.New()
	rule := activeRule("off", 1, nil)
	rule.IsActive = false
	rule.AssignmentType = repository.AssignSpecificUser
	rule.AssigneeID = &userA

	eng := testEngine(newFakeSource(rule), nil)
	creator := uuid.New()

	got, err := eng.Assign(context.Background(), domain.ModuleLeads, rules.Fields{}, creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != creator {
		t.Fatal("inactive rules must not route")
	}
}
