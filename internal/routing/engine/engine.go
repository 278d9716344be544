// Package engine picks an owner for incoming records by evaluating routing
// rules in priority order.
package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/routing/repository"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"
)

// claimRetries bounds the round robin compare-and-set loop under contention.
const claimRetries = 5

// RuleSource is the slice of the routing repository the engine needs.
type RuleSource interface {
	ListActive(ctx context.Context, module domain.Module) ([]repository.Rule, error)
	RoundRobinIndex(ctx context.Context, ruleID uuid.UUID) (int, error)
	ClaimRoundRobinSlot(ctx context.Context, ruleID uuid.UUID, expected, next int) (bool, error)
}

// TeamLeads resolves a team to its lead for team_lead assignment.
type TeamLeads interface {
	TeamLeadID(ctx context.Context, teamID uuid.UUID) (uuid.UUID, error)
}

// Assignment is the routing outcome. RuleID and RuleName are empty when the
// record fell back to its creator.
type Assignment struct {
	OwnerID  uuid.UUID
	RuleID   *uuid.UUID
	RuleName string
}

// Engine evaluates routing rules. The random source is injected so weighted
// assignment is testable.
type Engine struct {
	source RuleSource
	leads  TeamLeads
	log    *logger.Logger
	rng    *rand.Rand
	now    func() time.Time
}

// New creates a routing engine with a time-seeded random source.
func New(source RuleSource, leads TeamLeads, log *logger.Logger) *Engine {
	return NewWithRand(source, leads, log, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a routing engine with an explicit random source.
func NewWithRand(source RuleSource, leads TeamLeads, log *logger.Logger, rng *rand.Rand) *Engine {
	return &Engine{
		source: source,
		leads:  leads,
		log:    log,
		rng:    rng,
		now:    time.Now,
	}
}

// Assign walks the module's active rules in priority order and applies the
// first rule whose conditions all match. A rule whose assignment target
// cannot be resolved (inactive assignee, team without a lead, empty pool)
// is skipped rather than blocking intake. When no rule applies the creator
// keeps the record.
func (e *Engine) Assign(ctx context.Context, module domain.Module, fields rules.Fields, creatorID uuid.UUID) (Assignment, error) {
	activeRules, err := e.source.ListActive(ctx, module)
	if err != nil {
		return Assignment{}, err
	}

	now := e.now()
	for i := range activeRules {
		rule := &activeRules[i]
		if !e.matches(rule, fields, now) {
			continue
		}

		ownerID, err := e.resolveOwner(ctx, rule)
		if err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				return Assignment{}, err
			}
			if e.log != nil {
				e.log.Warn("routing rule target unresolvable, skipping", "ruleId", rule.ID, "error", err)
			}
			continue
		}

		return Assignment{OwnerID: ownerID, RuleID: &rule.ID, RuleName: rule.Name}, nil
	}

	return Assignment{OwnerID: creatorID}, nil
}

// matches requires every condition of the rule to hold.
func (e *Engine) matches(rule *repository.Rule, fields rules.Fields, now time.Time) bool {
	for _, condition := range rule.Conditions {
		resolved, _ := rules.Resolve(fields, condition.FieldKey)
		if !rules.Evaluate(condition.Operator, resolved, condition.Value, now) {
			return false
		}
	}
	return true
}

func (e *Engine) resolveOwner(ctx context.Context, rule *repository.Rule) (uuid.UUID, error) {
	switch rule.AssignmentType {
	case repository.AssignSpecificUser:
		if rule.AssigneeID == nil {
			return uuid.Nil, apperr.NotFound("rule has no assignee")
		}
		return *rule.AssigneeID, nil

	case repository.AssignTeamLead:
		if rule.TeamID == nil {
			return uuid.Nil, apperr.NotFound("rule has no team")
		}
		return e.leads.TeamLeadID(ctx, *rule.TeamID)

	case repository.AssignRoundRobin:
		return e.nextRoundRobin(ctx, rule)

	case repository.AssignWeighted:
		return e.pickWeighted(rule)

	default:
		return uuid.Nil, apperr.Validation("unknown assignment type")
	}
}

// nextRoundRobin claims the next rotation slot with bounded CAS retries.
// Exhausting the retries under heavy contention surfaces as a conflict so
// the caller can retry the whole intake.
func (e *Engine) nextRoundRobin(ctx context.Context, rule *repository.Rule) (uuid.UUID, error) {
	if len(rule.Pool) == 0 {
		return uuid.Nil, apperr.NotFound("rule has an empty pool")
	}

	for attempt := 0; attempt < claimRetries; attempt++ {
		index, err := e.source.RoundRobinIndex(ctx, rule.ID)
		if err != nil {
			return uuid.Nil, err
		}

		claimed, err := e.source.ClaimRoundRobinSlot(ctx, rule.ID, index, index+1)
		if err != nil {
			return uuid.Nil, err
		}
		if claimed {
			return rule.Pool[index%len(rule.Pool)].UserID, nil
		}
	}

	return uuid.Nil, apperr.Conflict("round robin slot contention")
}

// pickWeighted draws a pool member proportionally to its weight. Members
// with non-positive weight never win unless the whole pool is weightless,
// in which case the draw is uniform.
func (e *Engine) pickWeighted(rule *repository.Rule) (uuid.UUID, error) {
	if len(rule.Pool) == 0 {
		return uuid.Nil, apperr.NotFound("rule has an empty pool")
	}

	totalWeight := 0
	for _, member := range rule.Pool {
		if member.Weight > 0 {
			totalWeight += member.Weight
		}
	}
	if totalWeight == 0 {
		return rule.Pool[e.rng.Intn(len(rule.Pool))].UserID, nil
	}

	draw := e.rng.Intn(totalWeight)
	for _, member := range rule.Pool {
		if member.Weight <= 0 {
			continue
		}
		draw -= member.Weight
		if draw < 0 {
			return member.UserID, nil
		}
	}
	return rule.Pool[len(rule.Pool)-1].UserID, nil
}
