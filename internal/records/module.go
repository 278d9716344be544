// Package records provides the lead and opportunity record bounded context
// module: intake, field edits, stage transitions, ownership, and the audit
// trail.
package records

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"salesdesk_backend/internal/events"
	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/records/handler"
	"salesdesk_backend/internal/records/repository"
	"salesdesk_backend/internal/records/service"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"
)

// Module wires the records repository, service, and handler.
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	repository repository.Repository
}

// NewModule creates and initializes the records module. The stage graph,
// scorer, priority resolver, router, team membership, and settings
// collaborators come from their own modules; the composition root injects
// them.
func NewModule(
	pool *pgxpool.Pool,
	graph service.StageGraph,
	scorer service.Scorer,
	priorities service.PriorityResolver,
	router service.Router,
	teams service.TeamMembers,
	settingsReader service.SettingsReader,
	bus events.Bus,
	defaultRegion string,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, graph, scorer, priorities, router, teams, settingsReader, bus, defaultRegion, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repository: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "records"
}

// Service returns the records service for use by other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes record persistence to the scoring batch worker.
func (m *Module) Repository() repository.Repository {
	return m.repository
}

// RegisterRoutes mounts record routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/records"))
}

var _ apphttp.Module = (*Module)(nil)
