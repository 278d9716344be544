// Package scoring provides the score template bounded context module.
package scoring

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/scoring/handler"
	"salesdesk_backend/internal/scoring/repository"
	"salesdesk_backend/internal/scoring/service"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"
)

// Module wires the scoring repository, service, and handler. The record
// store, priority resolver, and enqueuer cross module boundaries and are
// injected by the composition root.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the scoring module.
func NewModule(pool *pgxpool.Pool, records service.RecordStore, resolver service.PriorityResolver, enqueuer service.Enqueuer, pageSize int, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, records, resolver, enqueuer, pageSize, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "scoring"
}

// Service returns the scoring service for use by other modules and the
// worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts scoring routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/scoring"), ctx.Admin.Group("/scoring"))
}

var _ apphttp.Module = (*Module)(nil)
