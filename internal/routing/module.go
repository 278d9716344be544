// Package routing provides the owner assignment bounded context module.
package routing

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/routing/engine"
	"salesdesk_backend/internal/routing/handler"
	"salesdesk_backend/internal/routing/repository"
	"salesdesk_backend/internal/routing/service"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"
)

// Module wires the routing repository, service, engine, and handler.
type Module struct {
	handler *handler.Handler
	service *service.Service
	engine  *engine.Engine
}

// NewModule creates and initializes the routing module.
func NewModule(pool *pgxpool.Pool, leads engine.TeamLeads, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo)
	eng := engine.New(repo, leads, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, engine: eng}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Engine returns the routing engine for record intake.
func (m *Module) Engine() *engine.Engine {
	return m.engine
}

// RegisterRoutes mounts routing rule routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/routing/rules"), ctx.Admin.Group("/routing/rules"))
}

var _ apphttp.Module = (*Module)(nil)
