// Package priorities provides the score band bounded context module.
package priorities

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/priorities/handler"
	"salesdesk_backend/internal/priorities/repository"
	"salesdesk_backend/internal/priorities/service"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"
)

// Module wires the priorities repository, service, and handler.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the priorities module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "priorities"
}

// Service returns the priorities service for use by other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts priority routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/priorities"), ctx.Admin.Group("/priorities"))
}

var _ apphttp.Module = (*Module)(nil)
