// Package pipelines provides the pipeline and stage management bounded
// context module.
package pipelines

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/pipelines/handler"
	"salesdesk_backend/internal/pipelines/repository"
	"salesdesk_backend/internal/pipelines/service"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"
)

// Module wires the pipelines repository, service, and handler.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the pipelines module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipelines"
}

// Service returns the pipelines service for use by other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/pipelines"), ctx.Admin.Group("/pipelines"))
}

var _ apphttp.Module = (*Module)(nil)
