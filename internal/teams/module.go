// Package teams provides user and team lookups for routing and record
// access management.
package teams

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/teams/repository"
	"salesdesk_backend/internal/teams/service"
	"salesdesk_backend/platform/httpkit"
)

// Module wires the teams repository and service.
type Module struct {
	service *service.Service
}

// NewModule creates and initializes the teams module.
func NewModule(pool *pgxpool.Pool) *Module {
	repo := repository.New(pool)
	return &Module{service: service.New(repo)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "teams"
}

// Service returns the teams service for use by other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts team lookup routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rg := ctx.Protected.Group("/teams")
	rg.GET("", func(c *gin.Context) {
		teams, err := m.service.ListTeams(c.Request.Context())
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, teams)
	})

	ctx.Protected.GET("/users", func(c *gin.Context) {
		users, err := m.service.ListActiveUsers(c.Request.Context())
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.JSON(c, http.StatusOK, users)
	})
}

var _ apphttp.Module = (*Module)(nil)
