package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/platform/httpkit"
)

// Module wires the settings repository and service.
type Module struct {
	service *Service
}

// NewModule creates and initializes the settings module.
func NewModule(pool *pgxpool.Pool) *Module {
	return &Module{service: NewService(NewRepo(pool))}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "settings"
}

// Service returns the settings service for use by other modules.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts settings routes. Reads are open to any
// authenticated user; writes are admin only.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/settings/:key", func(c *gin.Context) {
		blob, err := m.service.Get(c.Request.Context(), c.Param("key"))
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, blob)
	})

	ctx.Admin.PUT("/settings/:key", func(c *gin.Context) {
		var patch map[string]any
		if err := c.ShouldBindJSON(&patch); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
			return
		}

		merged, err := m.service.Merge(c.Request.Context(), c.Param("key"), patch)
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, merged)
	})
}

var _ apphttp.Module = (*Module)(nil)
