package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesdesk_backend/internal/pipelines/repository"
	"salesdesk_backend/internal/pipelines/service"
	"salesdesk_backend/internal/pipelines/transport"
	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/platform/httpkit"
	"salesdesk_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the pipeline routes. Read routes are available to
// any authenticated user, mutations go on the admin group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, admin *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/default", h.Default)
	rg.GET("/:id/stages", h.ListStages)
	rg.GET("/stages/:stageId/fields", h.ListFieldRequirements)

	admin.POST("", h.Create)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
	admin.POST("/:id/stages", h.CreateStage)
	admin.PUT("/:id/stages/reorder", h.ReorderStages)
	admin.PUT("/stages/:stageId", h.UpdateStage)
	admin.DELETE("/stages/:stageId", h.DeleteStage)
	admin.PUT("/stages/:stageId/fields", h.ReplaceFieldRequirements)
}

func (h *Handler) List(c *gin.Context) {
	module := domain.Module(c.Query("module"))
	pipelines, err := h.svc.ListPipelines(c.Request.Context(), module)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToPipelineResponses(pipelines))
}

func (h *Handler) Default(c *gin.Context) {
	module := domain.Module(c.Query("module"))
	if !domain.IsValidModule(module) {
		httpkit.Error(c, http.StatusBadRequest, "unknown module", nil)
		return
	}

	pipeline, err := h.svc.DefaultPipeline(c.Request.Context(), module)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToPipelineResponse(pipeline))
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreatePipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	pipeline, err := h.svc.CreatePipeline(c.Request.Context(), domain.Module(req.Module), req.Name, req.IsDefault)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToPipelineResponse(pipeline))
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdatePipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	pipeline, err := h.svc.UpdatePipeline(c.Request.Context(), id, req.Name, req.IsDefault)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToPipelineResponse(pipeline))
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.DeletePipeline(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListStages(c *gin.Context) {
	pipelineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	stages, err := h.svc.StagesFor(c.Request.Context(), pipelineID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToStageResponses(stages))
}

func (h *Handler) CreateStage(c *gin.Context) {
	pipelineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.CreateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	stage, err := h.svc.CreateStage(c.Request.Context(), repository.CreateStageParams{
		PipelineID:         pipelineID,
		Name:               req.Name,
		Slug:               req.Slug,
		Color:              req.Color,
		IsWon:              req.IsWon,
		IsLost:             req.IsLost,
		LockPreviousFields: req.LockPreviousFields,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToStageResponse(stage))
}

func (h *Handler) UpdateStage(c *gin.Context) {
	stageID, err := uuid.Parse(c.Param("stageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	stage, err := h.svc.UpdateStage(c.Request.Context(), repository.UpdateStageParams{
		ID:                 stageID,
		Name:               req.Name,
		Color:              req.Color,
		LockPreviousFields: req.LockPreviousFields,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToStageResponse(stage))
}

func (h *Handler) DeleteStage(c *gin.Context) {
	stageID, err := uuid.Parse(c.Param("stageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.DeleteStage(c.Request.Context(), stageID); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ReorderStages(c *gin.Context) {
	pipelineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ReorderStagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.ReorderStages(c.Request.Context(), pipelineID, req.StageIDs); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	stages, err := h.svc.StagesFor(c.Request.Context(), pipelineID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToStageResponses(stages))
}

func (h *Handler) ListFieldRequirements(c *gin.Context) {
	stageID, err := uuid.Parse(c.Param("stageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	requirements, err := h.svc.ListFieldRequirements(c.Request.Context(), stageID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, requirements)
}

func (h *Handler) ReplaceFieldRequirements(c *gin.Context) {
	stageID, err := uuid.Parse(c.Param("stageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ReplaceFieldRequirementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	requirements := make([]repository.FieldRequirement, 0, len(req.Requirements))
	for i, input := range req.Requirements {
		order := input.DisplayOrder
		if order == 0 {
			order = i
		}
		requirements = append(requirements, repository.FieldRequirement{
			StageID:      stageID,
			FieldKey:     input.FieldKey,
			FieldLabel:   input.FieldLabel,
			IsRequired:   input.IsRequired,
			DisplayOrder: order,
		})
	}

	if err := h.svc.ReplaceFieldRequirements(c.Request.Context(), stageID, requirements); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	updated, err := h.svc.ListFieldRequirements(c.Request.Context(), stageID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, updated)
}
