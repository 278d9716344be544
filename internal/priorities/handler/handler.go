package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesdesk_backend/internal/priorities/repository"
	"salesdesk_backend/internal/priorities/service"
	"salesdesk_backend/internal/priorities/transport"
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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, admin *gin.RouterGroup) {
	rg.GET("", h.List)

	admin.POST("", h.Create)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
}

func (h *Handler) List(c *gin.Context) {
	module := domain.Module(c.Query("module"))
	priorities, err := h.svc.List(c.Request.Context(), module)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToPriorityResponses(priorities))
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	priority, err := h.svc.Create(c.Request.Context(), repository.CreateParams{
		Module:    domain.Module(req.Module),
		Name:      req.Name,
		Color:     req.Color,
		MinScore:  req.MinScore,
		MaxScore:  req.MaxScore,
		SortOrder: req.SortOrder,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToPriorityResponse(priority))
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	params := repository.UpdateParams{
		ID:        id,
		Name:      req.Name,
		Color:     req.Color,
		SortOrder: req.SortOrder,
		IsDefault: req.IsDefault,
		IsActive:  req.IsActive,
	}
	if req.MinScore != nil || req.ClearMinScore {
		params.SetMinScore = true
		if !req.ClearMinScore {
			params.MinScore = req.MinScore
		}
	}
	if req.MaxScore != nil || req.ClearMaxScore {
		params.SetMaxScore = true
		if !req.ClearMaxScore {
			params.MaxScore = req.MaxScore
		}
	}

	priority, err := h.svc.Update(c.Request.Context(), params)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToPriorityResponse(priority))
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
