package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/routing/repository"
	"salesdesk_backend/internal/routing/service"
	"salesdesk_backend/internal/routing/transport"
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
	ruleSet, err := h.svc.List(c.Request.Context(), module)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToRuleResponses(ruleSet))
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.Create(c.Request.Context(), repository.CreateParams{
		Module:         domain.Module(req.Module),
		Name:           req.Name,
		Priority:       req.Priority,
		Conditions:     transport.ToConditions(req.Conditions),
		AssignmentType: req.AssignmentType,
		AssigneeID:     req.AssigneeID,
		TeamID:         req.TeamID,
		Pool:           transport.ToPool(req.Pool),
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToRuleResponse(rule))
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	params := repository.UpdateParams{
		ID:             id,
		Name:           req.Name,
		Priority:       req.Priority,
		IsActive:       req.IsActive,
		AssignmentType: req.AssignmentType,
	}
	if req.Conditions != nil {
		params.Conditions = transport.ToConditions(req.Conditions)
		params.SetConditions = true
	}
	if req.AssigneeID != nil {
		params.AssigneeID = req.AssigneeID
		params.SetAssigneeID = true
	}
	if req.TeamID != nil {
		params.TeamID = req.TeamID
		params.SetTeamID = true
	}
	if req.Pool != nil {
		params.Pool = transport.ToPool(req.Pool)
		params.SetPool = true
	}

	rule, err := h.svc.Update(c.Request.Context(), params)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
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
