package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/rules"
	"salesdesk_backend/internal/scoring/repository"
	"salesdesk_backend/internal/scoring/service"
	"salesdesk_backend/internal/scoring/transport"
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
	rg.GET("/templates", h.ListTemplates)
	rg.GET("/templates/:id/rules", h.ListRules)
	rg.GET("/jobs/:id", h.GetJob)

	admin.POST("/templates", h.CreateTemplate)
	admin.PUT("/templates/:id", h.UpdateTemplate)
	admin.DELETE("/templates/:id", h.DeleteTemplate)
	admin.POST("/templates/:id/rules", h.CreateRule)
	admin.PUT("/rules/:id", h.UpdateRule)
	admin.DELETE("/rules/:id", h.DeleteRule)
	admin.POST("/templates/:id/rescore-all", h.RescoreAll)
	admin.POST("/jobs/:id/cancel", h.CancelJob)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	module := domain.Module(c.Query("module"))
	templates, err := h.svc.ListTemplates(c.Request.Context(), module)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToTemplateResponses(templates))
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req transport.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	template, err := h.svc.CreateTemplate(c.Request.Context(), repository.CreateTemplateParams{
		Module:   domain.Module(req.Module),
		Name:     req.Name,
		MaxScore: req.MaxScore,
		IsActive: req.IsActive,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToTemplateResponse(template))
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	template, err := h.svc.UpdateTemplate(c.Request.Context(), repository.UpdateTemplateParams{
		ID:       id,
		Name:     req.Name,
		MaxScore: req.MaxScore,
		IsActive: req.IsActive,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToTemplateResponse(template))
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.DeleteTemplate(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListRules(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	ruleSet, err := h.svc.ListRules(c.Request.Context(), templateID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToRuleResponses(ruleSet))
}

func (h *Handler) CreateRule(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.CreateRule(c.Request.Context(), repository.CreateRuleParams{
		TemplateID: templateID,
		Name:       req.Name,
		FieldKey:   req.FieldKey,
		Operator:   rules.Operator(req.Operator),
		Value:      req.Value,
		Points:     req.Points,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToRuleResponse(rule))
}

func (h *Handler) UpdateRule(c *gin.Context) {
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

	params := repository.UpdateRuleParams{
		ID:        id,
		Name:      req.Name,
		FieldKey:  req.FieldKey,
		Points:    req.Points,
		SortOrder: req.SortOrder,
		IsActive:  req.IsActive,
	}
	if req.Operator != nil {
		operator := rules.Operator(*req.Operator)
		params.Operator = &operator
	}
	if req.Value != nil {
		params.Value = *req.Value
		params.SetValue = true
	}

	rule, err := h.svc.UpdateRule(c.Request.Context(), params)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.DeleteRule(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RescoreAll accepts a rescore-all request for a template's module and
// returns 202 with the job; the batch itself runs on the worker.
func (h *Handler) RescoreAll(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	job, err := h.svc.RequestRescoreForTemplate(c.Request.Context(), templateID, identity.UserID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.Accepted(c, transport.ToJobResponse(job))
}

func (h *Handler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	job, err := h.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ToJobResponse(job))
}

func (h *Handler) CancelJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.CancelJob(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	job, err := h.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.Accepted(c, transport.ToJobResponse(job))
}
