package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vpnkey-hub/internal/api/response"
	inputsanitize "vpnkey-hub/internal/api/sanitize"
	"vpnkey-hub/internal/service"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

func RegisterPlanRoutes(group *gin.RouterGroup, planService *service.PlanService) {
	if planService == nil {
		return
	}

	handler := NewPlanHandler(planService)
	plans := group.Group("/plans")

	plans.GET("/", handler.List)
	plans.POST("/", handler.Create)
	plans.GET("/:id", handler.Get)
	plans.PATCH("/:id", handler.Update)
	plans.DELETE("/:id", handler.Delete)
}

func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.planService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "list plans failed")
		return
	}

	response.Success(c, plans)
}

func (h *PlanHandler) Create(c *gin.Context) {
	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrPlanInvalid, "invalid request body")
		return
	}
	req.Name = inputsanitize.Text(req.Name)

	plan, err := h.planService.Create(c.Request.Context(), req)
	if err != nil {
		handlePlanServiceError(c, err)
		return
	}

	response.Success(c, plan)
}

func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.planService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlePlanServiceError(c, err)
		return
	}

	response.Success(c, plan)
}

func (h *PlanHandler) Update(c *gin.Context) {
	var req service.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrPlanInvalid, "invalid request body")
		return
	}
	req.Name = inputsanitize.TextPtr(req.Name)

	plan, err := h.planService.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handlePlanServiceError(c, err)
		return
	}

	response.Success(c, plan)
}

func (h *PlanHandler) Delete(c *gin.Context) {
	if err := h.planService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handlePlanServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func handlePlanServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPlanInput):
		response.Fail(c, http.StatusBadRequest, response.ErrPlanInvalid, "invalid plan input")
	case errors.Is(err, service.ErrPlanNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrPlanNotFound, "plan not found")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
