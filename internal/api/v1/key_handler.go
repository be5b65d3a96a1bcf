package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vpnkey-hub/internal/api/response"
	inputsanitize "vpnkey-hub/internal/api/sanitize"
	"vpnkey-hub/internal/repository"
	"vpnkey-hub/internal/service"
)

type KeyHandler struct {
	keyService     *service.KeyService
	trafficService *service.TrafficService
}

func NewKeyHandler(keyService *service.KeyService, trafficService *service.TrafficService) *KeyHandler {
	return &KeyHandler{
		keyService:     keyService,
		trafficService: trafficService,
	}
}

func RegisterKeyRoutes(group *gin.RouterGroup, keyService *service.KeyService, trafficService *service.TrafficService) {
	if keyService == nil {
		return
	}

	handler := NewKeyHandler(keyService, trafficService)
	keys := group.Group("/keys")

	keys.GET("/", handler.List)
	keys.POST("/", handler.Issue)
	keys.GET("/:id", handler.Get)
	keys.GET("/:id/config", handler.DeliverConfig)
	keys.POST("/:id/renew", handler.Renew)
	keys.POST("/:id/sync-usage", handler.SyncUsage)
	keys.DELETE("/:id", handler.Revoke)
}

func (h *KeyHandler) List(c *gin.Context) {
	page, pageSize, pagination := paginationFromQuery(c.Query("page"), c.Query("page_size"))

	filter := repository.KeyListFilter{Pagination: pagination}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrKeyInvalid, "invalid user_id")
			return
		}
		filter.UserID = &id
	}
	if raw := strings.TrimSpace(c.Query("server_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrKeyInvalid, "invalid server_id")
			return
		}
		filter.ServerID = &id
	}
	if raw := strings.TrimSpace(c.Query("revoked")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrKeyInvalid, "invalid revoked")
			return
		}
		filter.Revoked = &value
	}

	keys, err := h.keyService.List(c.Request.Context(), filter)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "list keys failed")
		return
	}

	response.Paginated(c, keys, page, pageSize, int64(len(keys)))
}

func (h *KeyHandler) Issue(c *gin.Context) {
	var req service.IssueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrKeyInvalid, "invalid request body")
		return
	}
	req.Name = inputsanitize.Text(req.Name)

	key, err := h.keyService.Issue(c.Request.Context(), req)
	if err != nil {
		handleKeyServiceError(c, err)
		return
	}

	response.Success(c, key)
}

func (h *KeyHandler) Get(c *gin.Context) {
	key, err := h.keyService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleKeyServiceError(c, err)
		return
	}

	response.Success(c, key)
}

func (h *KeyHandler) DeliverConfig(c *gin.Context) {
	cfg, err := h.keyService.DeliverConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleKeyServiceError(c, err)
		return
	}

	response.Success(c, cfg)
}

func (h *KeyHandler) Renew(c *gin.Context) {
	var req service.RenewKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrKeyInvalid, "invalid request body")
		return
	}

	key, err := h.keyService.Renew(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handleKeyServiceError(c, err)
		return
	}

	response.Success(c, key)
}

func (h *KeyHandler) SyncUsage(c *gin.Context) {
	if h.trafficService == nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "usage sync unavailable")
		return
	}

	result, err := h.trafficService.SyncUsage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrUsageUnknown) {
			response.Fail(c, http.StatusConflict, response.ErrUsageUnknown, "usage unknown for this key")
			return
		}
		handleKeyServiceError(c, err)
		return
	}

	response.Success(c, result)
}

func (h *KeyHandler) Revoke(c *gin.Context) {
	if err := h.keyService.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		handleKeyServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func handleKeyServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidKeyInput):
		response.Fail(c, http.StatusBadRequest, response.ErrKeyInvalid, "invalid key input")
	case errors.Is(err, service.ErrKeyNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrKeyNotFound, "key not found")
	case errors.Is(err, service.ErrKeyRevoked):
		response.Fail(c, http.StatusConflict, response.ErrKeyRevoked, "key is revoked")
	case errors.Is(err, service.ErrKeyExpired):
		response.Fail(c, http.StatusForbidden, response.ErrKeyExpired, "key is expired")
	case errors.Is(err, service.ErrQuotaExceeded):
		response.Fail(c, http.StatusForbidden, response.ErrQuotaExceeded, "traffic quota exceeded")
	case errors.Is(err, service.ErrUserNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrUserNotFound, "user not found")
	case errors.Is(err, service.ErrServerNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrServerNotFound, "server not found")
	case errors.Is(err, service.ErrServerUnavailable):
		response.Fail(c, http.StatusBadGateway, response.ErrServerUnavailable, "server unavailable")
	case errors.Is(err, service.ErrPlanNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrPlanNotFound, "plan not found")
	case errors.Is(err, service.ErrNoDefaultPlan):
		response.Fail(c, http.StatusConflict, response.ErrNoDefault, "no default plan configured")
	case errors.Is(err, service.ErrDeviceLimitReached):
		response.Fail(c, http.StatusConflict, response.ErrDeviceLimit, "device limit reached")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
