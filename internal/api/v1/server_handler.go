package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vpnkey-hub/internal/api/response"
	inputsanitize "vpnkey-hub/internal/api/sanitize"
	"vpnkey-hub/internal/provisioner"
	"vpnkey-hub/internal/service"
)

type ServerHandler struct {
	serverService *service.ServerService
}

func NewServerHandler(serverService *service.ServerService) *ServerHandler {
	return &ServerHandler{serverService: serverService}
}

func RegisterServerRoutes(group *gin.RouterGroup, serverService *service.ServerService) {
	if serverService == nil {
		return
	}

	handler := NewServerHandler(serverService)
	servers := group.Group("/servers")

	servers.GET("/", handler.List)
	servers.POST("/", handler.Create)
	servers.GET("/:id", handler.Get)
	servers.PATCH("/:id", handler.Update)
	servers.DELETE("/:id", handler.Delete)
	servers.POST("/:id/activate", handler.Activate)
	servers.POST("/:id/deactivate", handler.Deactivate)
	servers.POST("/:id/test-connection", handler.TestConnection)
}

func (h *ServerHandler) List(c *gin.Context) {
	onlyActive := false
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrServerInvalid, "invalid active")
			return
		}
		onlyActive = value
	}

	servers, err := h.serverService.List(c.Request.Context(), onlyActive)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "list servers failed")
		return
	}

	response.Success(c, servers)
}

func (h *ServerHandler) Create(c *gin.Context) {
	var req service.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrServerInvalid, "invalid request body")
		return
	}
	req.Name = inputsanitize.Text(req.Name)
	req.Location = inputsanitize.Text(req.Location)

	server, err := h.serverService.Create(c.Request.Context(), req)
	if err != nil {
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, server)
}

func (h *ServerHandler) Get(c *gin.Context) {
	server, err := h.serverService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, server)
}

func (h *ServerHandler) Update(c *gin.Context) {
	var req service.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrServerInvalid, "invalid request body")
		return
	}
	req.Name = inputsanitize.TextPtr(req.Name)
	req.Location = inputsanitize.TextPtr(req.Location)

	server, err := h.serverService.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, server)
}

func (h *ServerHandler) Delete(c *gin.Context) {
	if err := h.serverService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func (h *ServerHandler) Activate(c *gin.Context) {
	if err := h.serverService.Activate(c.Request.Context(), c.Param("id")); err != nil {
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func (h *ServerHandler) Deactivate(c *gin.Context) {
	if err := h.serverService.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func (h *ServerHandler) TestConnection(c *gin.Context) {
	info, err := h.serverService.TestConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		var provErr *provisioner.Error
		if errors.As(err, &provErr) {
			switch provErr.Kind {
			case provisioner.KindAuthRejected:
				response.Fail(c, http.StatusBadGateway, response.ErrServerUnavailable, "server rejected credentials")
			case provisioner.KindUnreachable:
				response.Fail(c, http.StatusBadGateway, response.ErrServerUnavailable, "server unreachable")
			default:
				response.Fail(c, http.StatusBadGateway, response.ErrServerUnavailable, "server error")
			}
			return
		}
		handleServerServiceError(c, err)
		return
	}

	response.Success(c, info)
}

func handleServerServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidServerInput):
		response.Fail(c, http.StatusBadRequest, response.ErrServerInvalid, "invalid server input")
	case errors.Is(err, service.ErrServerNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrServerNotFound, "server not found")
	case errors.Is(err, provisioner.ErrUnsupportedServerKind):
		response.Fail(c, http.StatusBadRequest, response.ErrServerInvalid, "unsupported server kind")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
