package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vpnkey-hub/internal/api/response"
	"vpnkey-hub/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func RegisterAuthRoutes(group *gin.RouterGroup, authService *service.AuthService) {
	if authService == nil {
		return
	}

	handler := NewAuthHandler(authService)
	group.POST("/auth/login", handler.Login)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrPasswordWrong, "username and password are required")
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrPasswordWrong, "invalid credentials")
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "login failed")
		return
	}

	response.Success(c, gin.H{"access_token": token})
}
