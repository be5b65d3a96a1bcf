package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vpnkey-hub/internal/api/response"
	inputsanitize "vpnkey-hub/internal/api/sanitize"
	"vpnkey-hub/internal/repository"
	"vpnkey-hub/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func RegisterUserRoutes(group *gin.RouterGroup, userService *service.UserService) {
	if userService == nil {
		return
	}

	handler := NewUserHandler(userService)
	users := group.Group("/users")

	users.GET("/", handler.List)
	users.POST("/contact", handler.RegisterContact)
	users.GET("/:id", handler.Get)
	users.GET("/:id/keys", handler.Keys)
	users.GET("/:id/keys/active", handler.ActiveKeys)
}

func (h *UserHandler) List(c *gin.Context) {
	page, pageSize, pagination := paginationFromQuery(c.Query("page"), c.Query("page_size"))

	filter := repository.UserListFilter{Pagination: pagination}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrUserInvalid, "invalid is_active")
			return
		}
		filter.IsActive = &value
	}
	if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
		cleaned := inputsanitize.Text(keyword)
		filter.Keyword = &cleaned
	}

	users, total, err := h.userService.List(c.Request.Context(), filter)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "list users failed")
		return
	}

	response.Paginated(c, users, page, pageSize, total)
}

func (h *UserHandler) RegisterContact(c *gin.Context) {
	var req service.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrUserInvalid, "invalid request body")
		return
	}
	req.Username = inputsanitize.TextPtr(req.Username)
	req.FirstName = inputsanitize.TextPtr(req.FirstName)

	user, err := h.userService.RegisterContact(c.Request.Context(), req)
	if err != nil {
		handleUserServiceError(c, err)
		return
	}

	response.Success(c, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.userService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleUserServiceError(c, err)
		return
	}

	response.Success(c, user)
}

func (h *UserHandler) Keys(c *gin.Context) {
	page, pageSize, pagination := paginationFromQuery(c.Query("page"), c.Query("page_size"))

	keys, err := h.userService.Keys(c.Request.Context(), c.Param("id"), pagination)
	if err != nil {
		handleUserServiceError(c, err)
		return
	}

	response.Paginated(c, keys, page, pageSize, int64(len(keys)))
}

func (h *UserHandler) ActiveKeys(c *gin.Context) {
	keys, err := h.userService.ActiveKeys(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleUserServiceError(c, err)
		return
	}

	response.Success(c, keys)
}

func handleUserServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidUserInput):
		response.Fail(c, http.StatusBadRequest, response.ErrUserInvalid, "invalid user input")
	case errors.Is(err, service.ErrUserNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrUserNotFound, "user not found")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
