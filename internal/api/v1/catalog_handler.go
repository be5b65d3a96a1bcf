package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vpnkey-hub/internal/api/response"
	inputsanitize "vpnkey-hub/internal/api/sanitize"
	"vpnkey-hub/internal/service"
)

// CatalogHandler serves the geography catalog that servers hang off of.
type CatalogHandler struct {
	serverService *service.ServerService
}

type createCountryRequest struct {
	Name string `json:"name" binding:"required"`
}

type createCityRequest struct {
	Name      string `json:"name" binding:"required"`
	CountryID string `json:"country_id" binding:"required"`
}

func NewCatalogHandler(serverService *service.ServerService) *CatalogHandler {
	return &CatalogHandler{serverService: serverService}
}

func RegisterCatalogRoutes(group *gin.RouterGroup, serverService *service.ServerService) {
	if serverService == nil {
		return
	}

	handler := NewCatalogHandler(serverService)

	countries := group.Group("/countries")
	countries.GET("/", handler.ListCountries)
	countries.POST("/", handler.CreateCountry)
	countries.DELETE("/:id", handler.DeleteCountry)

	cities := group.Group("/cities")
	cities.GET("/", handler.ListCities)
	cities.POST("/", handler.CreateCity)
	cities.DELETE("/:id", handler.DeleteCity)
}

func (h *CatalogHandler) ListCountries(c *gin.Context) {
	countries, err := h.serverService.ListCountries(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "list countries failed")
		return
	}

	response.Success(c, countries)
}

func (h *CatalogHandler) CreateCountry(c *gin.Context) {
	var req createCountryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrGeoInvalid, "name is required")
		return
	}

	country, err := h.serverService.CreateCountry(c.Request.Context(), inputsanitize.Text(req.Name))
	if err != nil {
		handleCatalogServiceError(c, err)
		return
	}

	response.Success(c, country)
}

func (h *CatalogHandler) DeleteCountry(c *gin.Context) {
	if err := h.serverService.DeleteCountry(c.Request.Context(), c.Param("id")); err != nil {
		handleCatalogServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func (h *CatalogHandler) ListCities(c *gin.Context) {
	var countryID *string
	if raw := strings.TrimSpace(c.Query("country_id")); raw != "" {
		countryID = &raw
	}

	cities, err := h.serverService.ListCities(c.Request.Context(), countryID)
	if err != nil {
		handleCatalogServiceError(c, err)
		return
	}

	response.Success(c, cities)
}

func (h *CatalogHandler) CreateCity(c *gin.Context) {
	var req createCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrGeoInvalid, "name and country_id are required")
		return
	}

	city, err := h.serverService.CreateCity(c.Request.Context(), inputsanitize.Text(req.Name), req.CountryID)
	if err != nil {
		handleCatalogServiceError(c, err)
		return
	}

	response.Success(c, city)
}

func (h *CatalogHandler) DeleteCity(c *gin.Context) {
	if err := h.serverService.DeleteCity(c.Request.Context(), c.Param("id")); err != nil {
		handleCatalogServiceError(c, err)
		return
	}

	response.Success(c, nil)
}

func handleCatalogServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidGeoInput):
		response.Fail(c, http.StatusBadRequest, response.ErrGeoInvalid, "invalid input")
	case errors.Is(err, service.ErrCountryNotFound), errors.Is(err, service.ErrCityNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrGeoNotFound, "not found")
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}
