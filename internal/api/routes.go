package api

import (
	"github.com/gin-gonic/gin"

	"vpnkey-hub/internal/api/middleware"
	v1 "vpnkey-hub/internal/api/v1"
	"vpnkey-hub/internal/service"
	loggerpkg "vpnkey-hub/pkg/logger"
)

type Services struct {
	Auth    *service.AuthService
	Users   *service.UserService
	Plans   *service.PlanService
	Servers *service.ServerService
	Keys    *service.KeyService
	Traffic *service.TrafficService
}

// RegisterRoutes mounts the admin API under /api/v1. Everything except login
// requires a valid operator token.
func RegisterRoutes(router *gin.Engine, services Services, jwtSecret []byte, logStore *loggerpkg.RingStore, version string) {
	api := router.Group("/api/v1")

	v1.RegisterAuthRoutes(api, services.Auth)

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(jwtSecret))

	v1.RegisterUserRoutes(protected, services.Users)
	v1.RegisterPlanRoutes(protected, services.Plans)
	v1.RegisterServerRoutes(protected, services.Servers)
	v1.RegisterCatalogRoutes(protected, services.Servers)
	v1.RegisterKeyRoutes(protected, services.Keys, services.Traffic)
	v1.RegisterSystemRoutes(protected, logStore, version)
}
