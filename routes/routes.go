package routes

import (
	"github.com/gin-gonic/gin"

	"vps-gateway-service/config"
	"vps-gateway-service/handlers"
	"vps-gateway-service/middleware"
)

// SetupRoutes configures all routes for the application
func SetupRoutes(router *gin.Engine, cfg *config.Config, gateway *handlers.Gateway, serverHandler *handlers.ServerHandler) {
	// Global middleware
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorLogger())
	router.Use(middleware.CORS(cfg.Server.CORSAllowOrigin))

	// Health check route (no auth required)
	router.GET("/health", handlers.HealthCheck)

	// WebSocket endpoint; clients arrive pre-authorized by the upstream proxy
	router.GET("/ws", gateway.HandleWebSocket)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		jwtConfig := middleware.JWTConfig{
			Secret:      cfg.Auth.JWTSecret,
			ExpiryHours: cfg.Auth.JWTExpiryHours,
			Issuer:      cfg.Auth.JWTIssuer,
		}

		// Server inventory routes (auth required)
		servers := v1.Group("/servers")
		servers.Use(middleware.AuthRequired(jwtConfig))
		{
			servers.GET("", serverHandler.ListServers)
			servers.GET("/:id", serverHandler.GetServer)
			servers.PATCH("/:id", serverHandler.UpdateServer)
		}

		// Destructive inventory operations need admin privileges
		admin := v1.Group("/servers")
		admin.Use(middleware.AuthRequired(jwtConfig))
		admin.Use(middleware.AdminRequired())
		{
			admin.DELETE("/:id", serverHandler.DeleteServer)
		}
	}
}
