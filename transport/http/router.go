package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/memowallet/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService)

	router.GET("/challenge", handlers.Challenge)
	router.POST("/verify", handlers.Verify)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.POST("/logout", handlers.Logout)
	}

	return router
}
