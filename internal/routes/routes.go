package routes

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"whalewatch/internal/handlers"
	"whalewatch/internal/middleware"
)

// SetupRouter initializes the Gin router with all admin API routes
func SetupRouter(h *handlers.Handlers) *gin.Engine {
	r := gin.Default()

	r.Any("/health", func(c *gin.Context) {
		c.String(200, "ok")
	})

	r.Use(corsMiddleware())
	r.Use(middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
	}))

	SetupWalletRoutes(r, h)
	SetupSignalRoutes(r, h)
	SetupTradeRoutes(r, h)

	r.GET("/node/status", h.NodeStatus)

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Comma-separated allow list, e.g. "http://localhost:3000"
		allowedOriginsStr := os.Getenv("ALLOWED_ORIGINS")
		for _, o := range strings.Split(allowedOriginsStr, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" && trimmed == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
