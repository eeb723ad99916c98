package routes

import (
	"github.com/gin-gonic/gin"

	"whalewatch/internal/handlers"
)

// SetupTradeRoutes sets up all routes related to classified trades
func SetupTradeRoutes(r *gin.Engine, h *handlers.Handlers) {
	trades := r.Group("/trades")
	{
		trades.GET("", h.ListTrades)
	}
}
