package routes

import (
	"github.com/gin-gonic/gin"

	"whalewatch/internal/handlers"
)

// SetupSignalRoutes sets up all routes related to coordination signals
func SetupSignalRoutes(r *gin.Engine, h *handlers.Handlers) {
	signals := r.Group("/signals")
	{
		signals.GET("", h.ListSignals)
		signals.GET("/:id", h.GetSignal)
		signals.PUT("/:id/status", h.UpdateSignalStatus)
	}
}
