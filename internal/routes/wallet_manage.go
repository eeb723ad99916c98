package routes

import (
	"github.com/gin-gonic/gin"

	"whalewatch/internal/handlers"
)

// SetupWalletRoutes sets up all routes related to tracked wallet management
func SetupWalletRoutes(r *gin.Engine, h *handlers.Handlers) {
	wallets := r.Group("/wallets")
	{
		wallets.GET("", h.ListWallets)
		wallets.GET("/:address", h.GetWallet)
		wallets.POST("", h.CreateWallet)
		wallets.PUT("/:address", h.UpdateWallet)
		wallets.DELETE("/:address", h.DeleteWallet)
	}
}
