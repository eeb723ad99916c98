package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NodeStatus reports whether the configured RPC node is reachable
func (h *Handlers) NodeStatus(c *gin.Context) {
	if h.probe == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "RPC endpoint not configured"})
		return
	}
	slot, err := h.probe.CurrentSlot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot})
}
