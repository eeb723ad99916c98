package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"whalewatch/internal/models"
)

// ListSignals returns signals, optionally filtered by status and token
func (h *Handlers) ListSignals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := models.SignalStatus(c.Query("status"))
	token := c.Query("token")

	signals, err := h.store.ListSignals(status, token, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, signals)
}

// GetSignal returns one signal by id
func (h *Handlers) GetSignal(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}
	signal, err := h.store.GetSignal(uint(id))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, signal)
}

// UpdateSignalStatus performs a manual lifecycle transition. Only an OPEN
// signal can move, and only to EXECUTED or CANCELLED; expiry belongs to the
// watcher's sweep.
func (h *Handlers) UpdateSignalStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var req SignalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.SignalStatus(req.Status)
	if status != models.SignalStatusExecuted && status != models.SignalStatusCancelled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be EXECUTED or CANCELLED"})
		return
	}

	if _, err := h.store.GetSignal(uint(id)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	updated, err := h.store.UpdateSignalStatus(uint(id), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !updated {
		c.JSON(http.StatusConflict, gin.H{"error": "Signal is not OPEN"})
		return
	}

	signal, err := h.store.GetSignal(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, signal)
}
