package handlers

import (
	"errors"
	"net/http"
	"strings"

	solanaGo "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"whalewatch/internal/events"
	"whalewatch/internal/models"
)

// ListWallets returns all tracked wallets
func (h *Handlers) ListWallets(c *gin.Context) {
	var wallets []models.TrackedWallet
	q := h.db
	if c.Query("active") == "true" {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&wallets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, wallets)
}

// GetWallet returns one tracked wallet by address
func (h *Handlers) GetWallet(c *gin.Context) {
	address := c.Param("address")
	var wallet models.TrackedWallet
	if err := h.db.Where("address = ?", address).First(&wallet).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// CreateWallet starts tracking a new wallet address
func (h *Handlers) CreateWallet(c *gin.Context) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := solanaGo.PublicKeyFromBase58(req.Address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	wallet := models.TrackedWallet{
		Address:  req.Address,
		Alias:    req.Alias,
		IsActive: isActive,
		Tags:     strings.Join(req.Tags, ","),
	}
	if err := h.db.Create(&wallet).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Wallet already tracked"})
		return
	}

	if isActive {
		h.publishWalletCommand(events.WalletActionTrack, wallet.Address)
	}
	c.JSON(http.StatusCreated, wallet)
}

// UpdateWallet mutates alias, tags or the active flag of a tracked wallet
func (h *Handlers) UpdateWallet(c *gin.Context) {
	address := c.Param("address")
	var wallet models.TrackedWallet
	if err := h.db.Where("address = ?", address).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req WalletUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wasActive := wallet.IsActive
	if req.Alias != nil {
		wallet.Alias = *req.Alias
	}
	if req.Tags != nil {
		wallet.Tags = strings.Join(req.Tags, ",")
	}
	if req.IsActive != nil {
		wallet.IsActive = *req.IsActive
	}

	if err := h.db.Save(&wallet).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if wallet.IsActive && !wasActive {
		h.publishWalletCommand(events.WalletActionTrack, wallet.Address)
	} else if !wallet.IsActive && wasActive {
		h.publishWalletCommand(events.WalletActionUntrack, wallet.Address)
	}
	c.JSON(http.StatusOK, wallet)
}

// DeleteWallet stops tracking a wallet and removes it
func (h *Handlers) DeleteWallet(c *gin.Context) {
	address := c.Param("address")
	res := h.db.Where("address = ?", address).Delete(&models.TrackedWallet{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	h.publishWalletCommand(events.WalletActionUntrack, address)
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

func (h *Handlers) publishWalletCommand(action, address string) {
	if h.publisher == nil {
		log.WithFields(log.Fields{
			"action":  action,
			"address": address,
		}).Warn("RabbitMQ not configured, wallet command not published")
		return
	}
	cmd := events.WalletCommand{Action: action, Address: address}
	if err := h.publisher.Publish(events.QueueWalletCommands, cmd); err != nil {
		log.WithFields(log.Fields{
			"action":  action,
			"address": address,
			"error":   err.Error(),
		}).Error("Failed to publish wallet command")
	}
}
