package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whalewatch/internal/models"
)

// ErrInvalidTransition is returned when a signal status change is not
// permitted by the lifecycle state machine.
var ErrInvalidTransition = errors.New("signal status transition not permitted")

// Store wraps the database handle with the write/read contracts the pipeline
// depends on: trade inserts are idempotent on (transaction_hash,
// wallet_address), and at most one OPEN signal may exist per token.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store around an open database handle
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertTrade persists a classified trade. A duplicate (transaction_hash,
// wallet_address) pair is absorbed silently; the returned bool reports
// whether a new row was actually written, so callers can skip downstream
// processing on redelivery.
func (s *Store) InsertTrade(trade *models.ClassifiedTrade) (bool, error) {
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_hash"}, {Name: "wallet_address"}},
		DoNothing: true,
	}).Create(trade)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert classified trade: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListTrades returns classified trades, optionally filtered by wallet and
// token, newest first.
func (s *Store) ListTrades(wallet, token string, limit, offset int) ([]models.ClassifiedTrade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.Model(&models.ClassifiedTrade{})
	if wallet != "" {
		q = q.Where("wallet_address = ?", wallet)
	}
	if token != "" {
		q = q.Where("token_address = ?", token)
	}
	var trades []models.ClassifiedTrade
	err := q.Order("observed_at DESC").Limit(limit).Offset(offset).Find(&trades).Error
	return trades, err
}

// GetOpenSignal returns the OPEN signal for a token, if one exists
func (s *Store) GetOpenSignal(tokenAddress string) (*models.Signal, error) {
	var signal models.Signal
	err := s.db.Where("token_address = ? AND status = ?", tokenAddress, models.SignalStatusOpen).
		First(&signal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

// CreateSignal inserts a new OPEN signal unless one already exists for the
// token. The existence check and insert run in one transaction; the partial
// unique index on (token_address) WHERE status = 'OPEN' backstops races
// between concurrently running watchers. Returns false when an OPEN signal
// was already present.
func (s *Store) CreateSignal(signal *models.Signal) (bool, error) {
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Signal
		err := tx.Where("token_address = ? AND status = ?", signal.TokenAddress, models.SignalStatusOpen).
			First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		signal.Status = models.SignalStatusOpen
		if err := tx.Create(signal).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		// A unique violation here means another writer won the race; that is
		// the same outcome as finding an existing OPEN signal.
		if isUniqueViolation(err) {
			log.WithFields(log.Fields{
				"token_address": signal.TokenAddress,
			}).Debug("Open signal already exists, skipping create")
			return false, nil
		}
		return false, fmt.Errorf("failed to create signal: %w", err)
	}
	return created, nil
}

// UpdateSignalStatus moves an OPEN signal to a terminal status. The update is
// conditional on the row still being OPEN, which makes transitions happen at
// most once even when the expiry sweep and a manual action race.
func (s *Store) UpdateSignalStatus(id uint, status models.SignalStatus) (bool, error) {
	if !status.IsTerminal() {
		return false, ErrInvalidTransition
	}
	now := time.Now()
	res := s.db.Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, models.SignalStatusOpen).
		Updates(map[string]interface{}{"status": status, "closed_at": &now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update signal status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListOpenSignalsBefore returns OPEN signals created before the cutoff,
// used by the periodic expiry sweep.
func (s *Store) ListOpenSignalsBefore(cutoff time.Time) ([]models.Signal, error) {
	var signals []models.Signal
	err := s.db.Where("status = ? AND created_at < ?", models.SignalStatusOpen, cutoff).
		Find(&signals).Error
	return signals, err
}

// ListSignals returns signals filtered by status and token, newest first
func (s *Store) ListSignals(status models.SignalStatus, token string, limit, offset int) ([]models.Signal, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.Model(&models.Signal{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if token != "" {
		q = q.Where("token_address = ?", token)
	}
	var signals []models.Signal
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&signals).Error
	return signals, err
}

// GetSignal returns a signal by id
func (s *Store) GetSignal(id uint) (*models.Signal, error) {
	var signal models.Signal
	if err := s.db.First(&signal, id).Error; err != nil {
		return nil, err
	}
	return &signal, nil
}

// ListActiveWallets returns the addresses currently under active tracking
func (s *Store) ListActiveWallets() ([]models.TrackedWallet, error) {
	var wallets []models.TrackedWallet
	err := s.db.Where("is_active = ?", true).Find(&wallets).Error
	return wallets, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx surfaces SQLSTATE 23505 in the error text
	return strings.Contains(err.Error(), "23505")
}
