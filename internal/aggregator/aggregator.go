package aggregator

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"whalewatch/internal/events"
	"whalewatch/internal/models"
)

// SignalStore is the persistence contract the aggregator needs. Creation is
// rejected when an OPEN signal already exists for the token, and status
// updates only succeed while the signal is still OPEN.
type SignalStore interface {
	GetOpenSignal(tokenAddress string) (*models.Signal, error)
	CreateSignal(signal *models.Signal) (bool, error)
	UpdateSignalStatus(id uint, status models.SignalStatus) (bool, error)
	ListOpenSignalsBefore(cutoff time.Time) ([]models.Signal, error)
}

// EventPublisher fans signal lifecycle events out to downstream consumers,
// at-least-once, with no cross-topic ordering.
type EventPublisher interface {
	Publish(topic string, payload interface{}) error
}

// Config carries the coordination detection thresholds
type Config struct {
	MinWhales         int
	TimeWindow        time.Duration
	MinTradeAmountSol float64
	SignalMaxAge      time.Duration
}

type participant struct {
	lastBuy   time.Time
	volumeSol float64
}

// tokenState is the rolling-window view for one token. Each token has its
// own lock so aggregation for different tokens proceeds fully in parallel
// while two concurrent buys of the same token never race the threshold
// check.
type tokenState struct {
	mu           sync.Mutex
	participants map[string]*participant
}

// Aggregator consumes classified trades and detects coordinated multi-wallet
// buying per token.
type Aggregator struct {
	cfg       Config
	store     SignalStore
	publisher EventPublisher
	tokens    sync.Map // map[string]*tokenState
	now       func() time.Time
}

// New creates an aggregator
func New(cfg Config, store SignalStore, publisher EventPublisher) *Aggregator {
	return &Aggregator{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// HandleTrade feeds one classified trade into the per-token window state.
// Only qualifying buys advance the window; a sell removes the wallet from
// the live view without touching any already-created signal.
func (a *Aggregator) HandleTrade(trade *models.ClassifiedTrade) {
	if trade.TokenAddress == "" {
		return
	}

	switch trade.TradeType {
	case models.TradeTypeBuy:
		if trade.SolAmount < a.cfg.MinTradeAmountSol {
			return
		}
		a.handleBuy(trade)
	case models.TradeTypeSell:
		a.handleSell(trade)
	}
}

func (a *Aggregator) handleBuy(trade *models.ClassifiedTrade) {
	ts := a.state(trade.TokenAddress)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := a.now()
	a.evictStaleLocked(ts, now)

	p, ok := ts.participants[trade.WalletAddress]
	if !ok {
		p = &participant{}
		ts.participants[trade.WalletAddress] = p
	}
	if trade.ObservedAt.After(p.lastBuy) {
		p.lastBuy = trade.ObservedAt
	}
	p.volumeSol += trade.SolAmount

	whaleCount := len(ts.participants)
	if whaleCount < a.cfg.MinWhales {
		return
	}

	existing, err := a.store.GetOpenSignal(trade.TokenAddress)
	if err != nil {
		log.WithFields(log.Fields{
			"token_address": trade.TokenAddress,
			"error":         err.Error(),
		}).Error("Failed to look up open signal")
		return
	}
	if existing != nil {
		// Threshold already reported; live bookkeeping above is enough
		return
	}

	wallets := make([]string, 0, whaleCount)
	var totalSol float64
	for wallet, part := range ts.participants {
		wallets = append(wallets, wallet)
		totalSol += part.volumeSol
	}
	sort.Strings(wallets)
	walletsJSON, _ := json.Marshal(wallets)

	signal := &models.Signal{
		TokenAddress:   trade.TokenAddress,
		Status:         models.SignalStatusOpen,
		WhaleCount:     whaleCount,
		TotalSolAmount: totalSol,
		TriggerReason: fmt.Sprintf("%d tracked wallets bought within %s (%.4f SOL total)",
			whaleCount, a.cfg.TimeWindow, totalSol),
		ParticipantWallets: walletsJSON,
	}

	created, err := a.store.CreateSignal(signal)
	if err != nil {
		log.WithFields(log.Fields{
			"token_address": trade.TokenAddress,
			"error":         err.Error(),
		}).Error("Failed to create signal")
		return
	}
	if !created {
		return
	}

	log.WithFields(log.Fields{
		"signal_id":     signal.ID,
		"token_address": signal.TokenAddress,
		"whale_count":   signal.WhaleCount,
		"total_sol":     signal.TotalSolAmount,
	}).Info("Coordinated buying signal created")

	if err := a.publisher.Publish(events.TopicSignalCreated, signal); err != nil {
		log.WithFields(log.Fields{
			"signal_id": signal.ID,
			"error":     err.Error(),
		}).Error("Failed to publish signal created event")
	}
}

func (a *Aggregator) handleSell(trade *models.ClassifiedTrade) {
	value, ok := a.tokens.Load(trade.TokenAddress)
	if !ok {
		return
	}
	ts := value.(*tokenState)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, tracked := ts.participants[trade.WalletAddress]; tracked {
		delete(ts.participants, trade.WalletAddress)
		log.WithFields(log.Fields{
			"token_address": trade.TokenAddress,
			"wallet":        trade.WalletAddress,
		}).Debug("Wallet sold, removed from live coordination view")
	}
}

// Sweep expires OPEN signals older than the configured maximum age. The
// conditional status update makes each transition happen exactly once even
// when sweeps overlap.
func (a *Aggregator) Sweep() {
	cutoff := a.now().Add(-a.cfg.SignalMaxAge)
	signals, err := a.store.ListOpenSignalsBefore(cutoff)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err.Error(),
		}).Error("Signal expiry sweep failed")
		return
	}

	for i := range signals {
		signal := &signals[i]
		expired, err := a.store.UpdateSignalStatus(signal.ID, models.SignalStatusExpired)
		if err != nil {
			log.WithFields(log.Fields{
				"signal_id": signal.ID,
				"error":     err.Error(),
			}).Error("Failed to expire signal")
			continue
		}
		if !expired {
			continue
		}

		log.WithFields(log.Fields{
			"signal_id":     signal.ID,
			"token_address": signal.TokenAddress,
		}).Info("Signal expired")

		if err := a.publisher.Publish(events.TopicSignalExpired, events.SignalExpiredEvent{
			SignalID:     signal.ID,
			TokenAddress: signal.TokenAddress,
		}); err != nil {
			log.WithFields(log.Fields{
				"signal_id": signal.ID,
				"error":     err.Error(),
			}).Error("Failed to publish signal expired event")
		}
	}
}

// WindowView reports the current live participant count for a token,
// exposed for the observability surface.
func (a *Aggregator) WindowView(tokenAddress string) (participants int, volumeSol float64) {
	value, ok := a.tokens.Load(tokenAddress)
	if !ok {
		return 0, 0
	}
	ts := value.(*tokenState)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	a.evictStaleLocked(ts, a.now())
	for _, p := range ts.participants {
		volumeSol += p.volumeSol
	}
	return len(ts.participants), volumeSol
}

func (a *Aggregator) state(tokenAddress string) *tokenState {
	value, _ := a.tokens.LoadOrStore(tokenAddress, &tokenState{
		participants: make(map[string]*participant),
	})
	return value.(*tokenState)
}

// evictStaleLocked drops participants whose last qualifying buy fell out of
// the rolling window. Volume follows participation: an evicted wallet's
// contribution leaves the window with it.
func (a *Aggregator) evictStaleLocked(ts *tokenState, now time.Time) {
	oldest := now.Add(-a.cfg.TimeWindow)
	for wallet, p := range ts.participants {
		if p.lastBuy.Before(oldest) {
			delete(ts.participants, wallet)
		}
	}
}
