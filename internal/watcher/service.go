package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"whalewatch/internal/aggregator"
	"whalewatch/internal/classifier"
	"whalewatch/internal/config"
	"whalewatch/internal/events"
	"whalewatch/internal/registry"
	"whalewatch/internal/storage"
	solanapkg "whalewatch/pkg/solana"
)

const signatureQueueSize = 1024

// Service runs the full ingestion pipeline: the feed subscription, a bounded
// pool of fetch+classify workers, idempotent persistence, per-token
// aggregation and the periodic signal expiry sweep.
type Service struct {
	cfg        *config.Config
	registry   *registry.WalletRegistry
	subs       *SubscriptionManager
	fetcher    *solanapkg.Fetcher
	classifier *classifier.Classifier
	store      *storage.Store
	aggregator *aggregator.Aggregator
	cron       *cron.Cron

	sigCh      chan string
	dropped    uint64 // atomic, signatures dropped on queue overflow
	fetchFails uint64 // atomic

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the pipeline. The store and publisher are passed in as
// explicit handles; the service owns everything else.
func NewService(cfg *config.Config, store *storage.Store, publisher aggregator.EventPublisher) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:        cfg,
		registry:   registry.New(),
		fetcher:    solanapkg.NewFetcher(cfg.SolanaRPC, cfg.FetchTimeout(), 3),
		classifier: classifier.New(cfg.DustThresholdSol),
		store:      store,
		cron:       cron.New(),
		sigCh:      make(chan string, signatureQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.aggregator = aggregator.New(aggregator.Config{
		MinWhales:         cfg.MinWhales,
		TimeWindow:        cfg.TimeWindow(),
		MinTradeAmountSol: cfg.MinTradeAmountSol,
		SignalMaxAge:      cfg.SignalMaxAge(),
	}, store, publisher)

	s.subs = NewSubscriptionManager(SubscriptionConfig{
		Endpoint:    cfg.SolanaWSS,
		BaseDelay:   cfg.ReconnectBaseDelay(),
		MaxDelay:    cfg.ReconnectMaxDelay(),
		MaxAttempts: cfg.MaxReconnectAttempts,
	}, s.observeSignature)

	s.registry.OnChange(s.subs.UpdateWalletSet)
	return s
}

// Start bootstraps the tracked set from storage, opens the feed and starts
// the workers and the expiry sweep.
func (s *Service) Start() error {
	wallets, err := s.store.ListActiveWallets()
	if err != nil {
		return err
	}
	addresses := make([]string, 0, len(wallets))
	for _, w := range wallets {
		addresses = append(addresses, w.Address)
	}
	s.registry.Replace(addresses)

	for i := 0; i < s.cfg.MaxInFlightFetches; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	if _, err := s.cron.AddFunc("@every 1m", s.aggregator.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.subs.Start()

	log.WithFields(log.Fields{
		"wallet_count": len(addresses),
		"workers":      s.cfg.MaxInFlightFetches,
	}).Info("Watcher service started")
	return nil
}

// Stop shuts the pipeline down: the feed closes with a normal closure code,
// in-flight fetches are cancelled, workers drain and the sweep stops.
func (s *Service) Stop() {
	s.subs.Stop()
	s.cancel()
	close(s.sigCh)
	s.wg.Wait()
	<-s.cron.Stop().Done()
	log.Info("Watcher service stopped")
}

// Registry exposes the tracked wallet set
func (s *Service) Registry() *registry.WalletRegistry {
	return s.registry
}

// Health reports feed connection state and error counters
func (s *Service) Health() ServiceHealth {
	return ServiceHealth{
		Feed:              s.subs.Health(),
		TrackedWallets:    s.registry.Len(),
		DroppedSignatures: atomic.LoadUint64(&s.dropped),
		FetchFailures:     atomic.LoadUint64(&s.fetchFails),
	}
}

// ServiceHealth is the observability payload for the status endpoint
type ServiceHealth struct {
	Feed              Health `json:"feed"`
	TrackedWallets    int    `json:"tracked_wallets"`
	DroppedSignatures uint64 `json:"dropped_signatures"`
	FetchFailures     uint64 `json:"fetch_failures"`
}

// HandleWalletCommand applies a tracked-set mutation from the command queue
func (s *Service) HandleWalletCommand(cmd events.WalletCommand) error {
	switch cmd.Action {
	case events.WalletActionTrack:
		s.registry.Add(cmd.Address)
	case events.WalletActionUntrack:
		s.registry.Remove(cmd.Address)
	default:
		return errors.New("unknown wallet command action: " + cmd.Action)
	}
	return nil
}

// observeSignature enqueues a candidate signature without blocking the feed
// read loop. Overflow during bursts is dropped and counted rather than
// fanning out unboundedly.
func (s *Service) observeSignature(signature string) {
	select {
	case s.sigCh <- signature:
	default:
		atomic.AddUint64(&s.dropped, 1)
		log.WithFields(log.Fields{
			"signature": signature,
		}).Warn("Signature queue full, dropping notification")
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for signature := range s.sigCh {
		s.processSignature(signature)
	}
}

func (s *Service) processSignature(signature string) {
	rec, err := s.fetcher.Fetch(s.ctx, signature)
	if err != nil {
		atomic.AddUint64(&s.fetchFails, 1)
		var fetchErr *solanapkg.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Kind == solanapkg.FailureNotFound {
			log.WithFields(log.Fields{
				"signature": signature,
			}).Debug("Transaction not found, skipping")
			return
		}
		log.WithFields(log.Fields{
			"signature": signature,
			"error":     err.Error(),
		}).Warn("Failed to resolve transaction")
		return
	}

	if rec.Failed {
		log.WithFields(log.Fields{
			"signature": signature,
		}).Debug("Transaction failed on chain, skipping")
		return
	}

	for _, wallet := range s.involvedWallets(rec) {
		trade, ok := s.classifier.Classify(rec, wallet)
		if !ok {
			continue
		}

		inserted, err := s.store.InsertTrade(trade)
		if err != nil {
			log.WithFields(log.Fields{
				"signature": signature,
				"wallet":    wallet,
				"error":     err.Error(),
			}).Error("Failed to persist classified trade")
			continue
		}
		if !inserted {
			// Redelivered signature; dedup on (hash, wallet) already
			// recorded this trade, so it must not hit the aggregator twice
			continue
		}

		log.WithFields(log.Fields{
			"signature":     signature,
			"wallet":        wallet,
			"trade_type":    trade.TradeType,
			"token_address": trade.TokenAddress,
			"sol_amount":    trade.SolAmount,
		}).Info("Classified trade")

		s.aggregator.HandleTrade(trade)
	}
}

// involvedWallets returns the tracked wallets this transaction touches,
// either directly in the account key list or as a token balance owner.
func (s *Service) involvedWallets(rec *solanapkg.RawTransactionRecord) []string {
	seen := make(map[string]struct{})
	var wallets []string
	consider := func(addr string) {
		if addr == "" {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		if s.registry.Contains(addr) {
			wallets = append(wallets, addr)
		}
	}
	for _, key := range rec.AccountKeys {
		consider(key)
	}
	for _, tb := range rec.PreTokenBalances {
		consider(tb.Owner)
	}
	for _, tb := range rec.PostTokenBalances {
		consider(tb.Owner)
	}
	return wallets
}
