package watcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalewatch/internal/config"
	"whalewatch/internal/events"
	solanapkg "whalewatch/pkg/solana"
)

func newTestService(t *testing.T) *Service {
	cfg, err := config.Load()
	require.NoError(t, err)
	return NewService(cfg, nil, nil)
}

func TestHandleWalletCommand(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.HandleWalletCommand(events.WalletCommand{
		Action: events.WalletActionTrack, Address: "walletA",
	}))
	assert.True(t, s.Registry().Contains("walletA"))

	require.NoError(t, s.HandleWalletCommand(events.WalletCommand{
		Action: events.WalletActionUntrack, Address: "walletA",
	}))
	assert.False(t, s.Registry().Contains("walletA"))

	err := s.HandleWalletCommand(events.WalletCommand{Action: "explode", Address: "walletA"})
	assert.Error(t, err)
}

func TestObserveSignatureDropsOnOverflow(t *testing.T) {
	s := newTestService(t)

	// No workers are draining, so the queue fills and overflow is counted
	for i := 0; i < signatureQueueSize+5; i++ {
		s.observeSignature(fmt.Sprintf("sig-%d", i))
	}

	h := s.Health()
	assert.Equal(t, uint64(5), h.DroppedSignatures)
}

func TestInvolvedWallets(t *testing.T) {
	s := newTestService(t)
	s.Registry().Replace([]string{"walletA", "walletB", "walletC"})

	rec := &solanapkg.RawTransactionRecord{
		AccountKeys: []string{"walletA", "walletX", "11111111111111111111111111111111"},
		PreTokenBalances: []solanapkg.TokenBalance{
			{AccountIndex: 3, Mint: "mintM", Owner: "walletB"},
		},
		PostTokenBalances: []solanapkg.TokenBalance{
			{AccountIndex: 3, Mint: "mintM", Owner: "walletB"},
			{AccountIndex: 4, Mint: "mintM", Owner: "walletA"}, // duplicate owner
			{AccountIndex: 5, Mint: "mintM", Owner: ""},
		},
	}

	wallets := s.involvedWallets(rec)
	assert.ElementsMatch(t, []string{"walletA", "walletB"}, wallets)
}
