package classifier

import (
	"math"
	"sort"
	"time"

	"whalewatch/internal/models"
	"whalewatch/pkg/solana"
)

const lamportsPerSol = 1_000_000_000

// WrappedSolMint is the native-SOL sentinel mint. SOL is always the
// settlement asset, so this mint never appears as a trade's token address.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// Well-known program ids, skipped when guessing a transfer counterparty
var programKeys = map[string]struct{}{
	"11111111111111111111111111111111":            {},
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA": {},
	"TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb": {},
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL": {},
	"ComputeBudget111111111111111111111111111111": {},
	WrappedSolMint: {},
}

// Classifier deterministically turns one raw transaction, evaluated from one
// tracked wallet's point of view, into a classified trade or nothing. It is
// pure: identical inputs always produce identical outputs, which is what
// lets the persistence layer deduplicate safely.
type Classifier struct {
	dustThresholdSol float64
}

// New creates a classifier with the given dust threshold in SOL
func New(dustThresholdSol float64) *Classifier {
	return &Classifier{dustThresholdSol: dustThresholdSol}
}

type mintDelta struct {
	mint         string
	delta        float64
	minAcctIndex int
}

// Classify evaluates a raw transaction from the wallet's perspective. The
// second return value is false when the transaction is not economically
// relevant to the wallet.
func (c *Classifier) Classify(rec *solana.RawTransactionRecord, wallet string) (*models.ClassifiedTrade, bool) {
	if rec == nil || wallet == "" {
		return nil, false
	}

	solDelta := c.solDelta(rec, wallet)
	solDeltaSol := float64(solDelta) / lamportsPerSol
	deltas := c.tokenDeltas(rec, wallet)

	observedAt := time.Unix(rec.BlockTime, 0).UTC()
	trade := &models.ClassifiedTrade{
		WalletAddress:   wallet,
		TransactionHash: rec.Signature,
		ObservedAt:      observedAt,
	}

	// Swap detection: SOL moved beyond dust and a token moved the other way
	if math.Abs(solDeltaSol) > c.dustThresholdSol {
		var candidates []mintDelta
		for _, md := range deltas {
			if solDelta < 0 && md.delta > 0 {
				candidates = append(candidates, md)
			} else if solDelta > 0 && md.delta < 0 {
				candidates = append(candidates, md)
			}
		}
		if len(candidates) > 0 {
			chosen := pickSwapLeg(candidates, math.Abs(solDeltaSol))
			trade.TokenAddress = chosen.mint
			trade.SolAmount = math.Abs(solDeltaSol)
			if solDelta < 0 {
				trade.TradeType = models.TradeTypeBuy
			} else {
				trade.TradeType = models.TradeTypeSell
			}
			return trade, true
		}

		// No swap pattern: a plain native-SOL transfer. The token address is
		// left empty, never the native-SOL sentinel.
		trade.SolAmount = math.Abs(solDeltaSol)
		trade.CounterpartyAddress = c.guessCounterparty(rec, wallet)
		if solDelta > 0 {
			trade.TradeType = models.TradeTypeTransferIn
		} else {
			trade.TradeType = models.TradeTypeTransferOut
		}
		return trade, true
	}

	// No meaningful SOL movement: a token moving by itself is a transfer
	if len(deltas) > 0 {
		chosen := pickLargestDelta(deltas)
		trade.TokenAddress = chosen.mint
		trade.SolAmount = 0
		if chosen.delta > 0 {
			trade.TradeType = models.TradeTypeTransferIn
		} else {
			trade.TradeType = models.TradeTypeTransferOut
		}
		return trade, true
	}

	return nil, false
}

// solDelta computes the wallet's lamport delta. Per the classification rule
// the transaction fee is subtracted once more for the fee payer, so a swap's
// reported SOL amount includes the fee the wallet paid to make it. Missing
// balance arrays or an absent wallet yield zero.
func (c *Classifier) solDelta(rec *solana.RawTransactionRecord, wallet string) int64 {
	idx := -1
	for i, key := range rec.AccountKeys {
		if key == wallet {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(rec.PreBalances) || idx >= len(rec.PostBalances) {
		return 0
	}
	delta := int64(rec.PostBalances[idx]) - int64(rec.PreBalances[idx])
	if idx == rec.FeePayerIndex {
		delta -= int64(rec.Fee)
	}
	return delta
}

// tokenDeltas computes per-mint balance changes attributable to the wallet.
// An entry counts when its owner equals the wallet; entries without an owner
// count when the wallet appears anywhere in the account key list. The
// native-SOL sentinel mint is excluded. Results are sorted by ascending
// first account index so downstream tie-breaks are deterministic.
func (c *Classifier) tokenDeltas(rec *solana.RawTransactionRecord, wallet string) []mintDelta {
	walletInKeys := false
	for _, key := range rec.AccountKeys {
		if key == wallet {
			walletInKeys = true
			break
		}
	}

	attributable := func(tb solana.TokenBalance) bool {
		if tb.Owner != "" {
			return tb.Owner == wallet
		}
		return walletInKeys
	}

	type acc struct {
		delta        float64
		minAcctIndex int
	}
	byMint := make(map[string]*acc)
	touch := func(mint string, accountIndex int) *acc {
		a, ok := byMint[mint]
		if !ok {
			a = &acc{minAcctIndex: accountIndex}
			byMint[mint] = a
		}
		if accountIndex < a.minAcctIndex {
			a.minAcctIndex = accountIndex
		}
		return a
	}

	for _, tb := range rec.PreTokenBalances {
		if tb.Mint == WrappedSolMint || !attributable(tb) {
			continue
		}
		touch(tb.Mint, tb.AccountIndex).delta -= tb.UiAmount
	}
	for _, tb := range rec.PostTokenBalances {
		if tb.Mint == WrappedSolMint || !attributable(tb) {
			continue
		}
		touch(tb.Mint, tb.AccountIndex).delta += tb.UiAmount
	}

	deltas := make([]mintDelta, 0, len(byMint))
	for mint, a := range byMint {
		if a.delta == 0 {
			continue
		}
		deltas = append(deltas, mintDelta{mint: mint, delta: a.delta, minAcctIndex: a.minAcctIndex})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].minAcctIndex != deltas[j].minAcctIndex {
			return deltas[i].minAcctIndex < deltas[j].minAcctIndex
		}
		return deltas[i].mint < deltas[j].mint
	})
	return deltas
}

// pickSwapLeg selects among multiple candidate mints. The fixed rule: prefer
// the delta whose magnitude is closest to the SOL magnitude, then ascending
// account-key index (the input is already sorted by index).
func pickSwapLeg(candidates []mintDelta, solMagnitude float64) mintDelta {
	best := candidates[0]
	bestGap := math.Abs(math.Abs(best.delta) - solMagnitude)
	for _, md := range candidates[1:] {
		gap := math.Abs(math.Abs(md.delta) - solMagnitude)
		if gap < bestGap {
			best = md
			bestGap = gap
		}
	}
	return best
}

// pickLargestDelta selects the dominant token movement, ties broken by the
// pre-sorted ascending account index order.
func pickLargestDelta(deltas []mintDelta) mintDelta {
	best := deltas[0]
	for _, md := range deltas[1:] {
		if math.Abs(md.delta) > math.Abs(best.delta) {
			best = md
		}
	}
	return best
}

// guessCounterparty returns the first account key that is neither the wallet
// nor a well-known program. Best effort; may be empty.
func (c *Classifier) guessCounterparty(rec *solana.RawTransactionRecord, wallet string) string {
	for _, key := range rec.AccountKeys {
		if key == wallet {
			continue
		}
		if _, isProgram := programKeys[key]; isProgram {
			continue
		}
		return key
	}
	return ""
}
