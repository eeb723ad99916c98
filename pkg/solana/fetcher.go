package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// FailureKind classifies a fetch failure
type FailureKind string

const (
	FailureNotFound  FailureKind = "not_found"
	FailureTimeout   FailureKind = "timeout"
	FailureTransient FailureKind = "transient"
)

// FetchError is a typed transaction-resolution failure. NotFound is final,
// Timeout means the per-fetch deadline expired, Transient is retried a
// bounded number of times before being surfaced.
type FetchError struct {
	Kind      FailureKind
	Signature string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Signature, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TokenBalance is one pre/post token-balance entry. Owner may be empty when
// the provider omits attribution.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	UiAmount     float64
	Decimals     uint8
}

// RawTransactionRecord carries everything the classifier needs, resolved
// from one signature. It is ephemeral: consumed once, never persisted.
type RawTransactionRecord struct {
	Signature         string
	Slot              uint64
	BlockTime         int64
	Fee               uint64
	FeePayerIndex     int
	Failed            bool
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	AccountKeys       []string
}

// Fetcher resolves signatures into RawTransactionRecords over Solana RPC
type Fetcher struct {
	client     *rpc.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
}

// NewFetcher creates a fetcher with a fixed per-fetch timeout and a bounded
// retry count for transient failures.
func NewFetcher(endpoint string, timeout time.Duration, maxRetries int) *Fetcher {
	return &Fetcher{
		client:     rpc.New(endpoint),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
	}
}

// Fetch resolves a signature into a RawTransactionRecord or a *FetchError.
// NotFound is never retried; Transient failures are retried with a short
// fixed delay up to the configured count.
func (f *Fetcher) Fetch(ctx context.Context, signature string) (*RawTransactionRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, &FetchError{Kind: FailureNotFound, Signature: signature, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var lastErr *FetchError
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: FailureTimeout, Signature: signature, Err: err}
		}

		tx, err := f.client.GetParsedTransaction(ctx, sig, &rpc.GetParsedTransactionOpts{
			MaxSupportedTransactionVersion: func() *uint64 { v := uint64(0); return &v }(),
		})
		if err == nil {
			if attempt > 0 {
				log.WithFields(log.Fields{
					"signature":      signature,
					"retry_attempts": attempt,
				}).Debug("Retrieved transaction after retries")
			}
			return f.buildRecord(ctx, signature, tx)
		}

		lastErr = classifyFetchError(signature, err)
		if lastErr.Kind != FailureTransient {
			return nil, lastErr
		}

		if attempt < f.maxRetries {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Kind: FailureTimeout, Signature: signature, Err: ctx.Err()}
			case <-time.After(f.retryDelay):
			}
		}
	}
	return nil, lastErr
}

func classifyFetchError(signature string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FetchError{Kind: FailureTimeout, Signature: signature, Err: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return &FetchError{Kind: FailureNotFound, Signature: signature, Err: err}
	}
	return &FetchError{Kind: FailureTransient, Signature: signature, Err: err}
}

func (f *Fetcher) buildRecord(ctx context.Context, signature string, tx *rpc.GetParsedTransactionResult) (*RawTransactionRecord, error) {
	if tx == nil || tx.Transaction == nil {
		return nil, &FetchError{
			Kind:      FailureNotFound,
			Signature: signature,
			Err:       errors.New("empty transaction result"),
		}
	}

	rec := &RawTransactionRecord{
		Signature: signature,
		Slot:      tx.Slot,
	}

	for _, account := range tx.Transaction.Message.AccountKeys {
		rec.AccountKeys = append(rec.AccountKeys, account.PublicKey.String())
	}
	// The fee payer is the first signer, which the message places at index 0
	rec.FeePayerIndex = 0

	if tx.Meta != nil {
		rec.Fee = tx.Meta.Fee
		rec.Failed = tx.Meta.Err != nil
		rec.PreBalances = tx.Meta.PreBalances
		rec.PostBalances = tx.Meta.PostBalances
		rec.PreTokenBalances = convertTokenBalances(tx.Meta.PreTokenBalances)
		rec.PostTokenBalances = convertTokenBalances(tx.Meta.PostTokenBalances)
	}

	// Block time is not part of the parsed result; resolve it separately and
	// fall back to wall clock when the node has pruned it.
	blockTime, err := f.client.GetBlockTime(ctx, tx.Slot)
	if err != nil || blockTime == nil {
		rec.BlockTime = time.Now().Unix()
	} else {
		rec.BlockTime = int64(*blockTime)
	}

	return rec, nil
}

func convertTokenBalances(balances []rpc.TokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(balances))
	for _, bal := range balances {
		tb := TokenBalance{
			AccountIndex: int(bal.AccountIndex),
			Mint:         bal.Mint.String(),
		}
		if bal.Owner != nil {
			tb.Owner = bal.Owner.String()
		}
		if bal.UiTokenAmount != nil {
			tb.Decimals = bal.UiTokenAmount.Decimals
			if bal.UiTokenAmount.UiAmount != nil {
				tb.UiAmount = *bal.UiTokenAmount.UiAmount
			}
		}
		out = append(out, tb)
	}
	return out
}
