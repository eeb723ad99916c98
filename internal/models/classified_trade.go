package models

import (
	"time"
)

// TradeType is the direction assigned to a classified trade
type TradeType string

const (
	TradeTypeBuy         TradeType = "BUY"
	TradeTypeSell        TradeType = "SELL"
	TradeTypeTransferIn  TradeType = "TRANSFER_IN"
	TradeTypeTransferOut TradeType = "TRANSFER_OUT"
	TradeTypeOther       TradeType = "OTHER"
)

// ClassifiedTrade is the typed, directional record produced by interpreting a
// raw transaction's balance deltas from one tracked wallet's perspective.
// (transaction_hash, wallet_address) is the idempotency key: re-ingestion of
// the same transaction for the same wallet must be a no-op.
type ClassifiedTrade struct {
	ID                  uint      `gorm:"primarykey" json:"id"`
	WalletAddress       string    `gorm:"size:100;not null;uniqueIndex:idx_classified_trades_hash_wallet" json:"wallet_address"`
	TransactionHash     string    `gorm:"size:128;not null;uniqueIndex:idx_classified_trades_hash_wallet" json:"transaction_hash"`
	TokenAddress        string    `gorm:"size:100;index" json:"token_address"`
	TradeType           TradeType `gorm:"size:20;not null" json:"trade_type"`
	SolAmount           float64   `gorm:"not null" json:"sol_amount"`
	CounterpartyAddress string    `gorm:"size:100" json:"counterparty_address"`
	ObservedAt          time.Time `gorm:"not null;index" json:"observed_at"`
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name
func (ClassifiedTrade) TableName() string {
	return "classified_trades"
}
