package models

import (
	"encoding/json"
	"time"
)

// SignalStatus is the lifecycle state of a coordination signal
type SignalStatus string

const (
	SignalStatusOpen      SignalStatus = "OPEN"
	SignalStatusExecuted  SignalStatus = "EXECUTED"
	SignalStatusExpired   SignalStatus = "EXPIRED"
	SignalStatusCancelled SignalStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is permitted
func (s SignalStatus) IsTerminal() bool {
	return s == SignalStatusExecuted || s == SignalStatusExpired || s == SignalStatusCancelled
}

// Signal is an immutable record of a coordinated-buying threshold crossing.
// Only the status (and closed_at) may change after creation, and at most one
// OPEN signal may exist per token at any time.
type Signal struct {
	ID                 uint            `gorm:"primarykey" json:"id"`
	TokenAddress       string          `gorm:"size:100;not null;index" json:"token_address"`
	Status             SignalStatus    `gorm:"size:20;not null;index" json:"status"`
	WhaleCount         int             `gorm:"not null" json:"whale_count"`
	TotalSolAmount     float64         `gorm:"not null" json:"total_sol_amount"`
	TriggerReason      string          `gorm:"type:text" json:"trigger_reason"`
	ParticipantWallets json.RawMessage `gorm:"type:jsonb" json:"participant_wallets"`
	CreatedAt          time.Time       `json:"created_at" gorm:"autoCreateTime"`
	ClosedAt           *time.Time      `json:"closed_at"`
}

// TableName specifies the table name
func (Signal) TableName() string {
	return "signals"
}

// Participants decodes the participant wallet list
func (s *Signal) Participants() []string {
	var wallets []string
	if len(s.ParticipantWallets) > 0 {
		_ = json.Unmarshal(s.ParticipantWallets, &wallets)
	}
	return wallets
}
