package models

import (
	"strings"
	"time"
)

// TrackedWallet represents a whale address under active monitoring. Rows are
// deleted for real: a soft-delete marker would keep the address held by the
// unique index after untracking.
type TrackedWallet struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Address   string    `gorm:"size:100;not null;uniqueIndex:idx_tracked_wallets_address" json:"address"`
	Alias     string    `gorm:"size:100" json:"alias"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	Tags      string    `gorm:"size:255" json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (TrackedWallet) TableName() string {
	return "tracked_wallets"
}

// TagList splits the comma-separated tags column
func (w *TrackedWallet) TagList() []string {
	if w.Tags == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(w.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
