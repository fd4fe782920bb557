package models

import (
	"time"

	"gorm.io/gorm"
)

// Engagement represents one tracked account in the off-chain ledger.
//
// Rows are created and ActivitySeconds advanced by the ingestion pipeline;
// this service only ever mutates the three reward fields, and only after the
// corresponding on-chain transaction has confirmed.
type Engagement struct {
	gorm.Model
	ExternalID      string `gorm:"size:64;uniqueIndex;not null"`
	WalletAddress   string `gorm:"size:44;index"`
	ActivitySeconds int64  `gorm:"default:0;index"`

	// Reward state, owned by the reconciler
	LastMilestone      int        `gorm:"default:0"`
	LastRewardAt       *time.Time `gorm:"index"`
	TotalRewardClaimed uint64     `gorm:"default:0"`
}

// LedgerStats aggregates the engagement table for reporting
type LedgerStats struct {
	TotalAccounts      int64   `json:"total_accounts"`
	AvgActivitySeconds float64 `json:"avg_activity_seconds"`
	TotalRewardClaimed uint64  `json:"total_reward_claimed"`
}
