package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is an immutable ledger entry. Positions and snapshots are projections
// of the trade ledger and must always be reproducible by replaying it.
type Trade struct {
	gorm.Model
	BotID      uint      `gorm:"index;not null" json:"bot_id"`
	Symbol     string    `gorm:"index;not null" json:"symbol"`
	Side       string    `gorm:"not null" json:"side"` // "buy" or "sell"
	Quantity   int       `gorm:"not null" json:"quantity"`
	Price      float64   `gorm:"not null" json:"price"`
	TotalValue float64   `gorm:"not null" json:"total_value"`
	Reasoning  string    `json:"reasoning,omitempty"`
	ExecutedAt time.Time `gorm:"index;not null" json:"executed_at"`
}
