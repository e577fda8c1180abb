package models

import (
	"time"

	"gorm.io/gorm"
)

// PortfolioSnapshot is one bot's end-of-day valuation. Snapshots are a cache:
// the generator deletes and rebuilds them wholesale from the trade ledger.
type PortfolioSnapshot struct {
	gorm.Model
	BotID          uint      `gorm:"index;not null" json:"bot_id"`
	TotalValue     float64   `gorm:"not null" json:"total_value"`
	CashBalance    float64   `gorm:"not null" json:"cash_balance"`
	PositionsValue float64   `gorm:"not null" json:"positions_value"`
	DailyPnL       float64   `json:"daily_pnl"`
	TotalPnL       float64   `json:"total_pnl"`
	SnapshotAt     time.Time `gorm:"index;not null" json:"snapshot_at"`
}
