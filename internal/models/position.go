package models

import "gorm.io/gorm"

// Position is the maintained holding state for one (bot, symbol).
// A position whose quantity reaches zero is deleted, never kept at zero,
// so avg_cost is only ever defined for a held position.
type Position struct {
	gorm.Model
	BotID    uint    `gorm:"uniqueIndex:idx_bot_symbol;not null" json:"bot_id"`
	Symbol   string  `gorm:"uniqueIndex:idx_bot_symbol;not null" json:"symbol"`
	Quantity int     `gorm:"not null" json:"quantity"`
	AvgCost  float64 `gorm:"not null" json:"avg_cost"`
}
