package models

import "gorm.io/gorm"

// StartingCash is the cash balance every bot begins with.
const StartingCash = 100000.0

// Bot represents a registered trading bot.
type Bot struct {
	gorm.Model
	Name         string  `gorm:"uniqueIndex;not null" json:"name"`
	Description  string  `json:"description"`
	CreatorEmail string  `json:"creator_email"`
	APIKey       string  `gorm:"uniqueIndex" json:"api_key,omitempty"`
	CashBalance  float64 `gorm:"not null" json:"cash_balance"`
	IsTest       bool    `gorm:"default:false" json:"is_test"`
	IsActive     bool    `gorm:"default:false" json:"is_active"`
}
