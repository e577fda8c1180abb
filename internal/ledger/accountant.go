package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jyron/tradershub/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Holding is one in-memory position: quantity held and its weighted-average
// cost basis.
type Holding struct {
	Quantity int
	AvgCost  float64
}

// PositionSet maps symbol -> holding for one bot.
type PositionSet map[string]Holding

// RoundValue rounds a monetary amount to 2 decimals, the precision stored on
// trade rows.
func RoundValue(v float64) float64 {
	return math.Round(v*100) / 100
}

// Apply applies one trade to a position set using weighted-average-cost
// accounting and returns the new cash balance. On a buy the average cost
// becomes (c*n + p*q)/(n+q); a sell never changes the average cost and a
// position sold down to zero is removed, not zeroed. The position set is
// mutated in place.
func Apply(positions PositionSet, cash float64, side, symbol string, quantity int, price float64) (float64, error) {
	totalValue := RoundValue(price * float64(quantity))

	switch side {
	case models.SideBuy:
		if cash < totalValue {
			return cash, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, totalValue, cash)
		}
		h, ok := positions[symbol]
		if !ok {
			positions[symbol] = Holding{Quantity: quantity, AvgCost: price}
		} else {
			newQty := h.Quantity + quantity
			newAvg := (h.AvgCost*float64(h.Quantity) + price*float64(quantity)) / float64(newQty)
			positions[symbol] = Holding{Quantity: newQty, AvgCost: newAvg}
		}
		return cash - totalValue, nil

	case models.SideSell:
		h, ok := positions[symbol]
		if !ok || h.Quantity < quantity {
			return cash, fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientShares, quantity, symbol, h.Quantity)
		}
		newQty := h.Quantity - quantity
		if newQty == 0 {
			delete(positions, symbol)
		} else {
			positions[symbol] = Holding{Quantity: newQty, AvgCost: h.AvgCost}
		}
		return cash + totalValue, nil

	default:
		return cash, fmt.Errorf("unknown trade side %q", side)
	}
}

// Accountant is the persisted counterpart of Apply: it records one trade
// against the ledger store, updating the bot's cash and position rows and
// inserting the trade row in a single transaction, so a crash mid-update
// cannot leave cash and positions inconsistent.
type Accountant struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAccountant creates an accountant writing to the given ledger store.
func NewAccountant(db *gorm.DB, logger *zap.Logger) *Accountant {
	return &Accountant{db: db, logger: logger}
}

// Execute validates and records one trade for a bot at a historical
// timestamp. It fails with ErrInsufficientFunds or ErrInsufficientShares
// without touching the store.
func (a *Accountant) Execute(botID uint, symbol, side string, quantity int, price float64, reasoning string, executedAt time.Time) (*models.Trade, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if side != models.SideBuy && side != models.SideSell {
		return nil, fmt.Errorf("unknown trade side %q", side)
	}

	totalValue := RoundValue(price * float64(quantity))
	trade := models.Trade{
		BotID:      botID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		TotalValue: totalValue,
		Reasoning:  reasoning,
		ExecutedAt: executedAt,
	}

	err := a.db.Transaction(func(tx *gorm.DB) error {
		var bot models.Bot
		if err := tx.First(&bot, botID).Error; err != nil {
			return fmt.Errorf("could not load bot %d: %w", botID, err)
		}

		if side == models.SideBuy {
			if bot.CashBalance < totalValue {
				return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, totalValue, bot.CashBalance)
			}
			if err := tx.Model(&bot).Update("cash_balance", gorm.Expr("cash_balance - ?", totalValue)).Error; err != nil {
				return fmt.Errorf("failed to debit cash: %w", err)
			}
		} else {
			var position models.Position
			err := tx.Where("bot_id = ? AND symbol = ?", botID, symbol).First(&position).Error
			if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && position.Quantity < quantity) {
				return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientShares, quantity, symbol, position.Quantity)
			}
			if err != nil {
				return fmt.Errorf("failed to check position: %w", err)
			}
			if err := tx.Model(&bot).Update("cash_balance", gorm.Expr("cash_balance + ?", totalValue)).Error; err != nil {
				return fmt.Errorf("failed to credit cash: %w", err)
			}
		}

		if err := a.updatePosition(tx, botID, symbol, side, quantity, price); err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}

		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Recorded trade",
		zap.Uint("bot_id", botID),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Int("quantity", quantity),
		zap.Float64("total_value", totalValue))
	return &trade, nil
}

// updatePosition upserts (buy) or reduces (sell) the (bot, symbol) position
// row inside the surrounding transaction.
func (a *Accountant) updatePosition(tx *gorm.DB, botID uint, symbol, side string, quantity int, price float64) error {
	var position models.Position
	err := tx.Where("bot_id = ? AND symbol = ?", botID, symbol).First(&position).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if side != models.SideBuy {
			return fmt.Errorf("%w: no position in %s", ErrInsufficientShares, symbol)
		}
		return tx.Create(&models.Position{
			BotID:    botID,
			Symbol:   symbol,
			Quantity: quantity,
			AvgCost:  price,
		}).Error
	}
	if err != nil {
		return err
	}

	if side == models.SideBuy {
		newQty := position.Quantity + quantity
		newAvg := (position.AvgCost*float64(position.Quantity) + price*float64(quantity)) / float64(newQty)
		return tx.Model(&position).Updates(map[string]interface{}{
			"quantity": newQty,
			"avg_cost": newAvg,
		}).Error
	}

	newQty := position.Quantity - quantity
	if newQty == 0 {
		// A closed position is deleted, never kept at quantity zero.
		return tx.Unscoped().Delete(&position).Error
	}
	return tx.Model(&position).Update("quantity", newQty).Error
}
