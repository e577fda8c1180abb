package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jyron/tradershub/internal/ledger"
	"github.com/jyron/tradershub/internal/models"
	"github.com/jyron/tradershub/internal/pricing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Summary reports what a snapshot run accomplished and what it had to skip.
type Summary struct {
	Bots           int
	TradingDays    int
	Written        int
	SkippedDays    int // whole days lost to a failed batch fetch
	SkippedBotDays int // single bot/day combinations missing a price
}

// Generator materializes one end-of-day portfolio snapshot per bot per
// trading day by replaying the trade ledger against cached closing prices.
// Snapshots are fully rebuilt every run; with an unchanged ledger the rebuild
// reproduces identical rows.
type Generator struct {
	db     *gorm.DB
	cache  *pricing.Cache
	logger *zap.Logger
}

// NewGenerator creates a snapshot generator over the given store and
// run-scoped price cache.
func NewGenerator(db *gorm.DB, cache *pricing.Cache, logger *zap.Logger) *Generator {
	return &Generator{db: db, cache: cache, logger: logger.Named("snapshots")}
}

// Generate walks every weekday between the earliest and latest trade across
// all bots, in ascending order (daily P&L depends on the previous day's
// value), and writes one snapshot per bot per day. A missing price skips
// only that bot/day; a failed day fetch skips only that day.
func (g *Generator) Generate(ctx context.Context) (Summary, error) {
	var summary Summary

	var botIDs []uint
	if err := g.db.Model(&models.Trade{}).Distinct().Pluck("bot_id", &botIDs).Error; err != nil {
		return summary, fmt.Errorf("could not list bots with trades: %w", err)
	}
	if len(botIDs) == 0 {
		g.logger.Info("No bots with trades, nothing to snapshot")
		return summary, nil
	}

	var bots []models.Bot
	if err := g.db.Where("id IN ?", botIDs).Order("name").Find(&bots).Error; err != nil {
		return summary, fmt.Errorf("could not load bots: %w", err)
	}
	summary.Bots = len(bots)

	// Load each bot's full ledger once; replay cutoffs do the per-day work.
	tradesByBot := make(map[uint][]models.Trade, len(bots))
	for _, bot := range bots {
		var trades []models.Trade
		if err := g.db.Where("bot_id = ?", bot.ID).Order("executed_at ASC, id ASC").Find(&trades).Error; err != nil {
			return summary, fmt.Errorf("could not load trades for bot %d: %w", bot.ID, err)
		}
		tradesByBot[bot.ID] = trades
	}

	first, last, err := g.globalDateRange()
	if err != nil {
		return summary, err
	}

	// Full rebuild semantics: existing snapshots go first.
	if err := g.db.Unscoped().Where("bot_id IN ?", botIDs).Delete(&models.PortfolioSnapshot{}).Error; err != nil {
		return summary, fmt.Errorf("could not delete existing snapshots: %w", err)
	}

	days := tradingDays(first, last)
	summary.TradingDays = len(days)
	g.logger.Info("Generating snapshots",
		zap.Int("bots", len(bots)),
		zap.String("first_day", first.Format(pricing.DayFormat)),
		zap.String("last_day", last.Format(pricing.DayFormat)),
		zap.Int("trading_days", len(days)))

	previousValue := make(map[uint]float64, len(bots))
	for _, bot := range bots {
		previousValue[bot.ID] = models.StartingCash
	}

	for _, day := range days {
		cutoff := endOfDay(day)

		symbols := g.symbolsNeededOn(bots, tradesByBot, cutoff)
		if len(symbols) > 0 {
			if err := g.cache.Populate(ctx, symbols, day); err != nil {
				g.logger.Warn("Skipping day, batch price fetch failed",
					zap.String("day", day.Format(pricing.DayFormat)),
					zap.Error(err))
				summary.SkippedDays++
				continue
			}
		}

		// Each day's snapshot inserts are their own unit of work.
		err := g.db.Transaction(func(tx *gorm.DB) error {
			for _, bot := range bots {
				snap, err := g.valueBot(bot, tradesByBot[bot.ID], day, cutoff)
				if errors.Is(err, pricing.ErrPriceUnavailable) {
					g.logger.Debug("Skipping bot for day, price unavailable",
						zap.String("bot", bot.Name),
						zap.String("day", day.Format(pricing.DayFormat)),
						zap.Error(err))
					summary.SkippedBotDays++
					continue
				}
				if err != nil {
					return err
				}

				snap.DailyPnL = snap.TotalValue - previousValue[bot.ID]
				snap.TotalPnL = snap.TotalValue - models.StartingCash
				if err := tx.Create(snap).Error; err != nil {
					return fmt.Errorf("failed to insert snapshot: %w", err)
				}
				previousValue[bot.ID] = snap.TotalValue
				summary.Written++
			}
			return nil
		})
		if err != nil {
			return summary, err
		}
	}

	g.logger.Info("Snapshot generation complete",
		zap.Int("written", summary.Written),
		zap.Int("skipped_days", summary.SkippedDays),
		zap.Int("skipped_bot_days", summary.SkippedBotDays),
		zap.Int("prices_cached", g.cache.Len()))
	return summary, nil
}

// valueBot replays one bot's ledger to the cutoff and prices the holdings
// from the cache. P&L fields are filled in by the caller.
func (g *Generator) valueBot(bot models.Bot, trades []models.Trade, day time.Time, cutoff time.Time) (*models.PortfolioSnapshot, error) {
	holdings, cash := ledger.Replay(trades, cutoff)

	positionsValue := 0.0
	for symbol, qty := range holdings {
		price, err := g.cache.CloseOn(symbol, day)
		if err != nil {
			return nil, err
		}
		positionsValue += price * float64(qty)
	}

	return &models.PortfolioSnapshot{
		BotID:          bot.ID,
		TotalValue:     cash + positionsValue,
		CashBalance:    cash,
		PositionsValue: positionsValue,
		SnapshotAt:     cutoff,
	}, nil
}

// symbolsNeededOn returns the sorted union of symbols any bot holds at the
// cutoff, so the day's prices can be fetched in one batched call.
func (g *Generator) symbolsNeededOn(bots []models.Bot, tradesByBot map[uint][]models.Trade, cutoff time.Time) []string {
	set := make(map[string]struct{})
	for _, bot := range bots {
		holdings, _ := ledger.Replay(tradesByBot[bot.ID], cutoff)
		for symbol := range holdings {
			set[symbol] = struct{}{}
		}
	}
	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// globalDateRange returns the dates of the earliest and latest trade across
// all bots.
func (g *Generator) globalDateRange() (time.Time, time.Time, error) {
	var first, last models.Trade
	if err := g.db.Order("executed_at ASC").First(&first).Error; err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("could not find earliest trade: %w", err)
	}
	if err := g.db.Order("executed_at DESC").First(&last).Error; err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("could not find latest trade: %w", err)
	}
	return first.ExecutedAt, last.ExecutedAt, nil
}

// tradingDays lists every weekday between first and last inclusive, using
// weekdays as the trading-day proxy.
func tradingDays(first, last time.Time) []time.Time {
	var days []time.Time
	d := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location())
	for !d.After(end) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())
}
