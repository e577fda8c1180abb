package backfill

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jyron/tradershub/internal/config"
	"github.com/jyron/tradershub/internal/ledger"
	"github.com/jyron/tradershub/internal/models"
	"github.com/jyron/tradershub/internal/platform"
	"github.com/jyron/tradershub/internal/pricing"
	"github.com/jyron/tradershub/internal/schedule"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tradeHour is the hour of day historical trades are stamped with.
const tradeHour = 16

// Summary reports the outcome of one seed run.
type Summary struct {
	BotsSeeded     int
	TradesInserted int
	TradesSkipped  int
	PricesCached   int
}

// Runner seeds the platform with synthetic bots whose trade histories are
// shaped by persona schedules built from real historical closing prices.
type Runner struct {
	db       *gorm.DB
	cache    *pricing.Cache
	platform platform.ClientInterface
	cfg      config.Backfill
	rng      *rand.Rand
	logger   *zap.Logger
}

// NewRunner creates a seed runner. A zero seed falls back to wall-clock
// seeding; set it for reproducible schedules.
func NewRunner(db *gorm.DB, cache *pricing.Cache, platformClient platform.ClientInterface, cfg config.Backfill, logger *zap.Logger) *Runner {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Runner{
		db:       db,
		cache:    cache,
		platform: platformClient,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.Named("backfill"),
	}
}

// Run executes a full seed: remove previous test bots, fetch a year of daily
// bars, register and claim each configured bot, build its persona schedule,
// and record the scheduled trades against the ledger at historical
// timestamps. Per-trade failures are skipped and counted, never fatal to the
// run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	removed, err := r.cleanupTestBots()
	if err != nil {
		return summary, err
	}
	r.logger.Info("Cleaned up existing test bots", zap.Int64("removed", removed))

	days := pastTradingDays(time.Now(), r.cfg.DaysBack, r.cfg.TradingDays)
	r.logger.Info("Fetching daily bars",
		zap.Int("trading_days", len(days)),
		zap.Int("symbols", len(r.cfg.Symbols)))

	for _, day := range days {
		if err := r.cache.Populate(ctx, r.cfg.Symbols, day); err != nil {
			r.logger.Warn("Failed to fetch bars for day, continuing",
				zap.String("day", day.Format(pricing.DayFormat)),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}
	summary.PricesCached = r.cache.Len()
	r.logger.Info("Cached symbol-day bars", zap.Int("count", summary.PricesCached))

	history := make(map[string][]pricing.Bar, len(r.cfg.Symbols))
	for _, symbol := range r.cfg.Symbols {
		if bars := r.cache.History(symbol); len(bars) > 0 {
			history[symbol] = bars
		}
	}

	scheduler := schedule.NewScheduler(r.cfg, r.rng, r.logger)

	for _, spec := range r.cfg.Bots {
		persona, err := schedule.ParsePersona(spec.Persona)
		if err != nil {
			return summary, fmt.Errorf("bot %s: %w", spec.Name, err)
		}

		bot, err := r.registerBot(ctx, spec)
		if err != nil {
			r.logger.Error("Failed to register bot, skipping", zap.String("name", spec.Name), zap.Error(err))
			continue
		}

		trades := scheduler.Build(history, persona, r.cfg.TradeTarget)
		r.logger.Info("Built trade schedule",
			zap.String("bot", spec.Name),
			zap.String("persona", persona.String()),
			zap.Int("trades", len(trades)))

		inserted, skipped := r.insertSchedule(bot, trades)
		summary.TradesInserted += inserted
		summary.TradesSkipped += skipped
		summary.BotsSeeded++
		r.logger.Info("Seeded bot",
			zap.String("bot", spec.Name),
			zap.Int("inserted", inserted),
			zap.Int("skipped", skipped))
	}

	r.logger.Info("Seed run complete",
		zap.Int("bots", summary.BotsSeeded),
		zap.Int("trades_inserted", summary.TradesInserted),
		zap.Int("trades_skipped", summary.TradesSkipped))
	return summary, nil
}

// registerBot registers and claims the bot through the platform API, then
// makes sure a matching row exists in the shared store.
func (r *Runner) registerBot(ctx context.Context, spec config.BotSpec) (*models.Bot, error) {
	resp, err := r.platform.RegisterBot(ctx, platform.RegisterRequest{
		Name:         spec.Name,
		Description:  spec.Description,
		CreatorEmail: spec.Email,
		IsTest:       true,
	})
	if err != nil {
		return nil, err
	}
	if err := r.platform.ClaimBot(ctx, resp.BotID); err != nil {
		return nil, err
	}

	bot := models.Bot{
		Name:         spec.Name,
		Description:  spec.Description,
		CreatorEmail: spec.Email,
		APIKey:       resp.APIKey,
		CashBalance:  models.StartingCash,
		IsTest:       true,
		IsActive:     true,
	}
	bot.ID = resp.BotID
	if err := r.db.Where("id = ?", resp.BotID).FirstOrCreate(&bot).Error; err != nil {
		return nil, fmt.Errorf("could not ensure bot row for %s: %w", spec.Name, err)
	}
	return &bot, nil
}

// insertSchedule records the scheduled trades through the persisted
// accountant at 16:00 of each trade's date. Trades whose price is missing or
// that the accountant rejects are skipped and counted.
func (r *Runner) insertSchedule(bot *models.Bot, trades []schedule.Trade) (inserted, skipped int) {
	accountant := ledger.NewAccountant(r.db, r.logger)

	for _, t := range trades {
		day, err := time.Parse(pricing.DayFormat, t.Date)
		if err != nil {
			skipped++
			continue
		}
		price, err := r.cache.CloseOn(t.Symbol, day)
		if err != nil {
			skipped++
			continue
		}

		executedAt := time.Date(day.Year(), day.Month(), day.Day(), tradeHour, 0, 0, 0, time.Local)
		_, err = accountant.Execute(bot.ID, t.Symbol, t.Side, t.Quantity, price, t.Reason, executedAt)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrInsufficientShares) {
				r.logger.Debug("Skipping trade",
					zap.String("bot", bot.Name),
					zap.String("symbol", t.Symbol),
					zap.String("side", t.Side),
					zap.Error(err))
				skipped++
				continue
			}
			r.logger.Error("Failed to insert trade",
				zap.String("bot", bot.Name),
				zap.String("symbol", t.Symbol),
				zap.Error(err))
			skipped++
			continue
		}
		inserted++
	}
	return inserted, skipped
}

// cleanupTestBots deletes all test bots together with their trades,
// positions, and snapshots.
func (r *Runner) cleanupTestBots() (int64, error) {
	var ids []uint
	if err := r.db.Model(&models.Bot{}).Where("is_test = ?", true).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("could not list test bots: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("bot_id IN ?", ids).Delete(&models.Trade{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("bot_id IN ?", ids).Delete(&models.Position{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("bot_id IN ?", ids).Delete(&models.PortfolioSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id IN ?", ids).Delete(&models.Bot{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("could not clean up test bots: %w", err)
	}
	return int64(len(ids)), nil
}

// pastTradingDays returns up to maxDays weekdays ending today, reaching back
// no further than daysBack calendar days, in chronological order.
func pastTradingDays(now time.Time, daysBack, maxDays int) []time.Time {
	var days []time.Time
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	oldest := d.AddDate(0, 0, -(daysBack + 30))
	for len(days) < maxDays && d.After(oldest) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	// Reverse into ascending order.
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	if len(days) > maxDays {
		days = days[:maxDays]
	}
	return days
}
