package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jyron/tradershub/internal/marketdata"
	"go.uber.org/zap"
)

// DayFormat is the canonical key format for a trading day. Lexicographic
// order on these strings is chronological order.
const DayFormat = "2006-01-02"

// ErrPriceUnavailable is returned when no closing bar exists for a
// symbol/day, even after the bounded look-back fallback.
var ErrPriceUnavailable = errors.New("price unavailable")

// Bar is one cached daily close.
type Bar struct {
	Date  string
	Close float64
}

// Cache memoizes (symbol, trading day) -> closing price for the lifetime of
// one backfill run. Entries are immutable once populated; a symbol/day price
// is never refetched. The cache is an explicit object owned by the run, not
// a process-wide singleton.
type Cache struct {
	source       marketdata.BarSource
	logger       *zap.Logger
	lookbackDays int
	prices       map[string]float64         // "SYMBOL_2006-01-02" -> close
	requested    map[string]map[string]bool // date -> symbol -> already fetched
}

// NewCache creates an empty run-scoped price cache. lookbackDays bounds the
// fallback to earlier cached closes; 0 disables the fallback entirely.
func NewCache(source marketdata.BarSource, lookbackDays int, logger *zap.Logger) *Cache {
	return &Cache{
		source:       source,
		logger:       logger,
		lookbackDays: lookbackDays,
		prices:       make(map[string]float64),
		requested:    make(map[string]map[string]bool),
	}
}

func key(symbol, date string) string {
	return symbol + "_" + date
}

// Populate issues at most one batched fetch for the symbols not yet requested
// on the given day and stores every close returned. Symbols the provider has
// no bar for stay absent; they are still marked requested so they are never
// refetched within the run.
func (c *Cache) Populate(ctx context.Context, symbols []string, day time.Time) error {
	date := day.Format(DayFormat)
	seen := c.requested[date]
	if seen == nil {
		seen = make(map[string]bool)
		c.requested[date] = seen
	}

	var missing []string
	for _, s := range symbols {
		if !seen[s] {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	closes, err := c.source.DailyCloses(ctx, missing, day)
	if err != nil {
		return fmt.Errorf("failed to populate prices for %s: %w", date, err)
	}

	for _, s := range missing {
		seen[s] = true
	}
	for symbol, close := range closes {
		c.prices[key(symbol, date)] = close
	}

	c.logger.Debug("Populated price cache",
		zap.String("date", date),
		zap.Int("requested", len(missing)),
		zap.Int("received", len(closes)))
	return nil
}

// CloseOn returns the closing price for symbol on day. If no bar was cached
// for that exact day it falls back to the most recent earlier cached close
// within the look-back bound, and otherwise fails with ErrPriceUnavailable.
// It never returns zero and never reaches past the documented bound.
func (c *Cache) CloseOn(symbol string, day time.Time) (float64, error) {
	date := day.Format(DayFormat)
	if price, ok := c.prices[key(symbol, date)]; ok {
		return price, nil
	}

	for back := 1; back <= c.lookbackDays; back++ {
		earlier := day.AddDate(0, 0, -back).Format(DayFormat)
		if price, ok := c.prices[key(symbol, earlier)]; ok {
			c.logger.Debug("Using look-back close",
				zap.String("symbol", symbol),
				zap.String("wanted", date),
				zap.String("used", earlier))
			return price, nil
		}
	}

	return 0, fmt.Errorf("%w: %s on %s", ErrPriceUnavailable, symbol, date)
}

// History returns the date-sorted cached series for one symbol.
func (c *Cache) History(symbol string) []Bar {
	prefix := symbol + "_"
	var bars []Bar
	for k, close := range c.prices {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			bars = append(bars, Bar{Date: k[len(prefix):], Close: close})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars
}

// Len reports how many symbol/day closes are cached.
func (c *Cache) Len() int {
	return len(c.prices)
}
