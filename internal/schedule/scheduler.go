package schedule

import (
	"math/rand"
	"sort"
	"time"

	"github.com/jyron/tradershub/internal/config"
	"github.com/jyron/tradershub/internal/models"
	"github.com/jyron/tradershub/internal/pricing"
	"go.uber.org/zap"
)

// Trade is one scheduled ledger entry: what to trade, which day, and why.
type Trade struct {
	Date     string // pricing.DayFormat
	Symbol   string
	Side     string
	Quantity int
	Reason   string
}

// extremumKind selects which extrema a pairing rule buys at; it always sells
// at the opposite kind.
type extremumKind int

const (
	atMinimum extremumKind = iota
	atMaximum
)

// pairingRule emits (buy, sell) pairs for one persona style: buy at one
// extremum kind, sell at a later extremum of the opposite kind.
type pairingRule struct {
	buyAt      extremumKind
	qtyLo      int
	qtyHi      int
	buyReason  string
	sellReason string
}

// pairingPolicies is the closed persona -> rules table. Mixed carries both
// styles so its pairs interleave across the date range.
var pairingPolicies = map[Persona][]pairingRule{
	Winner: {{buyAt: atMinimum, qtyLo: 10, qtyHi: 40, buyReason: "Momentum entry", sellReason: "Take profit"}},
	Loser:  {{buyAt: atMaximum, qtyLo: 10, qtyHi: 35, buyReason: "Entry", sellReason: "Exit"}},
	Mixed: {
		{buyAt: atMinimum, qtyLo: 8, qtyHi: 30, buyReason: "Entry", sellReason: "Exit"},
		{buyAt: atMaximum, qtyLo: 8, qtyHi: 25, buyReason: "Entry", sellReason: "Exit"},
	},
}

// Scheduler synthesizes buy/sell trade schedules from local price extrema.
type Scheduler struct {
	rng        *rand.Rand
	logger     *zap.Logger
	window     int
	maxExtrema int
	maxSymbols int
	minHistory int
	minGapDays int
}

// NewScheduler creates a scheduler with the configured tuning knobs. The rng
// is injected so seeded runs are reproducible.
func NewScheduler(cfg config.Backfill, rng *rand.Rand, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		rng:        rng,
		logger:     logger,
		window:     cfg.ExtremaWindow,
		maxExtrema: cfg.MaxExtrema,
		maxSymbols: cfg.MaxSymbols,
		minHistory: cfg.MinHistory,
		minGapDays: cfg.MinGapDays,
	}
}

// Build generates a chronological trade schedule matching the persona from
// each symbol's daily close history. Symbols with insufficient history or no
// qualifying extrema pair contribute zero trades; that is a coverage gap,
// not an error. The result is sorted by (date, symbol, side) and reduced
// toward target while keeping every emitted sell matched to its buy.
func (s *Scheduler) Build(history map[string][]pricing.Bar, persona Persona, target int) []Trade {
	symbols := make([]string, 0, len(history))
	for symbol, bars := range history {
		if len(bars) >= s.minHistory {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		return nil
	}

	// Sample without replacement so one name cannot dominate the schedule.
	s.rng.Shuffle(len(symbols), func(i, j int) {
		symbols[i], symbols[j] = symbols[j], symbols[i]
	})
	if len(symbols) > s.maxSymbols {
		symbols = symbols[:s.maxSymbols]
	}

	var schedule []Trade
	for _, symbol := range symbols {
		bars := history[symbol]
		mins, maxs := localExtrema(bars, s.window)
		if len(mins) == 0 || len(maxs) == 0 {
			continue
		}

		minDates := pickDates(bars, mins, s.maxExtrema)
		maxDates := pickDates(bars, maxs, s.maxExtrema)

		for _, rule := range pairingPolicies[persona] {
			buyDates, sellDates := minDates, maxDates
			if rule.buyAt == atMaximum {
				buyDates, sellDates = maxDates, minDates
			}
			schedule = append(schedule, s.pairTrades(symbol, buyDates, sellDates, rule)...)
		}
	}

	sortSchedule(schedule)
	if len(schedule) <= target {
		return schedule
	}
	return s.reduceToTarget(schedule, target)
}

// pickDates subsamples the ordered extrema indices evenly and returns their
// dates, guaranteeing coverage across the whole range.
func pickDates(bars []pricing.Bar, idx []int, want int) []string {
	if want > len(idx) {
		want = len(idx)
	}
	dates := make([]string, 0, want)
	for _, i := range spreadIndices(len(idx), want) {
		dates = append(dates, bars[idx[i]].Date)
	}
	return dates
}

// pairTrades pairs each buy-side extremum with the first later opposite
// extremum at least minGapDays away, emitting a matched (buy, sell) with one
// shared quantity.
func (s *Scheduler) pairTrades(symbol string, buyDates, sellDates []string, rule pairingRule) []Trade {
	var out []Trade
	for _, buyDate := range buyDates {
		for _, sellDate := range sellDates {
			if sellDate <= buyDate || dayGap(buyDate, sellDate) < s.minGapDays {
				continue
			}
			qty := rule.qtyLo + s.rng.Intn(rule.qtyHi-rule.qtyLo+1)
			out = append(out,
				Trade{Date: buyDate, Symbol: symbol, Side: models.SideBuy, Quantity: qty, Reason: rule.buyReason},
				Trade{Date: sellDate, Symbol: symbol, Side: models.SideSell, Quantity: qty, Reason: rule.sellReason},
			)
			break
		}
	}
	return out
}

// reduceToTarget trims the date-sorted schedule toward the target count.
// It reconstructs buy->sell pairs (same symbol and quantity, sell after buy)
// and keeps an evenly spaced subset of pairs ordered by buy date, preserving
// temporal spread and the buy/sell matching. When no pairs can be rebuilt it
// falls back to evenly spaced sampling over the flat schedule.
func (s *Scheduler) reduceToTarget(schedule []Trade, target int) []Trade {
	type pair struct{ buy, sell Trade }

	var sells []Trade
	usedSell := make([]bool, 0)
	for _, t := range schedule {
		if t.Side == models.SideSell {
			sells = append(sells, t)
			usedSell = append(usedSell, false)
		}
	}

	var pairs []pair
	for _, t := range schedule {
		if t.Side != models.SideBuy {
			continue
		}
		for i, sell := range sells {
			if usedSell[i] || sell.Symbol != t.Symbol || sell.Quantity != t.Quantity || sell.Date <= t.Date {
				continue
			}
			pairs = append(pairs, pair{buy: t, sell: sell})
			usedSell[i] = true
			break
		}
	}

	if len(pairs) == 0 {
		var out []Trade
		for _, i := range spreadIndices(len(schedule), target) {
			out = append(out, schedule[i])
		}
		return out
	}

	want := target / 2
	if want > len(pairs) {
		want = len(pairs)
	}
	if want <= 0 {
		return schedule[:target]
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].buy.Date < pairs[j].buy.Date })

	out := make([]Trade, 0, want*2)
	for _, i := range spreadIndices(len(pairs), want) {
		out = append(out, pairs[i].buy, pairs[i].sell)
	}
	sortSchedule(out)
	return out
}

func sortSchedule(schedule []Trade) {
	sort.Slice(schedule, func(i, j int) bool {
		a, b := schedule[i], schedule[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Side < b.Side
	})
}

// dayGap returns the calendar days between two DayFormat dates.
func dayGap(from, to string) int {
	a, err1 := time.Parse(pricing.DayFormat, from)
	b, err2 := time.Parse(pricing.DayFormat, to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
