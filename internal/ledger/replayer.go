package ledger

import (
	"sort"
	"time"

	"github.com/jyron/tradershub/internal/models"
)

// Replay reconstructs a bot's holdings and cash as of the cutoff by replaying
// its trade ledger from the starting balance. It is a pure projection:
// historical trades are assumed valid, so no funds or shares checks apply,
// and replaying the same ledger prefix twice yields identical results.
// Ties at equal executed_at are broken by row id to keep replay
// deterministic. Only strictly positive holdings are returned.
func Replay(trades []models.Trade, cutoff time.Time) (map[string]int, float64) {
	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ExecutedAt.Equal(ordered[j].ExecutedAt) {
			return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	cash := models.StartingCash
	holdings := make(map[string]int)

	for _, t := range ordered {
		if t.ExecutedAt.After(cutoff) {
			break
		}
		if t.Side == models.SideBuy {
			cash -= t.TotalValue
			holdings[t.Symbol] += t.Quantity
		} else {
			cash += t.TotalValue
			holdings[t.Symbol] -= t.Quantity
			if holdings[t.Symbol] <= 0 {
				delete(holdings, t.Symbol)
			}
		}
	}

	for symbol, qty := range holdings {
		if qty <= 0 {
			delete(holdings, symbol)
		}
	}
	return holdings, cash
}
