package backfill

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jyron/tradershub/internal/models"
	"gorm.io/gorm"
)

const maxBackdateJitter = 30 * time.Minute

// BackdateTrades rewrites executed_at for one bot's trades so they spread
// evenly across [start, end]. This is the only sanctioned mutation of the
// trade ledger, and it preserves relative order: jitter is capped below half
// the spacing between consecutive trades so no two trades can swap places.
// Returns the number of trades rewritten.
func BackdateTrades(db *gorm.DB, botID uint, start, end time.Time, rng *rand.Rand) (int, error) {
	if !end.After(start) {
		return 0, fmt.Errorf("backdate range end %s is not after start %s", end, start)
	}

	var trades []models.Trade
	if err := db.Where("bot_id = ?", botID).Order("executed_at ASC, id ASC").Find(&trades).Error; err != nil {
		return 0, fmt.Errorf("could not load trades for bot %d: %w", botID, err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	span := end.Sub(start)
	spacing := span / time.Duration(len(trades))

	jitterBound := maxBackdateJitter
	if half := spacing / 2; half < jitterBound {
		jitterBound = half
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for i, trade := range trades {
			ts := start.Add(span * time.Duration(i) / time.Duration(len(trades)))
			if jitterBound > 0 {
				jitter := time.Duration(rng.Int63n(int64(jitterBound)))
				ts = ts.Add(jitter)
			}
			if err := tx.Model(&models.Trade{}).Where("id = ?", trade.ID).
				Update("executed_at", ts).Error; err != nil {
				return fmt.Errorf("could not backdate trade %d: %w", trade.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(trades), nil
}
