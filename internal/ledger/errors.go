package ledger

import "errors"

var (
	// ErrInsufficientFunds means a buy's total value exceeds the bot's cash.
	// Fatal to that single trade only; callers skip and log, not abort.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares means a sell exceeds the held quantity.
	ErrInsufficientShares = errors.New("insufficient shares")
)
