package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a position. Only long positions are supported.
type Direction string

const DirectionLong Direction = "long"

// Position is a single open trade.
type Position struct {
	ID         int64           `json:"id"`
	Symbol     string          `json:"symbol"`
	Stake      int64           `json:"stake"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Direction  Direction       `json:"direction"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// PositionView is an open position marked to the current price.
type PositionView struct {
	Position
	CurrentPrice decimal.Decimal `json:"current_price"`
	PnL          decimal.Decimal `json:"pnl"`
}

// Settlement is the outcome of closing a position.
type Settlement struct {
	User      string          `json:"user"`
	Position  Position        `json:"position"`
	ExitPrice decimal.Decimal `json:"exit_price"`
	PnL       decimal.Decimal `json:"pnl"`
	Payout    decimal.Decimal `json:"payout"`
	Balance   decimal.Decimal `json:"balance"`
	ClosedAt  time.Time       `json:"closed_at"`
}

// ProfitLoss is the percentage return from entry to current scaled by stake:
// a 1% favorable move earns 1% of the stake on any instrument.
func ProfitLoss(entry, current decimal.Decimal, stake int64) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return current.Sub(entry).Mul(decimal.NewFromInt(stake)).Div(entry)
}
