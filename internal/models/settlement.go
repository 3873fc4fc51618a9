package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settlement is the journal entry written when a position is closed.
type Settlement struct {
	gorm.Model
	SessionID  string          `gorm:"index" json:"session_id"`
	Username   string          `gorm:"index;not null" json:"username"`
	PositionID int64           `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Stake      int64           `json:"stake"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(20,8)" json:"entry_price"`
	ExitPrice  decimal.Decimal `gorm:"type:decimal(20,8)" json:"exit_price"`
	PnL        decimal.Decimal `gorm:"column:pnl;type:decimal(20,8)" json:"pnl"`
	Payout     decimal.Decimal `gorm:"type:decimal(20,8)" json:"payout"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   time.Time       `gorm:"index" json:"closed_at"`
}
