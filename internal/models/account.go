package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account holds the spendable balance of a single user.
type Account struct {
	gorm.Model
	Username string          `gorm:"uniqueIndex;not null" json:"username"`
	Balance  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance"`
}
