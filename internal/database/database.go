package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trading-desk-go/internal/config"
	"trading-desk-go/internal/models"
)

// NewDatabase opens the sqlite database and migrates the schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the tables for all models.
// Existing balances and settlements are kept.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Account{}, &models.Settlement{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedAccounts creates the configured demo accounts that do not exist yet.
// Balances of existing accounts are never overwritten.
func SeedAccounts(db *gorm.DB, accounts []config.Account) error {
	for _, a := range accounts {
		if a.Username == "" {
			return errors.New("seed account has an empty username")
		}
		account := models.Account{Username: a.Username, Balance: decimal.NewFromFloat(a.Balance)}
		if err := db.Where(models.Account{Username: a.Username}).FirstOrCreate(&account).Error; err != nil {
			return fmt.Errorf("failed to seed account '%s': %w", a.Username, err)
		}
	}
	return nil
}
