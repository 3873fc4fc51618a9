package desk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"trading-desk-go/internal/ledger"
	"trading-desk-go/internal/models"
)

const journalTimeout = 5 * time.Second

// Journal records settled positions in the settlements table.
type Journal struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewJournal creates a settlement journal backed by db.
func NewJournal(db *gorm.DB, logger *zap.Logger) *Journal {
	return &Journal{db: db, logger: logger.Named("journal")}
}

// Record writes one settlement.
func (j *Journal) Record(ctx context.Context, sessionID string, s ledger.Settlement) error {
	row := models.Settlement{
		SessionID:  sessionID,
		Username:   s.User,
		PositionID: s.Position.ID,
		Symbol:     s.Position.Symbol,
		Stake:      s.Position.Stake,
		EntryPrice: s.Position.EntryPrice,
		ExitPrice:  s.ExitPrice,
		PnL:        s.PnL,
		Payout:     s.Payout,
		OpenedAt:   s.Position.OpenedAt,
		ClosedAt:   s.ClosedAt,
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save settlement for position %d: %w", s.Position.ID, err)
	}
	return nil
}

// listener adapts the journal to a ledger settlement listener.
// The balance is already settled, so a failed write is only logged.
func (j *Journal) listener() ledger.SettlementListener {
	return func(sessionID string, s ledger.Settlement) {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := j.Record(ctx, sessionID, s); err != nil {
			j.logger.Error("Failed to journal settlement", zap.String("user", s.User), zap.Error(err))
		}
	}
}
