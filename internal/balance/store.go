package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"trading-desk-go/internal/models"
)

// ErrAccountNotFound is returned for a username with no account.
var ErrAccountNotFound = errors.New("account not found")

// Store reads and writes user balances.
type Store interface {
	Balance(ctx context.Context, user string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, user string, amount decimal.Decimal) error
}

// GormStore keeps balances in the accounts table.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a balance store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Balance returns the stored balance for user.
func (s *GormStore) Balance(ctx context.Context, user string) (decimal.Decimal, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("username = ?", user).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrAccountNotFound, user, err)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not read balance for %s: %w", user, err)
	}
	return account.Balance, nil
}

// SetBalance overwrites the balance for user.
func (s *GormStore) SetBalance(ctx context.Context, user string, amount decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("username = ?", user).
		Update("balance", amount)
	if res.Error != nil {
		return fmt.Errorf("could not write balance for %s: %w", user, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, user)
	}
	return nil
}

// EnsureAccount creates an account for user with the opening balance
// unless one already exists.
func (s *GormStore) EnsureAccount(ctx context.Context, user string, opening decimal.Decimal) error {
	account := models.Account{Username: user, Balance: opening}
	err := s.db.WithContext(ctx).
		Where(models.Account{Username: user}).
		FirstOrCreate(&account).Error
	if err != nil {
		return fmt.Errorf("could not provision account %s: %w", user, err)
	}
	return nil
}

// MemoryStore is an in-process Store used by the offline simulation and tests.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]decimal.Decimal)}
}

func (s *MemoryStore) Balance(_ context.Context, user string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[user]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAccountNotFound, user)
	}
	return b, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, user string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[user]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, user)
	}
	s.balances[user] = amount
	return nil
}

func (s *MemoryStore) EnsureAccount(_ context.Context, user string, opening decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[user]; !ok {
		s.balances[user] = opening
	}
	return nil
}
