package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-desk-go/internal/balance"
	"trading-desk-go/internal/config"
	"trading-desk-go/internal/market"
)

// payoutScale is the number of decimal places a payout is rounded to.
const payoutScale = 2

// PriceSource supplies the latest price for a symbol.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, error)
}

// SettlementListener is notified after a position has been closed.
type SettlementListener func(sessionID string, s Settlement)

// Config holds the trading rules of a ledger.
type Config struct {
	MinStake  int64
	StakeStep int64
	// FloorPayout stops an adverse move from taking more than the stake back.
	FloorPayout bool
}

// ConfigFrom builds ledger rules from the application config.
func ConfigFrom(c config.Ledger) Config {
	return Config{MinStake: c.MinStake, StakeStep: c.StakeStep, FloorPayout: c.FloorPayout}
}

func (c Config) validateStake(stake int64) error {
	if stake <= 0 || stake < c.MinStake {
		return fmt.Errorf("%w: %d is below the minimum of %d", ErrInvalidStake, stake, c.MinStake)
	}
	if c.StakeStep > 0 && (stake-c.MinStake)%c.StakeStep != 0 {
		return fmt.Errorf("%w: %d is not a multiple of %d above %d", ErrInvalidStake, stake, c.StakeStep, c.MinStake)
	}
	return nil
}

// Ledger holds the open positions of one user session and settles them
// against the user's balance.
type Ledger struct {
	id       string
	user     string
	cfg      Config
	prices   PriceSource
	balances balance.Store
	locks    *UserLocks
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	positions []Position
	created   int64
	closed    bool
	listener  SettlementListener
}

// New creates an empty ledger for user. Ledgers of the same user must share locks.
func New(logger *zap.Logger, user string, cfg Config, prices PriceSource, balances balance.Store, locks *UserLocks) *Ledger {
	id := uuid.New().String()
	return &Ledger{
		id:       id,
		user:     user,
		cfg:      cfg,
		prices:   prices,
		balances: balances,
		locks:    locks,
		logger:   logger.Named("ledger").With(zap.String("user", user), zap.String("session", id)),
		now:      time.Now,
	}
}

// SessionID identifies this ledger.
func (l *Ledger) SessionID() string { return l.id }

// User returns the owner of the ledger.
func (l *Ledger) User() string { return l.user }

// SetSettlementListener registers fn to be called after every close.
// The listener runs outside the ledger lock.
func (l *Ledger) SetSettlementListener(fn SettlementListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = fn
}

// Balance reads the user's current balance from the store.
func (l *Ledger) Balance(ctx context.Context) (decimal.Decimal, error) {
	return l.balances.Balance(ctx, l.user)
}

// Open debits stake from the balance and opens a long position at the
// current price of symbol.
func (l *Ledger) Open(ctx context.Context, symbol string, stake int64) (Position, error) {
	if err := l.cfg.validateStake(stake); err != nil {
		return Position{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Position{}, fmt.Errorf("%w: %s", ErrSessionEnded, l.id)
	}

	entry, err := l.prices.Price(symbol)
	if err != nil {
		if errors.Is(err, market.ErrUnknownInstrument) {
			return Position{}, fmt.Errorf("%w: %s", ErrInvalidInstrument, symbol)
		}
		return Position{}, fmt.Errorf("could not price %s: %w", symbol, err)
	}

	amount := decimal.NewFromInt(stake)
	unlock := l.locks.Lock(l.user)
	current, err := l.balances.Balance(ctx, l.user)
	if err != nil {
		unlock()
		return Position{}, fmt.Errorf("could not read balance: %w", err)
	}
	if current.LessThan(amount) {
		unlock()
		return Position{}, fmt.Errorf("%w: stake %d exceeds balance %s", ErrInsufficientFunds, stake, current)
	}
	if err := l.balances.SetBalance(ctx, l.user, current.Sub(amount)); err != nil {
		unlock()
		return Position{}, fmt.Errorf("could not debit stake: %w", err)
	}
	unlock()

	l.created++
	pos := Position{
		ID:         l.created,
		Symbol:     symbol,
		Stake:      stake,
		EntryPrice: entry,
		Direction:  DirectionLong,
		OpenedAt:   l.now(),
	}
	l.positions = append(l.positions, pos)

	l.logger.Info("Opened position",
		zap.Int64("position_id", pos.ID),
		zap.String("symbol", symbol),
		zap.Int64("stake", stake),
		zap.String("entry_price", entry.String()),
	)
	return pos, nil
}

// MarkToMarket returns the floating profit or loss of p at the latest price.
// It has no side effects.
func (l *Ledger) MarkToMarket(p Position) (decimal.Decimal, error) {
	_, pnl, err := l.mark(p)
	return pnl, err
}

func (l *Ledger) mark(p Position) (price, pnl decimal.Decimal, err error) {
	price, err = l.prices.Price(p.Symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("could not price %s: %w", p.Symbol, err)
	}
	return price, ProfitLoss(p.EntryPrice, price, p.Stake), nil
}

// Close settles the position with the given id at the latest price, credits
// stake plus profit or loss to the balance and removes the position.
func (l *Ledger) Close(ctx context.Context, id int64) (Settlement, error) {
	l.mu.Lock()
	s, err := l.closeLocked(ctx, id)
	listener := l.listener
	l.mu.Unlock()

	if err != nil {
		return Settlement{}, err
	}
	if listener != nil {
		listener(l.id, s)
	}
	return s, nil
}

// CloseAll settles every open position in creation order and closes the
// ledger, after which Open fails with ErrSessionEnded. It stops at the first
// failure, leaving the ledger open, and returns the settlements made so far.
func (l *Ledger) CloseAll(ctx context.Context) ([]Settlement, error) {
	l.mu.Lock()
	ids := make([]int64, len(l.positions))
	for i, p := range l.positions {
		ids[i] = p.ID
	}

	var (
		done []Settlement
		err  error
	)
	for _, id := range ids {
		var s Settlement
		if s, err = l.closeLocked(ctx, id); err != nil {
			break
		}
		done = append(done, s)
	}
	if err == nil {
		l.closed = true
	}
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		for _, s := range done {
			listener(l.id, s)
		}
	}
	return done, err
}

func (l *Ledger) closeLocked(ctx context.Context, id int64) (Settlement, error) {
	idx := -1
	for i, p := range l.positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Settlement{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	pos := l.positions[idx]

	exit, pnl, err := l.mark(pos)
	if err != nil {
		return Settlement{}, err
	}

	payout := decimal.NewFromInt(pos.Stake).Add(pnl).Round(payoutScale)
	if l.cfg.FloorPayout && payout.IsNegative() {
		payout = decimal.Zero
	}

	unlock := l.locks.Lock(l.user)
	current, err := l.balances.Balance(ctx, l.user)
	if err != nil {
		unlock()
		return Settlement{}, fmt.Errorf("could not read balance: %w", err)
	}
	updated := current.Add(payout)
	if err := l.balances.SetBalance(ctx, l.user, updated); err != nil {
		unlock()
		return Settlement{}, fmt.Errorf("could not credit payout: %w", err)
	}
	unlock()

	l.positions = append(l.positions[:idx], l.positions[idx+1:]...)

	s := Settlement{
		User:      l.user,
		Position:  pos,
		ExitPrice: exit,
		PnL:       pnl,
		Payout:    payout,
		Balance:   updated,
		ClosedAt:  l.now(),
	}
	l.logger.Info("Closed position",
		zap.Int64("position_id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("exit_price", exit.String()),
		zap.String("pnl", pnl.StringFixed(payoutScale)),
		zap.String("payout", payout.String()),
	)
	return s, nil
}

// Snapshot returns the open positions in creation order with live profit or loss.
func (l *Ledger) Snapshot() ([]PositionView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	views := make([]PositionView, 0, len(l.positions))
	for _, p := range l.positions {
		price, pnl, err := l.mark(p)
		if err != nil {
			return nil, err
		}
		views = append(views, PositionView{Position: p, CurrentPrice: price, PnL: pnl})
	}
	return views, nil
}

// Closed reports whether CloseAll has settled the ledger.
func (l *Ledger) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}
