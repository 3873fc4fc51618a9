package desk

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
	"trading-desk-go/internal/feed"
	"trading-desk-go/internal/ledger"
	"trading-desk-go/internal/market"
)

// AccountStore is a balance store that can provision new accounts.
type AccountStore interface {
	balance.Store
	EnsureAccount(ctx context.Context, user string, opening decimal.Decimal) error
}

// ErrNoUser is returned when a session is requested without a username.
var ErrNoUser = errors.New("no user")

// Engine owns the simulated market and the per-user trading sessions.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger   *zap.Logger
	cfg      *config.Config
	sim      *market.Simulator
	accounts AccountStore
	rates    feed.RateSource
	journal  *Journal
	locks    *ledger.UserLocks
	hub      *Broadcaster

	mu       sync.Mutex
	sessions map[string]*ledger.Ledger
}

// NewEngine creates a new desk engine. rates and journal may be nil.
func NewEngine(logger *zap.Logger, cfg *config.Config, sim *market.Simulator, accounts AccountStore, rates feed.RateSource, journal *Journal) *Engine {
	return &Engine{
		UUID:      uuid.New().String(),
		Name:      "trading-desk",
		StartTime: time.Now(),
		logger:    logger.Named("engine"),
		cfg:       cfg,
		sim:       sim,
		accounts:  accounts,
		rates:     rates,
		journal:   journal,
		locks:     ledger.NewUserLocks(),
		hub:       NewBroadcaster(),
		sessions:  make(map[string]*ledger.Ledger),
	}
}

// Market returns the simulated market.
func (e *Engine) Market() *market.Simulator { return e.sim }

// Broadcaster returns the hub that receives a snapshot after every tick.
func (e *Engine) Broadcaster() *Broadcaster { return e.hub }

// Run seeds the market and advances it every tick interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Initializing trading desk...")
	e.seed(ctx)

	interval := e.cfg.Market.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting price loop", zap.Duration("interval", interval), zap.Strings("instruments", e.sim.Symbols()))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping price loop...")
			return
		case t := <-ticker.C:
			e.Tick(t)
		}
	}
}

// Tick advances the market once and publishes the new prices.
func (e *Engine) Tick(at time.Time) Snapshot {
	e.sim.Tick()
	snap := Snapshot{Tick: e.sim.Ticks(), Time: at, Quotes: e.sim.Prices()}
	e.hub.Publish(snap)
	e.logger.Debug("Market ticked", zap.Uint64("tick", snap.Tick))
	return snap
}

// seed replaces configured seed prices with reference rates when a rate
// source is configured. Failures keep the configured price.
func (e *Engine) seed(ctx context.Context) {
	if e.rates == nil {
		return
	}
	for _, symbol := range e.sim.Symbols() {
		l := e.logger.With(zap.String("symbol", symbol))

		base, quote, err := feed.SplitSymbol(symbol)
		if err != nil {
			l.Warn("Cannot seed symbol from reference rates", zap.Error(err))
			continue
		}
		r, err := e.rates.LatestRate(ctx, base, quote)
		if err != nil {
			l.Warn("Could not fetch reference rate, keeping configured seed", zap.Error(err))
			continue
		}
		if err := e.sim.Seed(symbol, r); err != nil {
			l.Warn("Rejected reference rate", zap.Error(err))
			continue
		}
		l.Info("Seeded price from reference rate", zap.String("price", r.String()))
	}
}

// Session returns the ledger of user, opening a session (and provisioning the
// account with the starting balance) on first use.
func (e *Engine) Session(ctx context.Context, user string) (*ledger.Ledger, error) {
	if user == "" {
		return nil, ErrNoUser
	}
	if l := e.liveSession(user); l != nil {
		return l, nil
	}

	// e.mu is not held while provisioning.
	opening := decimal.NewFromFloat(e.cfg.Ledger.StartingBalance)
	if err := e.accounts.EnsureAccount(ctx, user, opening); err != nil {
		return nil, fmt.Errorf("could not open session for %s: %w", user, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if l, ok := e.sessions[user]; ok && !l.Closed() {
		return l, nil
	}
	l := ledger.New(e.logger, user, ledger.ConfigFrom(e.cfg.Ledger), e.sim, e.accounts, e.locks)
	if e.journal != nil {
		l.SetSettlementListener(e.journal.listener())
	}
	e.sessions[user] = l
	e.logger.Info("Session started", zap.String("user", user), zap.String("session", l.SessionID()))
	return l, nil
}

// liveSession returns the open ledger of user, or nil.
func (e *Engine) liveSession(user string) *ledger.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.sessions[user]; ok && !l.Closed() {
		return l
	}
	return nil
}

// EndSession settles every open position of user and forgets the session.
// A ledger obtained before the call rejects new positions afterwards.
// Ending a session that does not exist is a no-op.
func (e *Engine) EndSession(ctx context.Context, user string) ([]ledger.Settlement, error) {
	e.mu.Lock()
	l, ok := e.sessions[user]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}

	settled, err := l.CloseAll(ctx)
	if err != nil {
		return settled, fmt.Errorf("could not settle session for %s: %w", user, err)
	}

	e.mu.Lock()
	if e.sessions[user] == l {
		delete(e.sessions, user)
	}
	e.mu.Unlock()

	e.logger.Info("Session ended", zap.String("user", user), zap.Int("settled", len(settled)))
	return settled, nil
}

// Shutdown settles all sessions. Positions are never carried across restarts.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	users := make([]string, 0, len(e.sessions))
	for u := range e.sessions {
		users = append(users, u)
	}
	e.mu.Unlock()

	var errs []error
	for _, u := range users {
		if _, err := e.EndSession(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
