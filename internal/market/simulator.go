package market

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Source supplies uniform draws in [0, 1).
type Source interface {
	Float64() float64
}

// NewSource returns a pseudo-random source. A zero seed uses the clock.
func NewSource(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Simulator is a random-walk price feed over a fixed set of instruments.
type Simulator struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	// order holds the instruments sorted by symbol. Draws are taken in this
	// order so a seeded source always yields the same price path.
	order  []*Instrument
	source Source
	ticks  uint64
}

// NewSimulator creates a simulator seeded with the given instruments.
func NewSimulator(instruments []Instrument, source Source) *Simulator {
	m := make(map[string]*Instrument, len(instruments))
	for _, in := range instruments {
		inst := in
		m[inst.Symbol] = &inst
	}
	order := make([]*Instrument, 0, len(m))
	for _, in := range m {
		order = append(order, in)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Symbol < order[j].Symbol })
	return &Simulator{instruments: m, order: order, source: source}
}

// Tick moves every price by an independent draw from [-volatility, +volatility).
// Prices are not bounded.
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range s.order {
		r := decimal.NewFromFloat(s.source.Float64())
		step := r.Mul(two).Sub(decimal.NewFromInt(1)).Mul(in.Volatility)
		in.Price = in.Price.Add(step)
	}
	s.ticks++
}

// Ticks returns the number of ticks applied so far.
func (s *Simulator) Ticks() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

// Price returns the latest price of symbol.
func (s *Simulator) Price(symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.instruments[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return in.Price, nil
}

// Has reports whether symbol is traded.
func (s *Simulator) Has(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.instruments[symbol]
	return ok
}

// Seed replaces the price of symbol, typically with a reference rate at startup.
func (s *Simulator) Seed(symbol string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("seed price for %s must be positive, got %s", symbol, price)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.instruments[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	in.Price = price
	return nil
}

// Symbols returns the traded symbols in sorted order.
func (s *Simulator) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.order))
	for _, in := range s.order {
		out = append(out, in.Symbol)
	}
	return out
}

// Prices returns a snapshot of all quotes sorted by symbol.
func (s *Simulator) Prices() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Quote, 0, len(s.order))
	for _, in := range s.order {
		out = append(out, Quote{
			Symbol: in.Symbol,
			Price:  in.Price,
			Text:   in.Price.StringFixed(in.Precision),
		})
	}
	return out
}
