package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-desk-go/internal/config"
)

// ErrUnknownInstrument is returned for a symbol that is not in the simulated market.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Instrument is a tradable pair and its current simulated price.
type Instrument struct {
	Symbol string
	Price  decimal.Decimal
	// Volatility is the half-width of the uniform perturbation applied per tick.
	Volatility decimal.Decimal
	// Precision is the number of decimal places used for display.
	Precision int32
}

// Quote is a point-in-time price for display.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Text   string          `json:"text"`
}

// InstrumentsFromConfig converts configured pairs into instruments.
func InstrumentsFromConfig(cfgs []config.Instrument) ([]Instrument, error) {
	seen := make(map[string]struct{}, len(cfgs))
	out := make([]Instrument, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Symbol == "" {
			return nil, errors.New("instrument with empty symbol")
		}
		if _, dup := seen[c.Symbol]; dup {
			return nil, fmt.Errorf("duplicate instrument %s", c.Symbol)
		}
		if c.Price <= 0 {
			return nil, fmt.Errorf("instrument %s: seed price must be positive, got %v", c.Symbol, c.Price)
		}
		if c.Volatility < 0 {
			return nil, fmt.Errorf("instrument %s: volatility must not be negative", c.Symbol)
		}
		seen[c.Symbol] = struct{}{}
		out = append(out, Instrument{
			Symbol:     c.Symbol,
			Price:      decimal.NewFromFloat(c.Price),
			Volatility: decimal.NewFromFloat(c.Volatility),
			Precision:  c.Precision,
		})
	}
	return out, nil
}
