package market

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-desk-go/internal/config"
)

// fixedSource returns its draws in order, repeating the last one.
type fixedSource struct {
	draws []float64
	i     int
}

func (f *fixedSource) Float64() float64 {
	d := f.draws[f.i]
	if f.i < len(f.draws)-1 {
		f.i++
	}
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestSimulator(t *testing.T, draws ...float64) *Simulator {
	t.Helper()
	instruments, err := InstrumentsFromConfig(config.DefaultInstruments())
	require.NoError(t, err)
	return NewSimulator(instruments, &fixedSource{draws: draws})
}

func TestInstrumentsFromConfig(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		instruments, err := InstrumentsFromConfig(config.DefaultInstruments())
		require.NoError(t, err)
		require.Len(t, instruments, 4)
		assert.Equal(t, "EUR/USD", instruments[0].Symbol)
		assert.True(t, instruments[0].Price.Equal(dec("1.075")))
		assert.True(t, instruments[3].Volatility.Equal(dec("0.05")))
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := InstrumentsFromConfig([]config.Instrument{
			{Symbol: "EUR/USD", Price: 1},
			{Symbol: "EUR/USD", Price: 1},
		})
		assert.Error(t, err)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		_, err := InstrumentsFromConfig([]config.Instrument{{Symbol: "EUR/USD", Price: 0}})
		assert.Error(t, err)
	})

	t.Run("EmptySymbol", func(t *testing.T) {
		_, err := InstrumentsFromConfig([]config.Instrument{{Price: 1}})
		assert.Error(t, err)
	})
}

func TestSimulator_TickBounds(t *testing.T) {
	// A draw of 0 moves every price down by its full volatility.
	sim := newTestSimulator(t, 0)
	sim.Tick()

	eur, err := sim.Price("EUR/USD")
	require.NoError(t, err)
	assert.True(t, eur.Equal(dec("1.0745")), "got %s", eur)

	jpy, err := sim.Price("USD/JPY")
	require.NoError(t, err)
	assert.True(t, jpy.Equal(dec("157.45")), "got %s", jpy)
	assert.Equal(t, uint64(1), sim.Ticks())
}

func TestSimulator_TickMidpointLeavesPrice(t *testing.T) {
	sim := newTestSimulator(t, 0.5)
	for i := 0; i < 10; i++ {
		sim.Tick()
	}

	eur, err := sim.Price("EUR/USD")
	require.NoError(t, err)
	assert.True(t, eur.Equal(dec("1.075")))
	assert.Equal(t, uint64(10), sim.Ticks())
}

func TestSimulator_TickUpward(t *testing.T) {
	sim := newTestSimulator(t, 0.75)
	sim.Tick()

	eur, err := sim.Price("EUR/USD")
	require.NoError(t, err)
	assert.True(t, eur.Equal(dec("1.07525")), "got %s", eur)

	jpy, err := sim.Price("USD/JPY")
	require.NoError(t, err)
	assert.True(t, jpy.Equal(dec("157.525")), "got %s", jpy)
}

func TestSimulator_RandomWalkStaysWithinVolatility(t *testing.T) {
	instruments, err := InstrumentsFromConfig(config.DefaultInstruments())
	require.NoError(t, err)
	sim := NewSimulator(instruments, NewSource(7))

	const ticks = 200
	for i := 0; i < ticks; i++ {
		before, _ := sim.Price("EUR/USD")
		sim.Tick()
		after, _ := sim.Price("EUR/USD")
		move := after.Sub(before).Abs()
		assert.True(t, move.LessThanOrEqual(dec("0.0005")), "tick %d moved %s", i, move)
	}
}

func TestSimulator_SameSeedSamePath(t *testing.T) {
	instruments, err := InstrumentsFromConfig(config.DefaultInstruments())
	require.NoError(t, err)

	first := NewSimulator(instruments, NewSource(42))
	for i := 0; i < 5; i++ {
		first.Tick()
	}
	want := first.Prices()

	for run := 0; run < 20; run++ {
		sim := NewSimulator(instruments, NewSource(42))
		for i := 0; i < 5; i++ {
			sim.Tick()
		}
		got := sim.Prices()
		require.Len(t, got, len(want))
		for i := range want {
			assert.True(t, want[i].Price.Equal(got[i].Price), "run %d %s: %s != %s", run, want[i].Symbol, got[i].Price, want[i].Price)
		}
	}
}

func TestSimulator_DrawsFollowSymbolOrder(t *testing.T) {
	// AUD/USD, EUR/USD, GBP/USD, USD/JPY take the draws in that order.
	sim := newTestSimulator(t, 1, 0, 0.5, 0.75)
	sim.Tick()

	want := map[string]string{
		"AUD/USD": "0.6605",
		"EUR/USD": "1.0745",
		"GBP/USD": "1.265",
		"USD/JPY": "157.525",
	}
	for _, q := range sim.Prices() {
		assert.True(t, q.Price.Equal(dec(want[q.Symbol])), "%s: got %s", q.Symbol, q.Price)
	}
}

func TestSimulator_UnknownInstrument(t *testing.T) {
	sim := newTestSimulator(t, 0.5)

	_, err := sim.Price("BTC/USD")
	assert.True(t, errors.Is(err, ErrUnknownInstrument))
	assert.False(t, sim.Has("BTC/USD"))
	assert.True(t, sim.Has("EUR/USD"))
}

func TestSimulator_Seed(t *testing.T) {
	sim := newTestSimulator(t, 0.5)

	require.NoError(t, sim.Seed("EUR/USD", dec("1.0812")))
	p, _ := sim.Price("EUR/USD")
	assert.True(t, p.Equal(dec("1.0812")))

	assert.ErrorIs(t, sim.Seed("BTC/USD", dec("1")), ErrUnknownInstrument)
	assert.Error(t, sim.Seed("EUR/USD", decimal.Zero))
}

func TestSimulator_PricesSortedAndFormatted(t *testing.T) {
	sim := newTestSimulator(t, 0.5)

	quotes := sim.Prices()
	require.Len(t, quotes, 4)
	assert.Equal(t, []string{"AUD/USD", "EUR/USD", "GBP/USD", "USD/JPY"}, sim.Symbols())
	for i, q := range quotes {
		assert.Equal(t, sim.Symbols()[i], q.Symbol)
	}
	assert.Equal(t, "1.0750", quotes[1].Text)
	assert.Equal(t, "157.50", quotes[3].Text)
}

func TestSimulator_ConcurrentReadsDuringTicks(t *testing.T) {
	instruments, err := InstrumentsFromConfig(config.DefaultInstruments())
	require.NoError(t, err)
	sim := NewSimulator(instruments, NewSource(1))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			sim.Tick()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = sim.Prices()
			_, _ = sim.Price("EUR/USD")
		}
	}()
	wg.Wait()
	assert.Equal(t, uint64(100), sim.Ticks())
}
