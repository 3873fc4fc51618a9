package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trading-desk-go/internal/balance"
	"trading-desk-go/internal/config"
	"trading-desk-go/internal/desk"
	"trading-desk-go/internal/market"
)

func newSimulateCmd(configDir *string) *cobra.Command {
	var (
		ticks    int
		interval time.Duration
		stake    int64
		symbol   string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Walk the market offline and settle one demo position",
		Long: `Simulate runs the price simulator without the API or database.

It opens one position for a demo user, walks the market for the given number
of ticks, prints every tick and finally closes the position.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configDir)
			if err != nil {
				return fmt.Errorf("could not load config: %w", err)
			}
			return simulate(cmd.Context(), cmd.OutOrStdout(), &cfg, ticks, interval, symbol, stake)
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 20, "number of ticks to simulate")
	cmd.Flags().DurationVar(&interval, "interval", 0, "delay between ticks")
	cmd.Flags().Int64Var(&stake, "stake", 200, "stake of the demo position")
	cmd.Flags().StringVar(&symbol, "symbol", "EUR/USD", "instrument of the demo position")
	return cmd
}

func simulate(ctx context.Context, out io.Writer, cfg *config.Config, ticks int, interval time.Duration, symbol string, stake int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	instruments, err := market.InstrumentsFromConfig(cfg.Market.Instruments)
	if err != nil {
		return fmt.Errorf("invalid market config: %w", err)
	}
	sim := market.NewSimulator(instruments, market.NewSource(cfg.Market.Seed))
	engine := desk.NewEngine(zap.NewNop(), cfg, sim, balance.NewMemoryStore(), nil, nil)

	l, err := engine.Session(ctx, "demo")
	if err != nil {
		return err
	}
	pos, err := l.Open(ctx, symbol, stake)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "opened #%d %s stake %d at %s\n", pos.ID, pos.Symbol, pos.Stake, pos.EntryPrice)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "tick\t%s\tpnl\n", strings.Join(sim.Symbols(), "\t"))
	for i := 0; i < ticks; i++ {
		if interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		snap := engine.Tick(time.Now())
		pnl, err := l.MarkToMarket(pos)
		if err != nil {
			return err
		}
		cols := make([]string, len(snap.Quotes))
		for j, q := range snap.Quotes {
			cols[j] = q.Text
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", snap.Tick, strings.Join(cols, "\t"), pnl.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s, err := l.Close(ctx, pos.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "closed #%d at %s: pnl %s, payout %s, balance %s\n",
		s.Position.ID, s.ExitPrice, s.PnL.StringFixed(2), s.Payout.StringFixed(2), s.Balance.StringFixed(2))
	return nil
}
