package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trading-desk-go/internal/balance"
	"trading-desk-go/internal/config"
	"trading-desk-go/internal/database"
	"trading-desk-go/internal/desk"
	"trading-desk-go/internal/feed"
	"trading-desk-go/internal/logger"
	"trading-desk-go/internal/market"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the market simulator and the desk API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configDir)
		},
	}
}

func serve(configDir string) error {
	// Load application configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("could not initialize logger: %w", err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return err
	}
	if err := database.SeedAccounts(db, cfg.Accounts); err != nil {
		log.Error("Failed to seed accounts", zap.Error(err))
		return err
	}
	log.Info("Database connection successful and schema migrated.")

	instruments, err := market.InstrumentsFromConfig(cfg.Market.Instruments)
	if err != nil {
		return fmt.Errorf("invalid market config: %w", err)
	}
	sim := market.NewSimulator(instruments, market.NewSource(cfg.Market.Seed))

	var rates feed.RateSource
	if cfg.Feed.Enabled {
		rates = feed.NewClient(&cfg.Feed, log)
	}
	var journal *desk.Journal
	if cfg.Ledger.Journal {
		journal = desk.NewJournal(db, log)
	}

	engine := desk.NewEngine(log, &cfg, sim, balance.NewGormStore(db), rates, journal)
	api := desk.NewAPIServer(engine, cfg.Server, log)

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api.Start()
	engine.Run(ctx)
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to settle open sessions", zap.Error(err))
	}

	log.Info("Desk has been shut down.")
	return nil
}
