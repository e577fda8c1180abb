package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jyron/tradershub/internal/backfill"
	"github.com/jyron/tradershub/internal/config"
	"github.com/jyron/tradershub/internal/database"
	"github.com/jyron/tradershub/internal/logger"
	"github.com/jyron/tradershub/internal/marketdata"
	"github.com/jyron/tradershub/internal/platform"
	"github.com/jyron/tradershub/internal/pricing"
	"github.com/jyron/tradershub/internal/snapshot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tradershub",
		Short:         "Backfill tooling for the paper-trading platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "./configs", "Directory containing config.yml")

	cmd.AddCommand(
		newSeedCmd(&configPath),
		newSnapshotsCmd(&configPath),
		newBackdateCmd(&configPath),
	)
	return cmd
}

// setup loads config, builds the logger, and opens the ledger store.
func setup(configPath string) (config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("could not initialize logger: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("could not open database: %w", err)
	}
	return cfg, log, db, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed synthetic bots with persona-shaped historical trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			cache := pricing.NewCache(marketdata.NewClient(cfg.MarketData, log), cfg.MarketData.LookbackDays, log)
			runner := backfill.NewRunner(db, cache, platform.NewClient(cfg.Platform, log), cfg.Backfill, log)

			summary, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d bots: %d trades inserted, %d skipped, %d prices cached\n",
				summary.BotsSeeded, summary.TradesInserted, summary.TradesSkipped, summary.PricesCached)
			return nil
		},
	}
}

func newSnapshotsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "Rebuild daily portfolio snapshots by replaying the trade ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			cache := pricing.NewCache(marketdata.NewClient(cfg.MarketData, log), cfg.MarketData.LookbackDays, log)
			generator := snapshot.NewGenerator(db, cache, log)

			summary, err := generator.Generate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d snapshots for %d bots over %d trading days (%d days skipped, %d bot-days skipped)\n",
				summary.Written, summary.Bots, summary.TradingDays, summary.SkippedDays, summary.SkippedBotDays)
			return nil
		},
	}
}

func newBackdateCmd(configPath *string) *cobra.Command {
	var botID uint
	var startStr, endStr string

	cmd := &cobra.Command{
		Use:   "backdate",
		Short: "Spread a bot's trades evenly over a date range, preserving order",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			start, err := time.Parse(pricing.DayFormat, startStr)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := time.Parse(pricing.DayFormat, endStr)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			count, err := backfill.BackdateTrades(db, botID, start, end, rng)
			if err != nil {
				return err
			}
			fmt.Printf("Backdated %d trades for bot %d\n", count, botID)
			return nil
		},
	}
	cmd.Flags().UintVar(&botID, "bot", 0, "Bot id whose trades to backdate")
	cmd.Flags().StringVar(&startStr, "start", "", "Range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "Range end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("bot")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
