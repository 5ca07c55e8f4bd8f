// Command perimeter-seed loads a running Perimeter service with forecasters
// of known accuracy and checks the resulting leaderboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/perimeter/internal/seed"
	"github.com/okian/perimeter/pkg/logger"
)

var (
	cfg     = seed.DefaultConfig()
	jsonLog bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "perimeter-seed",
	Short: "Seed a Perimeter service and verify its leaderboard",
	Long: `perimeter-seed creates forecasters whose accuracy is planted in advance,
submits and resolves their claims over the HTTP API, and checks that the
leaderboard ranks them in the planted order.

It exits non-zero when any step fails, so it doubles as a smoke test.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runSeed,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Forecasters, "forecasters", cfg.Forecasters, "number of forecasters to generate")
	f.IntVar(&cfg.ClaimsPerForecaster, "claims", cfg.ClaimsPerForecaster, "claims per forecaster")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent requests")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.WaitTimeout, "wait", cfg.WaitTimeout, "how long to wait for queued resolutions")
	f.BoolVar(&cfg.Async, "async", cfg.Async, "resolve through /v1/resolutions")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed for generated values")
	f.StringVar(&cfg.RunID, "run-id", "", "tag for generated forecasters (random when empty)")
	f.BoolVar(&jsonLog, "json", false, "log in JSON")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(logger.WithJSON(jsonLog)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return err
		}
	}
	log := logger.Named("seed")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := seed.Run(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "seed run failed", logger.Error(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created=%d resolved=%d duplicates=%d ranked=%d duration=%s\n",
		stats.ClaimsCreated, stats.ClaimsResolved, stats.Duplicates, stats.Ranked, stats.Duration)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
