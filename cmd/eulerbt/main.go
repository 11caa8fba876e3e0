package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eulerbt/internal/config"
	"eulerbt/internal/util"
)

const version = "0.1.0"

// app carries state shared by subcommands once the root pre-run has loaded
// configuration.
type app struct {
	cfgPath string
	envFile string
	cfg     *config.Config
	log     *slog.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	defaultCfg := "config/eulerbt.yaml"
	if p := os.Getenv("EULERBT_CONFIG"); p != "" {
		defaultCfg = p
	}

	root := &cobra.Command{
		Use:          "eulerbt",
		Short:        "Backtest MA-crossover and Euler-extrapolation strategies on OHLCV bars",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultCfg, "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional .env file loaded before env overrides")

	root.AddCommand(
		newRunCmd(a),
		newImportCmd(a),
		newSymbolsCmd(a),
		newResampleCmd(a),
		newFetchCmd(a),
		newRunsCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the eulerbt version",
			PersistentPreRunE: func(*cobra.Command, []string) error {
				return nil
			},
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "eulerbt %s\n", version)
			},
		},
	)
	return root
}

func (a *app) load() error {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	a.log = util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(a.log)
	return nil
}
