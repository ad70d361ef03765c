package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/config"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/fusion"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/metrics"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/state"
)

var Version = "dev"

var configPath string

// #region main
func main() {
	rootCmd := &cobra.Command{
		Use:           "engine",
		Short:         "Multi-strategy risk-consensus decision engine for agent payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (AGENTVAULT_* env vars override)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion main

// #region helpers
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// stdout carries decisions for the decide subcommand
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// openStore opens the SQLite store, or returns nil for in-memory operation.
func openStore(cfg *config.Config) (*state.Store, error) {
	if cfg.Storage.Path == "" {
		return nil, nil
	}
	store, err := state.NewStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Storage.Path, err)
	}
	return store, nil
}

// newEngine builds an engine from cfg with the shared host wiring.
func newEngine(cfg *config.Config, logger *zap.Logger, store *state.Store, m *metrics.Metrics) (*fusion.Engine, error) {
	opts := []fusion.Option{fusion.WithLogger(logger)}
	if m != nil {
		opts = append(opts, fusion.WithMetrics(m))
	}
	if store != nil {
		opts = append(opts, fusion.WithStore(store))
	}
	if cfg.Engine.Seed != 0 {
		opts = append(opts, fusion.WithSeed(cfg.Engine.Seed))
	}
	engine, err := fusion.New(cfg.Fusion(), opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return engine, nil
}

// #endregion helpers
