package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "evaluator",
		Short:        "LP strategy competition evaluator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run rounds for every active job",
		RunE:  runEvaluator,
	}

	runCmd.Flags().String("rpc", "", "EVM RPC URL")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty runs on the in-memory store)")
	runCmd.Flags().String("source", "evm", "swap data source (evm, postgres)")
	runCmd.Flags().String("agents", "", "agent endpoints (comma-separated id=url)")
	runCmd.Flags().String("execute-url", "", "live execution relay base URL (empty disables live rounds)")
	runCmd.Flags().String("execute-api-key", "", "live execution relay API key")
	runCmd.Flags().String("vault", "", "vault address for on-chain inventory")
	runCmd.Flags().String("inventory-amount0", "", "static token0 inventory (raw units)")
	runCmd.Flags().String("inventory-amount1", "", "static token1 inventory (raw units)")
	runCmd.Flags().String("artifact-dir", "./data/artifacts", "winning strategy output dir")
	runCmd.Flags().Uint64("checkpoint-blocks", 100, "blocks between agent queries")
	runCmd.Flags().Duration("query-timeout", 5*time.Second, "per-query agent timeout")
	runCmd.Flags().Duration("poll-interval", time.Second, "chain head poll interval")
	runCmd.Flags().Int("min-tick-width", 60, "minimum position tick width")
	runCmd.Flags().Int("max-rebalances", 4, "maximum rebalances per round")
	runCmd.Flags().Float64("max-impermanent-loss", 0.10, "maximum impermanent loss")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per log query batch")
	runCmd.Flags().Int("retry-attempts", 3, "total attempts per data source call")
	runCmd.Flags().Duration("retry-backoff", time.Second, "initial retry backoff, doubled per attempt")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-simulate a stored round and print scores",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("rpc", "", "EVM RPC URL")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	replayCmd.Flags().String("source", "evm", "swap data source (evm, postgres)")
	replayCmd.Flags().String("round-id", "", "round to replay")
	replayCmd.Flags().Uint64("end-block", 0, "simulation end block, 0 means latest")
	replayCmd.Flags().Uint64("batch-size", 2000, "blocks per log query batch")
	replayCmd.Flags().Int("retry-attempts", 3, "total attempts per data source call")
	replayCmd.Flags().Duration("retry-backoff", time.Second, "initial retry backoff, doubled per attempt")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
