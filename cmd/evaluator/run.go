package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityArena/internal/agent"
	"liquidityArena/internal/artifact"
	"liquidityArena/internal/backtest"
	"liquidityArena/internal/chain"
	"liquidityArena/internal/config"
	"liquidityArena/internal/datasource"
	"liquidityArena/internal/execution"
	"liquidityArena/internal/inventory"
	"liquidityArena/internal/model"
	"liquidityArena/internal/round"
	"liquidityArena/internal/scoring"
	"liquidityArena/internal/store"
	"liquidityArena/internal/store/memory"
	"liquidityArena/internal/store/postgres"
)

func runEvaluator(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.AgentEndpoints) == 0 {
		return fmt.Errorf("agent endpoint list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobStore, err := newStore(ctx, cfg.PGDSN, logger)
	if err != nil {
		return err
	}

	var chainClient *chain.Client
	if cfg.RPCURL != "" {
		chainClient, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
	}

	source, err := newDataSource(ctx, cfg.Source, cfg.PGDSN, chainClient, datasource.EVMConfig{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.RetryAttempts,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	if err != nil {
		return err
	}

	provider, err := newInventoryProvider(cfg, chainClient)
	if err != nil {
		return err
	}

	var executor execution.Service
	if cfg.ExecuteURL != "" {
		relay, err := execution.NewHTTPRelay(cfg.ExecuteURL, cfg.ExecuteAPIKey, logger)
		if err != nil {
			return fmt.Errorf("execution relay: %w", err)
		}
		executor = relay
	}

	agents := agent.NewHTTPClient(cfg.AgentEndpoints, logger)

	orchestrator := round.NewOrchestrator(
		round.Config{
			CheckpointBlocks: cfg.CheckpointBlocks,
			QueryTimeout:     cfg.QueryTimeout,
			PollInterval:     cfg.PollInterval,
			Constraints: round.Constraints{
				MinTickWidth:       cfg.MinTickWidth,
				MaxRebalances:      cfg.MaxRebalances,
				MaxImpermanentLoss: cfg.MaxImpermanentLoss,
			},
		},
		jobStore,
		source,
		backtest.NewSimulator(source, logger),
		scoring.NewScorer(),
		agents,
		provider,
		executor,
		artifact.NewWriter(cfg.ArtifactDir),
		logger,
	)

	jobs, err := jobStore.ActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("load active jobs: %w", err)
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no active jobs configured")
	}

	logger.Info("evaluator start",
		zap.String("source", cfg.Source),
		zap.Int("jobs", len(jobs)),
		zap.Int("agents", len(cfg.AgentEndpoints)),
		zap.Bool("live_enabled", executor != nil),
	)

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job model.Job) {
			defer wg.Done()
			if err := orchestrator.RunJob(ctx, job, agents.AgentIDs()); err != nil && ctx.Err() == nil {
				logger.Error("job stopped", zap.String("job_id", job.ID), zap.Error(err))
			}
		}(job)
	}
	wg.Wait()

	return ctx.Err()
}

func newStore(ctx context.Context, dsn string, logger *zap.Logger) (store.JobStore, error) {
	if dsn == "" {
		logger.Warn("no pg-dsn configured, state is kept in memory only")
		return memory.NewStore(), nil
	}
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, nil
}

func newDataSource(ctx context.Context, kind, dsn string, chainClient *chain.Client, evmCfg datasource.EVMConfig, logger *zap.Logger) (datasource.DataSource, error) {
	switch kind {
	case "evm":
		if chainClient == nil {
			return nil, fmt.Errorf("rpc url is required for the evm source")
		}
		return datasource.NewEVMSource(evmCfg, chainClient, logger)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("pg-dsn is required for the postgres source")
		}
		return datasource.NewPostgresSource(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown data source: %s", kind)
	}
}

func newInventoryProvider(cfg config.Config, chainClient *chain.Client) (inventory.Provider, error) {
	if cfg.VaultAddress != "" {
		if chainClient == nil {
			return nil, fmt.Errorf("rpc url is required for vault inventory")
		}
		return inventory.NewVaultProvider(chainClient, cfg.VaultAddress)
	}

	amount0, ok := new(big.Int).SetString(cfg.InventoryAmount0, 10)
	if !ok {
		return nil, fmt.Errorf("invalid inventory-amount0: %q", cfg.InventoryAmount0)
	}
	amount1, ok := new(big.Int).SetString(cfg.InventoryAmount1, 10)
	if !ok {
		return nil, fmt.Errorf("invalid inventory-amount1: %q", cfg.InventoryAmount1)
	}
	return inventory.StaticProvider{Amounts: model.Inventory{Amount0: amount0, Amount1: amount1}}, nil
}
