package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityArena/internal/backtest"
	"liquidityArena/internal/chain"
	"liquidityArena/internal/config"
	"liquidityArena/internal/datasource"
	"liquidityArena/internal/scoring"
	"liquidityArena/internal/store/postgres"
)

// replayLine is one agent's re-simulated result, printed as JSONL.
type replayLine struct {
	RoundID       string   `json:"round_id"`
	AgentID       string   `json:"agent_id"`
	Accepted      bool     `json:"accepted"`
	RefusalReason string   `json:"refusal_reason,omitempty"`
	Rebalances    int      `json:"rebalances"`
	Score         *float64 `json:"score,omitempty"`
	StoredScore   *float64 `json:"stored_score,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RoundID == "" {
		return fmt.Errorf("round-id is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required for replay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobStore, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
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

	round, err := jobStore.GetRound(ctx, cfg.RoundID)
	if err != nil {
		return err
	}
	job, err := jobStore.GetJob(ctx, round.JobID)
	if err != nil {
		return err
	}
	predictions, err := jobStore.RoundPredictions(ctx, round.ID)
	if err != nil {
		return err
	}

	endBlock := cfg.EndBlock
	if endBlock == 0 {
		endBlock, err = source.LatestBlock(ctx)
		if err != nil {
			return err
		}
	}

	logger.Info("replaying round",
		zap.String("round_id", round.ID),
		zap.String("job_id", job.ID),
		zap.Uint64("start_block", round.StartBlock),
		zap.Uint64("end_block", endBlock),
		zap.Int("predictions", len(predictions)),
	)

	simulator := backtest.NewSimulator(source, logger)
	scorer := scoring.NewScorer()
	encoder := json.NewEncoder(os.Stdout)

	for _, prediction := range predictions {
		line := replayLine{
			RoundID:       round.ID,
			AgentID:       prediction.AgentID,
			Accepted:      prediction.Accepted,
			RefusalReason: prediction.RefusalReason,
			Rebalances:    len(prediction.History),
		}
		if stored := prediction.Score; !math.IsInf(stored, 0) && !math.IsNaN(stored) {
			line.StoredScore = &stored
		}
		switch {
		case !prediction.Accepted:
		case prediction.Performance == nil:
			line.Error = "stored prediction has no performance record"
		default:
			result, err := simulator.EvaluatePerformance(
				ctx, job.PairAddress, prediction.History,
				round.StartBlock, endBlock,
				prediction.Performance.InitialInventory, job.FeeRate,
			)
			if err != nil {
				line.Error = err.Error()
			} else if score := scorer.Score(job, result); !math.IsInf(score, 0) {
				line.Score = &score
			}
		}
		if err := encoder.Encode(line); err != nil {
			return err
		}
	}

	return nil
}
