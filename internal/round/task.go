package round

import (
	"context"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"liquidityArena/internal/agent"
	"liquidityArena/internal/model"
	"liquidityArena/internal/univ3"
)

// snapshot is the immutable round state shared by every agent task.
// Tasks derive private state from it and never write back.
type snapshot struct {
	job              model.Job
	round            model.Round
	startBlock       uint64
	initialInventory model.Inventory
	initialPositions []model.Position
}

// outcome is what one agent task hands back to the orchestrator.
type outcome struct {
	agentID    string
	prediction model.Prediction
	scored     bool
	score      float64
	positions  []model.Position
	execTotal  int
	execFailed int
	failure    error
}

// runAgentTask drives one agent through the checkpointed rebalance
// loop until the round deadline, then simulates and scores the
// resulting history. Failures here are isolated to this agent.
func (o *Orchestrator) runAgentTask(ctx context.Context, snap snapshot, agentID string, live bool) outcome {
	log := o.logger.With(
		zap.String("round_id", snap.round.ID),
		zap.String("agent_id", agentID),
	)

	out := outcome{
		agentID:   agentID,
		positions: snap.initialPositions,
		prediction: model.Prediction{
			RoundID:     snap.round.ID,
			JobID:       snap.job.ID,
			AgentID:     agentID,
			SubmittedAt: time.Now().UTC(),
		},
	}

	currentPositions := snap.initialPositions
	ledger := snap.initialInventory.Clone()
	history := model.RebalanceHistory{}
	violations := make([]string, 0)
	var totalQueryMS int64
	lastBlock := snap.startBlock
	nextQueryBlock := snap.startBlock

	refuse := func(reason string) outcome {
		out.prediction.Accepted = false
		out.prediction.RefusalReason = reason
		out.prediction.History = history
		out.prediction.ResponseTimeMS = totalQueryMS
		out.positions = currentPositions
		return out
	}
	fail := func(err error) outcome {
		out.failure = err
		out.prediction.History = history
		out.prediction.ResponseTimeMS = totalQueryMS
		out.positions = currentPositions
		return out
	}

	for time.Now().Before(snap.round.Deadline) {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		currentBlock, err := o.source.LatestBlock(ctx)
		if err != nil {
			return fail(err)
		}
		lastBlock = currentBlock

		if currentBlock >= nextQueryBlock {
			priceAtQuery, err := o.source.SqrtPriceAtBlock(ctx, snap.job.PairAddress, currentBlock)
			if err != nil {
				return fail(err)
			}

			queryStart := time.Now()
			queryCtx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
			resp, err := o.agents.Query(queryCtx, agentID, agent.Request{
				JobID:              snap.job.ID,
				PairAddress:        snap.job.PairAddress,
				RoundID:            snap.round.ID,
				RoundType:          snap.round.Type,
				BlockNumber:        currentBlock,
				CurrentPrice:       priceAtQuery,
				CurrentPositions:   currentPositions,
				InventoryRemaining: ledger,
				RebalancesSoFar:    len(history),
			})
			cancel()
			totalQueryMS += time.Since(queryStart).Milliseconds()

			if err != nil {
				log.Warn("agent query failed", zap.Uint64("block_number", currentBlock), zap.Error(err))
				return refuse("timeout or error")
			}
			if !resp.Accepted {
				log.Info("agent refused round", zap.String("reason", resp.RefusalReason))
				return refuse(resp.RefusalReason)
			}

			if resp.DesiredPositions != nil {
				if broken := o.cfg.Constraints.CheckPositions(resp.DesiredPositions); len(broken) > 0 {
					log.Warn("proposal violates constraints", zap.Strings("violations", broken))
					violations = append(violations, broken...)
					break
				}

				// Re-sample at the head after the decision: the price
				// can move while the agent is thinking, and the
				// deployment is costed at execution time, not quote
				// time.
				execBlock, err := o.source.LatestBlock(ctx)
				if err != nil {
					return fail(err)
				}
				executionPrice, err := o.source.SqrtPriceAtBlock(ctx, snap.job.PairAddress, execBlock)
				if err != nil {
					return fail(err)
				}
				lastBlock = execBlock

				remaining, err := remainingInventory(snap.initialInventory, resp.DesiredPositions, executionPrice)
				if err != nil {
					if errors.Is(err, model.ErrInsufficientInventory) {
						log.Info("proposal exceeds inventory, treating as refusal",
							zap.Uint64("block_number", currentBlock))
						return refuse("insufficient inventory")
					}
					return fail(err)
				}

				ledger = remaining
				event := model.RebalanceEvent{
					Block:            currentBlock,
					OldPositions:     currentPositions,
					NewPositions:     resp.DesiredPositions,
					InventoryAfter:   ledger.Clone(),
					PriceAtQuery:     priceAtQuery,
					PriceAtExecution: executionPrice,
				}
				history = append(history, event)
				currentPositions = resp.DesiredPositions

				if live && o.executor != nil {
					o.executeRebalance(ctx, snap, agentID, event, &out, log)
				}
			}

			nextQueryBlock = currentBlock + o.cfg.CheckpointBlocks
		}

		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-time.After(o.cfg.PollInterval):
		}
	}

	out.prediction.Accepted = true
	out.prediction.History = history
	out.prediction.ResponseTimeMS = totalQueryMS
	out.positions = currentPositions

	result, err := o.simulator.EvaluatePerformance(
		ctx,
		snap.job.PairAddress,
		history,
		snap.startBlock,
		lastBlock,
		snap.initialInventory,
		snap.job.FeeRate,
	)
	if err != nil {
		log.Warn("simulation failed", zap.Error(err))
		out.failure = err
		out.prediction.Score = math.Inf(-1)
		return out
	}
	out.prediction.Performance = result

	violations = append(violations, o.cfg.Constraints.CheckPerformance(result.ImpermanentLoss, len(history))...)
	if len(violations) > 0 {
		log.Warn("strategy scored zero for constraint violations", zap.Strings("violations", violations))
		out.prediction.Violations = violations
		out.prediction.Score = 0
		out.scored = true
		return out
	}

	out.score = o.scorer.Score(snap.job, result)
	out.prediction.Score = out.score
	out.scored = true

	log.Info("agent evaluation complete",
		zap.Int("rebalances", len(history)),
		zap.Float64("score", out.score),
		zap.Float64("impermanent_loss", result.ImpermanentLoss))
	return out
}

func (o *Orchestrator) executeRebalance(ctx context.Context, snap snapshot, agentID string, event model.RebalanceEvent, out *outcome, log *zap.Logger) {
	out.execTotal++
	result, err := o.executor.Submit(ctx, snap.job.ID, snap.round.ID, agentID, event.NewPositions)
	if err != nil {
		result = executionFailure(err)
	}
	if !result.Success {
		out.execFailed++
		log.Warn("live execution failed",
			zap.Uint64("block_number", event.Block),
			zap.String("error", result.Error))
	}

	record := model.LiveExecution{
		RoundID:     snap.round.ID,
		JobID:       snap.job.ID,
		AgentID:     agentID,
		Positions:   event.NewPositions,
		TxHash:      result.TxHash,
		Success:     result.Success,
		Error:       result.Error,
		SubmittedAt: time.Now().UTC(),
	}
	if err := o.store.SaveLiveExecution(ctx, record); err != nil {
		log.Warn("failed to record live execution", zap.Error(err))
	}
}

// remainingInventory deducts what the proposal actually consumes at the
// execution price from the round's starting inventory. Placements
// replace each other, so consumption is always measured against the
// initial amounts, not the previous remainder.
func remainingInventory(initial model.Inventory, positions []model.Position, price *big.Int) (model.Inventory, error) {
	used0 := new(big.Int)
	used1 := new(big.Int)
	for _, position := range positions {
		_, amount0, amount1, err := univ3.PositionLiquidityAndUsedAmounts(
			position.TickLower,
			position.TickUpper,
			price,
			position.Allocation0,
			position.Allocation1,
		)
		if err != nil {
			return model.Inventory{}, err
		}
		used0.Add(used0, amount0)
		used1.Add(used1, amount1)
	}

	remaining0 := new(big.Int).Sub(initial.Amount0, used0)
	remaining1 := new(big.Int).Sub(initial.Amount1, used1)
	if remaining0.Sign() < 0 || remaining1.Sign() < 0 {
		return model.Inventory{}, model.ErrInsufficientInventory
	}
	return model.Inventory{Amount0: remaining0, Amount1: remaining1}, nil
}
