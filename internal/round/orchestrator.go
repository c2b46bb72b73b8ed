package round

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"liquidityArena/internal/agent"
	"liquidityArena/internal/backtest"
	"liquidityArena/internal/datasource"
	"liquidityArena/internal/execution"
	"liquidityArena/internal/inventory"
	"liquidityArena/internal/model"
	"liquidityArena/internal/scoring"
	"liquidityArena/internal/store"
)

// Config tunes round pacing. Zero values fall back to defaults.
type Config struct {
	// CheckpointBlocks is the minimum block gap between agent queries.
	CheckpointBlocks uint64
	// QueryTimeout bounds a single agent query.
	QueryTimeout time.Duration
	// PollInterval is the sleep between chain-head polls.
	PollInterval time.Duration
	Constraints  Constraints
}

func (c Config) withDefaults() Config {
	if c.CheckpointBlocks == 0 {
		c.CheckpointBlocks = 100
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Constraints == (Constraints{}) {
		c.Constraints = DefaultConstraints()
	}
	return c
}

// ArtifactWriter persists the winning strategy of a completed round.
type ArtifactWriter interface {
	WriteRound(round model.Round, winner model.Prediction, positions []model.Position) error
}

// Orchestrator runs evaluation and live rounds for a job: it samples
// agents at block checkpoints, simulates the collected histories,
// ranks the results and folds them into agent reputation.
type Orchestrator struct {
	cfg       Config
	store     store.JobStore
	source    datasource.DataSource
	simulator *backtest.Simulator
	scorer    *scoring.Scorer
	agents    agent.Client
	inventory inventory.Provider
	executor  execution.Service
	artifacts ArtifactWriter
	logger    *zap.Logger
}

func NewOrchestrator(
	cfg Config,
	jobStore store.JobStore,
	source datasource.DataSource,
	simulator *backtest.Simulator,
	scorer *scoring.Scorer,
	agents agent.Client,
	inventoryProvider inventory.Provider,
	executor execution.Service,
	artifacts ArtifactWriter,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     jobStore,
		source:    source,
		simulator: simulator,
		scorer:    scorer,
		agents:    agents,
		inventory: inventoryProvider,
		executor:  executor,
		artifacts: artifacts,
		logger:    logger,
	}
}

// RunJob alternates evaluation and live rounds for one job until the
// context is cancelled. Round failures are logged and retried after a
// cooldown rather than stopping the job.
func (o *Orchestrator) RunJob(ctx context.Context, job model.Job, agentIDs []string) error {
	const failureCooldown = time.Minute

	for {
		if _, err := o.RunEvaluationRound(ctx, job, agentIDs); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Error("evaluation round failed",
				zap.String("job_id", job.ID), zap.Error(err))
			if !sleepCtx(ctx, failureCooldown) {
				return ctx.Err()
			}
			continue
		}

		if o.executor != nil {
			if _, err := o.RunLiveRound(ctx, job); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.logger.Error("live round failed",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}

		if !sleepCtx(ctx, o.cfg.PollInterval) {
			return ctx.Err()
		}
	}
}

// RunEvaluationRound runs one full evaluation round for the job and
// returns the completed round with its winner set.
func (o *Orchestrator) RunEvaluationRound(ctx context.Context, job model.Job, agentIDs []string) (*model.Round, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("no agents registered for job %s", job.ID)
	}

	snap, err := o.beginRound(ctx, job, model.RoundEvaluation)
	if err != nil {
		return nil, err
	}
	log := o.logger.With(zap.String("round_id", snap.round.ID))
	log.Info("evaluation round started",
		zap.String("job_id", job.ID),
		zap.Int("round_number", snap.round.Number),
		zap.Uint64("start_block", snap.startBlock),
		zap.Int("agents", len(agentIDs)))

	outcomes := o.collectOutcomes(ctx, snap, agentIDs)
	if err := o.savePredictions(ctx, outcomes, log); err != nil {
		return nil, err
	}

	winnerID, winner := o.pickWinner(ctx, job.ID, outcomes)

	if err := o.store.CompleteRound(ctx, snap.round.ID, winnerID, model.RoundCompleted); err != nil {
		return nil, fmt.Errorf("completing round %s: %w", snap.round.ID, err)
	}
	snap.round.Status = model.RoundCompleted
	snap.round.WinnerID = winnerID

	// Reputation moves only once the round is durably complete, so a
	// crash mid-round never leaves half-applied score updates behind.
	for _, out := range outcomes {
		if !out.scored || math.IsInf(out.score, -1) {
			continue
		}
		o.applyReputation(ctx, job.ID, out.agentID, out.score, model.RoundEvaluation, log)
	}

	if winner != nil && o.artifacts != nil {
		if err := o.artifacts.WriteRound(snap.round, winner.prediction, winner.positions); err != nil {
			log.Warn("failed to write round artifact", zap.Error(err))
		}
	}

	log.Info("evaluation round completed",
		zap.String("winner_id", winnerID),
		zap.Int("participants", len(outcomes)))
	return &snap.round, nil
}

// RunLiveRound runs one live round with the winner of the latest
// completed evaluation round, mirroring its rebalances on chain.
// It returns (nil, nil) when no eligible winner exists.
func (o *Orchestrator) RunLiveRound(ctx context.Context, job model.Job) (*model.Round, error) {
	winnerID, err := o.store.PreviousWinner(ctx, job.ID, model.RoundEvaluation)
	if err != nil {
		return nil, fmt.Errorf("looking up previous winner: %w", err)
	}
	if winnerID == "" {
		o.logger.Info("no completed evaluation round yet, skipping live round",
			zap.String("job_id", job.ID))
		return nil, nil
	}

	agentScore, err := o.store.AgentScore(ctx, job.ID, winnerID)
	if err != nil {
		return nil, fmt.Errorf("loading score for %s: %w", winnerID, err)
	}
	if !agentScore.EligibleForLive {
		o.logger.Info("evaluation winner not yet eligible for live rounds",
			zap.String("job_id", job.ID),
			zap.String("agent_id", winnerID),
			zap.Int("participation_days", agentScore.ParticipationDays))

		// Fall back to the best live-eligible agent by combined score.
		eligible, err := o.store.LiveEligibleAgents(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("loading live-eligible agents: %w", err)
		}
		if len(eligible) == 0 {
			return nil, nil
		}
		winnerID = eligible[0].AgentID
		o.logger.Info("running live round with fallback agent",
			zap.String("job_id", job.ID),
			zap.String("agent_id", winnerID))
	}

	snap, err := o.beginRound(ctx, job, model.RoundLive)
	if err != nil {
		return nil, err
	}
	log := o.logger.With(zap.String("round_id", snap.round.ID))
	log.Info("live round started",
		zap.String("job_id", job.ID),
		zap.String("agent_id", winnerID),
		zap.Int("round_number", snap.round.Number))

	out := o.runAgentTask(ctx, snap, winnerID, true)
	if err := o.savePredictions(ctx, []outcome{out}, log); err != nil {
		return nil, err
	}

	roundWinner := ""
	status := model.RoundCompleted
	if out.failure != nil && !out.scored {
		status = model.RoundFailed
		log.Warn("live round failed", zap.Error(out.failure))
	} else if out.scored {
		roundWinner = winnerID
	}
	if err := o.store.CompleteRound(ctx, snap.round.ID, roundWinner, status); err != nil {
		return nil, fmt.Errorf("completing round %s: %w", snap.round.ID, err)
	}
	snap.round.Status = status
	snap.round.WinnerID = roundWinner

	switch {
	case !out.scored || math.IsInf(out.score, -1):
		// nothing to fold into reputation
	case out.execTotal > 0 && out.execFailed == out.execTotal:
		log.Warn("every live execution failed, skipping reputation update",
			zap.Int("attempts", out.execTotal))
	default:
		if out.execFailed > 0 {
			log.Warn("some live executions failed",
				zap.Int("failed", out.execFailed),
				zap.Int("attempts", out.execTotal))
		}
		o.applyReputation(ctx, job.ID, winnerID, out.score, model.RoundLive, log)
	}

	return &snap.round, nil
}

// beginRound resolves the round number, resumes a still-open round
// left by a crash, or creates a fresh one, and captures the shared
// starting state.
func (o *Orchestrator) beginRound(ctx context.Context, job model.Job, roundType model.RoundType) (snapshot, error) {
	startBlock, err := o.source.LatestBlock(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("resolving start block: %w", err)
	}

	number, err := o.store.NextRoundNumber(ctx, job.ID, roundType)
	if err != nil {
		return snapshot{}, fmt.Errorf("resolving round number: %w", err)
	}

	var round *model.Round
	if number > 1 {
		previous, err := o.store.FindRound(ctx, job.ID, roundType, number-1)
		if err != nil {
			return snapshot{}, fmt.Errorf("checking previous round: %w", err)
		}
		if previous != nil && previous.Status == model.RoundActive && time.Now().Before(previous.Deadline) {
			round = previous
		}
	}

	if round == nil {
		start := time.Now().UTC()
		round = &model.Round{
			ID:         fmt.Sprintf("%s_%s_%d_%d", job.ID, roundType, number, start.Unix()),
			JobID:      job.ID,
			Type:       roundType,
			Number:     number,
			StartBlock: startBlock,
			StartTime:  start,
			Deadline:   start.Add(job.RoundDuration()),
			Status:     model.RoundActive,
		}
		if err := o.store.CreateRound(ctx, *round); err != nil {
			return snapshot{}, fmt.Errorf("creating round: %w", err)
		}
	} else {
		startBlock = round.StartBlock
		o.logger.Info("resuming open round",
			zap.String("round_id", round.ID),
			zap.Time("deadline", round.Deadline))
	}

	initialInventory, err := o.inventory.Inventory(ctx, job.PairAddress)
	if err != nil {
		return snapshot{}, fmt.Errorf("resolving initial inventory: %w", err)
	}

	return snapshot{
		job:              job,
		round:            *round,
		startBlock:       startBlock,
		initialInventory: initialInventory,
	}, nil
}

func (o *Orchestrator) collectOutcomes(ctx context.Context, snap snapshot, agentIDs []string) []outcome {
	results := make(chan outcome, len(agentIDs))
	var wg sync.WaitGroup
	for _, agentID := range agentIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			results <- o.runAgentTask(ctx, snap, id, false)
		}(agentID)
	}
	wg.Wait()
	close(results)

	outcomes := make([]outcome, 0, len(agentIDs))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (o *Orchestrator) savePredictions(ctx context.Context, outcomes []outcome, log *zap.Logger) error {
	for _, out := range outcomes {
		if out.failure != nil && !out.scored {
			log.Warn("agent task failed",
				zap.String("agent_id", out.agentID), zap.Error(out.failure))
		}
		if err := o.store.SavePrediction(ctx, out.prediction); err != nil {
			return fmt.Errorf("saving prediction for %s: %w", out.agentID, err)
		}
	}
	return nil
}

// pickWinner ranks the scored outcomes by round score with historic
// combined score and agent ID as tie-breakers. Historic scores are
// read before any reputation update, so the tie-break reflects
// standing going into the round.
func (o *Orchestrator) pickWinner(ctx context.Context, jobID string, outcomes []outcome) (string, *outcome) {
	roundScores := make(map[string]float64)
	byAgent := make(map[string]*outcome, len(outcomes))
	scoredIDs := make([]string, 0, len(outcomes))
	for i := range outcomes {
		out := &outcomes[i]
		byAgent[out.agentID] = out
		if out.scored {
			roundScores[out.agentID] = out.score
			scoredIDs = append(scoredIDs, out.agentID)
		}
	}
	if len(roundScores) == 0 {
		return "", nil
	}

	historic, err := o.store.HistoricCombinedScores(ctx, jobID, scoredIDs)
	if err != nil {
		o.logger.Warn("failed to load historic scores, tie-breaking by agent id",
			zap.Error(err))
		historic = nil
	}

	ranked := scoring.RankByScoreAndHistory(roundScores, historic)
	winnerID := ranked[0].AgentID
	return winnerID, byAgent[winnerID]
}

func (o *Orchestrator) applyReputation(ctx context.Context, jobID, agentID string, sample float64, roundType model.RoundType, log *zap.Logger) {
	agentScore, err := o.store.AgentScore(ctx, jobID, agentID)
	if err != nil {
		log.Warn("failed to load agent score",
			zap.String("agent_id", agentID), zap.Error(err))
		return
	}

	if roundType == model.RoundLive {
		agentScore = scoring.ApplyLiveSample(agentScore, sample)
	} else {
		agentScore = scoring.ApplyEvaluationSample(agentScore, sample)
	}

	days, err := o.store.RecordParticipation(ctx, jobID, agentID, time.Now().UTC())
	if err != nil {
		log.Warn("failed to record participation",
			zap.String("agent_id", agentID), zap.Error(err))
	} else {
		agentScore.ParticipationDays = days
		agentScore.EligibleForLive = scoring.LiveEligible(days)
	}
	agentScore.LastActive = time.Now().UTC()

	if err := o.store.SaveAgentScore(ctx, agentScore); err != nil {
		log.Warn("failed to save agent score",
			zap.String("agent_id", agentID), zap.Error(err))
	}
}

func executionFailure(err error) execution.Result {
	return execution.Result{Success: false, Error: err.Error()}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
