package round

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"liquidityArena/internal/agent"
	"liquidityArena/internal/backtest"
	"liquidityArena/internal/execution"
	"liquidityArena/internal/inventory"
	"liquidityArena/internal/model"
	"liquidityArena/internal/scoring"
	"liquidityArena/internal/store/memory"
	"liquidityArena/internal/univ3"
)

// fakeData is an in-memory chain: the head advances on every poll and
// the price is constant unless priceFn derives it per block.
type fakeData struct {
	mu      sync.Mutex
	block   uint64
	price   *big.Int
	priceFn func(block uint64) *big.Int
	swaps   []model.SwapEvent
}

func (f *fakeData) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block++
	return f.block, nil
}

func (f *fakeData) advance(blocks uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block += blocks
}

func (f *fakeData) SqrtPriceAtBlock(_ context.Context, _ string, block uint64) (*big.Int, error) {
	if f.priceFn != nil {
		return f.priceFn(block), nil
	}
	return new(big.Int).Set(f.price), nil
}

func (f *fakeData) SwapEvents(context.Context, string, uint64, uint64) ([]model.SwapEvent, error) {
	return f.swaps, nil
}

// fakeAgents answers queries per agent via a function table.
type fakeAgents struct {
	handlers map[string]func(agent.Request) (*agent.Response, error)
}

func (f *fakeAgents) Query(_ context.Context, agentID string, req agent.Request) (*agent.Response, error) {
	handler, ok := f.handlers[agentID]
	if !ok {
		return nil, errors.New("unknown agent")
	}
	return handler(req)
}

// fakeExecutor records submissions and returns a fixed result.
type fakeExecutor struct {
	mu      sync.Mutex
	result  execution.Result
	submits int
}

func (f *fakeExecutor) Submit(context.Context, string, string, string, []model.Position) (execution.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.result, nil
}

// placeOnce returns positions on the first query and holds afterwards.
func placeOnce(positions []model.Position) func(agent.Request) (*agent.Response, error) {
	var once sync.Once
	return func(agent.Request) (*agent.Response, error) {
		resp := &agent.Response{Accepted: true}
		once.Do(func() { resp.DesiredPositions = positions })
		return resp, nil
	}
}

func testJob() model.Job {
	return model.Job{
		ID:                   "job-1",
		PairAddress:          "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640",
		FeeRate:              0.003,
		TargetRatio:          0.5,
		RoundDurationSeconds: 1,
		ChainID:              1,
		Policy:               model.PolicyValueLossPenalty,
		Decimals0:            18,
		Decimals1:            18,
		IsActive:             true,
	}
}

func testPositions(t *testing.T) []model.Position {
	t.Helper()
	return []model.Position{{
		TickLower:   -600,
		TickUpper:   600,
		Allocation0: big.NewInt(400_000_000_000_000_000),
		Allocation1: big.NewInt(400_000_000_000_000_000),
	}}
}

func newTestOrchestrator(t *testing.T, data *fakeData, agents *fakeAgents, store *memory.Store, exec execution.Service) *Orchestrator {
	t.Helper()
	cfg := Config{
		CheckpointBlocks: 1,
		QueryTimeout:     time.Second,
		PollInterval:     10 * time.Millisecond,
	}
	provider := &inventory.StaticProvider{Amounts: model.Inventory{
		Amount0: big.NewInt(1_000_000_000_000_000_000),
		Amount1: big.NewInt(1_000_000_000_000_000_000),
	}}
	return NewOrchestrator(
		cfg, store, data,
		backtest.NewSimulator(data, nil),
		scoring.NewScorer(),
		agents, provider, exec, nil, nil,
	)
}

func TestRunEvaluationRound(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": placeOnce(testPositions(t)),
		"agent-b": func(agent.Request) (*agent.Response, error) {
			return &agent.Response{Accepted: false, RefusalReason: "busy"}, nil
		},
		"agent-c": func(agent.Request) (*agent.Response, error) {
			return nil, errors.New("connection refused")
		},
	}}

	o := newTestOrchestrator(t, data, agents, store, nil)
	round, err := o.RunEvaluationRound(context.Background(), testJob(), []string{"agent-a", "agent-b", "agent-c"})
	if err != nil {
		t.Fatalf("RunEvaluationRound: %v", err)
	}
	if round.Status != model.RoundCompleted {
		t.Fatalf("round status = %s, want completed", round.Status)
	}
	if round.WinnerID != "agent-a" {
		t.Fatalf("winner = %q, want agent-a", round.WinnerID)
	}
	if round.Number != 1 {
		t.Fatalf("round number = %d, want 1", round.Number)
	}

	predictions, err := store.RoundPredictions(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("RoundPredictions: %v", err)
	}
	byAgent := map[string]model.Prediction{}
	for _, p := range predictions {
		byAgent[p.AgentID] = p
	}
	if len(byAgent) != 3 {
		t.Fatalf("got %d predictions, want 3", len(byAgent))
	}
	if !byAgent["agent-a"].Accepted {
		t.Fatalf("agent-a prediction not accepted")
	}
	if len(byAgent["agent-a"].History) != 1 {
		t.Fatalf("agent-a rebalances = %d, want 1", len(byAgent["agent-a"].History))
	}
	if byAgent["agent-b"].Accepted || byAgent["agent-b"].RefusalReason != "busy" {
		t.Fatalf("agent-b prediction = %+v, want refusal 'busy'", byAgent["agent-b"])
	}
	if byAgent["agent-c"].Accepted || byAgent["agent-c"].RefusalReason != "timeout or error" {
		t.Fatalf("agent-c prediction = %+v, want timeout refusal", byAgent["agent-c"])
	}

	// Reputation moved only for the agent that was scored.
	scoreA, _ := store.AgentScore(context.Background(), "job-1", "agent-a")
	if scoreA.TotalEvaluations != 1 {
		t.Fatalf("agent-a evaluations = %d, want 1", scoreA.TotalEvaluations)
	}
	if scoreA.ParticipationDays != 1 {
		t.Fatalf("agent-a participation days = %d, want 1", scoreA.ParticipationDays)
	}
	if scoreA.EligibleForLive {
		t.Fatalf("agent-a eligible for live after one day")
	}
	scoreB, _ := store.AgentScore(context.Background(), "job-1", "agent-b")
	if scoreB.TotalEvaluations != 0 {
		t.Fatalf("agent-b evaluations = %d, want 0", scoreB.TotalEvaluations)
	}
}

func TestRebalancePricedAtExecutionTimeHead(t *testing.T) {
	data := &fakeData{priceFn: func(block uint64) *big.Int {
		return new(big.Int).Add(univ3.Q96, new(big.Int).SetUint64(block))
	}}
	store := memory.NewStore()

	var once sync.Once
	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": func(agent.Request) (*agent.Response, error) {
			resp := &agent.Response{Accepted: true}
			once.Do(func() {
				// The head moves while the agent is deciding.
				data.advance(10)
				resp.DesiredPositions = testPositions(t)
			})
			return resp, nil
		},
	}}

	o := newTestOrchestrator(t, data, agents, store, nil)
	round, err := o.RunEvaluationRound(context.Background(), testJob(), []string{"agent-a"})
	if err != nil {
		t.Fatalf("RunEvaluationRound: %v", err)
	}

	predictions, _ := store.RoundPredictions(context.Background(), round.ID)
	if len(predictions) != 1 || len(predictions[0].History) != 1 {
		t.Fatalf("expected one prediction with one rebalance, got %+v", predictions)
	}
	event := predictions[0].History[0]
	if event.PriceAtQuery == nil || event.PriceAtExecution == nil {
		t.Fatalf("rebalance prices not recorded: %+v", event)
	}
	if event.PriceAtExecution.Cmp(event.PriceAtQuery) <= 0 {
		t.Fatalf("execution price %s not re-sampled past query price %s",
			event.PriceAtExecution, event.PriceAtQuery)
	}
}

func TestRunEvaluationRoundTieBreaksByHistoricScore(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-a", CombinedScore: 0.3,
	})
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-b", CombinedScore: 0.8,
	})

	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": placeOnce(testPositions(t)),
		"agent-b": placeOnce(testPositions(t)),
	}}

	o := newTestOrchestrator(t, data, agents, store, nil)
	round, err := o.RunEvaluationRound(context.Background(), testJob(), []string{"agent-a", "agent-b"})
	if err != nil {
		t.Fatalf("RunEvaluationRound: %v", err)
	}
	if round.WinnerID != "agent-b" {
		t.Fatalf("winner = %q, want agent-b on historic tie-break", round.WinnerID)
	}
}

func TestRunEvaluationRoundInsufficientInventory(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	greedy := []model.Position{{
		TickLower:   -600,
		TickUpper:   600,
		Allocation0: big.NewInt(2_000_000_000_000_000_000),
		Allocation1: big.NewInt(2_000_000_000_000_000_000),
	}}
	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": placeOnce(greedy),
	}}

	o := newTestOrchestrator(t, data, agents, store, nil)
	round, err := o.RunEvaluationRound(context.Background(), testJob(), []string{"agent-a"})
	if err != nil {
		t.Fatalf("RunEvaluationRound: %v", err)
	}
	if round.WinnerID != "" {
		t.Fatalf("winner = %q, want none", round.WinnerID)
	}

	predictions, _ := store.RoundPredictions(context.Background(), round.ID)
	if len(predictions) != 1 {
		t.Fatalf("got %d predictions, want 1", len(predictions))
	}
	if predictions[0].Accepted || predictions[0].RefusalReason != "insufficient inventory" {
		t.Fatalf("prediction = %+v, want implicit refusal", predictions[0])
	}

	score, _ := store.AgentScore(context.Background(), "job-1", "agent-a")
	if score.TotalEvaluations != 0 {
		t.Fatalf("refused agent gained evaluations: %d", score.TotalEvaluations)
	}
}

func TestRunEvaluationRoundZeroesScoreOnConstraintViolation(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	narrow := []model.Position{{
		TickLower:   0,
		TickUpper:   10,
		Allocation0: big.NewInt(100_000),
		Allocation1: big.NewInt(100_000),
	}}
	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": placeOnce(narrow),
	}}

	o := newTestOrchestrator(t, data, agents, store, nil)
	round, err := o.RunEvaluationRound(context.Background(), testJob(), []string{"agent-a"})
	if err != nil {
		t.Fatalf("RunEvaluationRound: %v", err)
	}

	predictions, _ := store.RoundPredictions(context.Background(), round.ID)
	if len(predictions) != 1 {
		t.Fatalf("got %d predictions, want 1", len(predictions))
	}
	p := predictions[0]
	if !p.Accepted {
		t.Fatalf("prediction not accepted: %+v", p)
	}
	if len(p.Violations) == 0 {
		t.Fatalf("expected constraint violations, got none")
	}
	if p.Score != 0 {
		t.Fatalf("violating strategy score = %v, want 0", p.Score)
	}
}

func seedCompletedEvaluation(t *testing.T, store *memory.Store, winnerID string) {
	t.Helper()
	err := store.CreateRound(context.Background(), model.Round{
		ID:       "job-1_evaluation_1_0",
		JobID:    "job-1",
		Type:     model.RoundEvaluation,
		Number:   1,
		Status:   model.RoundCompleted,
		WinnerID: winnerID,
	})
	if err != nil {
		t.Fatalf("seeding evaluation round: %v", err)
	}
}

func TestRunLiveRound(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	seedCompletedEvaluation(t, store, "agent-a")
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-a",
		ParticipationDays: 7, EligibleForLive: true,
	})

	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": placeOnce(testPositions(t)),
	}}
	executor := &fakeExecutor{result: execution.Result{Success: true, TxHash: "0xabc"}}

	o := newTestOrchestrator(t, data, agents, store, executor)
	round, err := o.RunLiveRound(context.Background(), testJob())
	if err != nil {
		t.Fatalf("RunLiveRound: %v", err)
	}
	if round == nil {
		t.Fatalf("live round skipped for eligible winner")
	}
	if round.Type != model.RoundLive || round.Status != model.RoundCompleted {
		t.Fatalf("round = %+v, want completed live round", round)
	}
	if round.WinnerID != "agent-a" {
		t.Fatalf("live winner = %q, want agent-a", round.WinnerID)
	}

	execs := store.LiveExecutions()
	if len(execs) != 1 {
		t.Fatalf("got %d live executions, want 1", len(execs))
	}
	if !execs[0].Success || execs[0].TxHash != "0xabc" {
		t.Fatalf("live execution = %+v, want success", execs[0])
	}

	score, _ := store.AgentScore(context.Background(), "job-1", "agent-a")
	if score.TotalLiveRounds != 1 {
		t.Fatalf("live rounds = %d, want 1", score.TotalLiveRounds)
	}
}

func TestRunLiveRoundAllExecutionsFailedSkipsReputation(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	seedCompletedEvaluation(t, store, "agent-a")
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-a",
		ParticipationDays: 7, EligibleForLive: true,
	})

	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-a": placeOnce(testPositions(t)),
	}}
	executor := &fakeExecutor{result: execution.Result{Success: false, Error: "relay unavailable"}}

	o := newTestOrchestrator(t, data, agents, store, executor)
	round, err := o.RunLiveRound(context.Background(), testJob())
	if err != nil {
		t.Fatalf("RunLiveRound: %v", err)
	}
	if round == nil || round.Status != model.RoundCompleted {
		t.Fatalf("round = %+v, want completed", round)
	}

	execs := store.LiveExecutions()
	if len(execs) != 1 || execs[0].Success {
		t.Fatalf("live executions = %+v, want one failed record", execs)
	}

	score, _ := store.AgentScore(context.Background(), "job-1", "agent-a")
	if score.TotalLiveRounds != 0 {
		t.Fatalf("reputation updated despite total execution failure: %d live rounds", score.TotalLiveRounds)
	}
}

func TestRunLiveRoundSkipsIneligibleWinner(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	seedCompletedEvaluation(t, store, "agent-a")
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-a",
		ParticipationDays: 3, EligibleForLive: false,
	})

	o := newTestOrchestrator(t, data, &fakeAgents{}, store, &fakeExecutor{})
	round, err := o.RunLiveRound(context.Background(), testJob())
	if err != nil {
		t.Fatalf("RunLiveRound: %v", err)
	}
	if round != nil {
		t.Fatalf("expected skip for ineligible winner, got round %+v", round)
	}
	if next, _ := store.NextRoundNumber(context.Background(), "job-1", model.RoundLive); next != 1 {
		t.Fatalf("live round was created for ineligible winner")
	}
}

func TestRunLiveRoundFallsBackToEligibleAgent(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()
	seedCompletedEvaluation(t, store, "agent-a")
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-a",
		ParticipationDays: 3, EligibleForLive: false,
	})
	_ = store.SaveAgentScore(context.Background(), model.AgentScore{
		JobID: "job-1", AgentID: "agent-b",
		CombinedScore: 0.5, ParticipationDays: 8, EligibleForLive: true,
	})

	agents := &fakeAgents{handlers: map[string]func(agent.Request) (*agent.Response, error){
		"agent-b": placeOnce(testPositions(t)),
	}}
	executor := &fakeExecutor{result: execution.Result{Success: true, TxHash: "0xdef"}}

	o := newTestOrchestrator(t, data, agents, store, executor)
	round, err := o.RunLiveRound(context.Background(), testJob())
	if err != nil {
		t.Fatalf("RunLiveRound: %v", err)
	}
	if round == nil {
		t.Fatalf("expected fallback live round")
	}
	if round.WinnerID != "agent-b" {
		t.Fatalf("live winner = %q, want fallback agent-b", round.WinnerID)
	}
}

func TestRunLiveRoundSkipsWithoutPreviousWinner(t *testing.T) {
	data := &fakeData{price: new(big.Int).Set(univ3.Q96)}
	store := memory.NewStore()

	o := newTestOrchestrator(t, data, &fakeAgents{}, store, &fakeExecutor{})
	round, err := o.RunLiveRound(context.Background(), testJob())
	if err != nil {
		t.Fatalf("RunLiveRound: %v", err)
	}
	if round != nil {
		t.Fatalf("expected skip without prior evaluation winner, got %+v", round)
	}
}
