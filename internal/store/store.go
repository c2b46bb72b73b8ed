// Package store persists competition state: jobs, rounds, agent
// decisions, reputation, participation, and live executions.
package store

import (
	"context"
	"time"

	"liquidityArena/internal/model"
)

// JobStore is the persistence boundary for the round orchestrator.
// Round numbers always come from NextRoundNumber so restarts never
// reuse or skip a number, and round creation is idempotent through
// FindRound.
type JobStore interface {
	// ActiveJobs returns jobs to run, oldest first.
	ActiveJobs(ctx context.Context) ([]model.Job, error)

	// GetJob returns one job by id.
	GetJob(ctx context.Context, jobID string) (model.Job, error)

	// NextRoundNumber returns max(existing round numbers)+1 for the
	// (job, type) pair.
	NextRoundNumber(ctx context.Context, jobID string, roundType model.RoundType) (int, error)

	// FindRound returns the round with the given (job, type, number) if
	// one exists.
	FindRound(ctx context.Context, jobID string, roundType model.RoundType, number int) (*model.Round, error)

	// CreateRound inserts a new round record.
	CreateRound(ctx context.Context, round model.Round) error

	// GetRound returns one round by id.
	GetRound(ctx context.Context, roundID string) (model.Round, error)

	// CompleteRound marks the round terminal and records the winner.
	CompleteRound(ctx context.Context, roundID, winnerID string, status model.RoundStatus) error

	// SavePrediction upserts one agent's decision record for a round,
	// keyed on (round, agent). Refusals are saved like acceptances.
	SavePrediction(ctx context.Context, prediction model.Prediction) error

	// RoundPredictions returns all predictions for a round.
	RoundPredictions(ctx context.Context, roundID string) ([]model.Prediction, error)

	// AgentScore returns the agent's reputation for a job. A missing
	// record comes back as a zero-valued score, not an error.
	AgentScore(ctx context.Context, jobID, agentID string) (model.AgentScore, error)

	// SaveAgentScore upserts the agent's reputation record.
	SaveAgentScore(ctx context.Context, score model.AgentScore) error

	// HistoricCombinedScores returns the combined scores for the given
	// agents as currently persisted, i.e. before this round's update.
	HistoricCombinedScores(ctx context.Context, jobID string, agentIDs []string) (map[string]float64, error)

	// LiveEligibleAgents returns live-eligible agents ordered by
	// combined score desc, then total evaluations desc, then total live
	// rounds desc.
	LiveEligibleAgents(ctx context.Context, jobID string) ([]model.AgentScore, error)

	// PreviousWinner returns the winner of the latest completed round
	// of the given type, or "" when there is none.
	PreviousWinner(ctx context.Context, jobID string, roundType model.RoundType) (string, error)

	// RecordParticipation upserts the (job, agent, day) participation
	// record and returns the distinct participation-day count within
	// the trailing seven days.
	RecordParticipation(ctx context.Context, jobID, agentID string, day time.Time) (int, error)

	// SaveLiveExecution appends one live execution attempt record.
	SaveLiveExecution(ctx context.Context, exec model.LiveExecution) error
}
