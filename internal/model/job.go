package model

import "time"

// ScoringPolicy selects how a job converts performance into a score.
type ScoringPolicy string

const (
	// PolicyValueLossPenalty scores relative return with an exponential
	// loss penalty and an optional in-range bonus.
	PolicyValueLossPenalty ScoringPolicy = "value_loss_penalty"
	// PolicyRatioAndFee scores mark-to-market value weighted by distance
	// from the job's target token ratio, plus a fee bonus.
	PolicyRatioAndFee ScoringPolicy = "ratio_and_fee"
)

// Job is one configured competition context: a pool, its fee tier, and
// the round cadence agents compete under.
type Job struct {
	ID                   string        `json:"job_id"`
	PairAddress          string        `json:"pair_address"`
	FeeRate              float64       `json:"fee_rate"`
	TargetRatio          float64       `json:"target_ratio"`
	RoundDurationSeconds int           `json:"round_duration_seconds"`
	ChainID              uint64        `json:"chain_id"`
	Policy               ScoringPolicy `json:"scoring_policy"`
	Decimals0            int           `json:"decimals0"`
	Decimals1            int           `json:"decimals1"`
	IsActive             bool          `json:"is_active"`
	CreatedAt            time.Time     `json:"created_at"`
}

// RoundDuration returns the configured round length.
func (j Job) RoundDuration() time.Duration {
	return time.Duration(j.RoundDurationSeconds) * time.Second
}

// RoundType distinguishes simulated evaluation rounds from live rounds
// whose rebalances are executed on-chain.
type RoundType string

const (
	RoundEvaluation RoundType = "evaluation"
	RoundLive       RoundType = "live"
)

// RoundStatus is the round lifecycle state.
type RoundStatus string

const (
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
	RoundFailed    RoundStatus = "failed"
)

// Round is one bounded-duration competition cycle for a job. Number is
// unique per (job, type) and always derived from the store.
type Round struct {
	ID         string      `json:"round_id"`
	JobID      string      `json:"job_id"`
	Type       RoundType   `json:"round_type"`
	Number     int         `json:"round_number"`
	StartBlock uint64      `json:"start_block"`
	StartTime  time.Time   `json:"start_time"`
	Deadline   time.Time   `json:"round_deadline"`
	EndTime    time.Time   `json:"end_time,omitempty"`
	Status     RoundStatus `json:"status"`
	WinnerID   string      `json:"winner_id,omitempty"`
}

// Prediction records one agent's decision trail for a round: whether it
// accepted, its rebalance history, and the simulated outcome. Refusals
// and timeouts are data, not errors, and are persisted too.
type Prediction struct {
	RoundID        string             `json:"round_id"`
	JobID          string             `json:"job_id"`
	AgentID        string             `json:"agent_id"`
	Accepted       bool               `json:"accepted"`
	RefusalReason  string             `json:"refusal_reason,omitempty"`
	ResponseTimeMS int64              `json:"response_time_ms"`
	History        RebalanceHistory   `json:"rebalance_history,omitempty"`
	Performance    *PerformanceResult `json:"performance,omitempty"`
	Violations     []string           `json:"constraint_violations,omitempty"`
	Score          float64            `json:"score"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// AgentScore is an agent's persistent reputation on one job, smoothed
// with exponential moving averages across rounds.
type AgentScore struct {
	JobID             string    `json:"job_id"`
	AgentID           string    `json:"agent_id"`
	EvaluationScore   float64   `json:"evaluation_score"`
	LiveScore         float64   `json:"live_score"`
	CombinedScore     float64   `json:"combined_score"`
	TotalEvaluations  int       `json:"total_evaluations"`
	TotalLiveRounds   int       `json:"total_live_rounds"`
	ParticipationDays int       `json:"participation_days"`
	EligibleForLive   bool      `json:"eligible_for_live"`
	LastActive        time.Time `json:"last_active"`
}

// LiveExecution records one on-chain submission attempt during a live
// round.
type LiveExecution struct {
	RoundID     string     `json:"round_id"`
	JobID       string     `json:"job_id"`
	AgentID     string     `json:"agent_id"`
	Positions   []Position `json:"positions"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
}
