// Package postgres implements the JobStore on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityArena/internal/model"
)

// Store provides Postgres persistence for competition state.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ActiveJobs returns active jobs oldest-first.
func (s *Store) ActiveJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, pair_address, fee_rate, target_ratio, round_duration_seconds,
		       chain_id, scoring_policy, decimals0, decimals1, is_active, created_at
		FROM jobs
		WHERE is_active
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetJob returns one job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (model.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, pair_address, fee_rate, target_ratio, round_duration_seconds,
		       chain_id, scoring_policy, decimals0, decimals1, is_active, created_at
		FROM jobs
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		return model.Job{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Job{}, err
		}
		return model.Job{}, fmt.Errorf("job not found: %s", jobID)
	}
	return scanJob(rows)
}

func scanJob(rows pgx.Rows) (model.Job, error) {
	var (
		job     model.Job
		chainID int64
		policy  string
	)
	if err := rows.Scan(
		&job.ID, &job.PairAddress, &job.FeeRate, &job.TargetRatio, &job.RoundDurationSeconds,
		&chainID, &policy, &job.Decimals0, &job.Decimals1, &job.IsActive, &job.CreatedAt,
	); err != nil {
		return model.Job{}, err
	}
	job.ChainID = uint64(chainID)
	job.Policy = model.ScoringPolicy(policy)
	return job, nil
}

// NextRoundNumber derives max(round_number)+1 for (job, type).
func (s *Store) NextRoundNumber(ctx context.Context, jobID string, roundType model.RoundType) (int, error) {
	var max *int
	row := s.pool.QueryRow(ctx, `
		SELECT MAX(round_number) FROM rounds WHERE job_id = $1 AND round_type = $2
	`, jobID, string(roundType))
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// FindRound returns the round with (job, type, number) or nil.
func (s *Store) FindRound(ctx context.Context, jobID string, roundType model.RoundType, number int) (*model.Round, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT round_id, job_id, round_type, round_number, start_block,
		       start_time, round_deadline, end_time, status, winner_id
		FROM rounds
		WHERE job_id = $1 AND round_type = $2 AND round_number = $3
	`, jobID, string(roundType), number)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return round, nil
}

// GetRound returns one round by id.
func (s *Store) GetRound(ctx context.Context, roundID string) (model.Round, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT round_id, job_id, round_type, round_number, start_block,
		       start_time, round_deadline, end_time, status, winner_id
		FROM rounds
		WHERE round_id = $1
	`, roundID)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Round{}, fmt.Errorf("round not found: %s", roundID)
		}
		return model.Round{}, err
	}
	return *round, nil
}

func scanRound(row pgx.Row) (*model.Round, error) {
	var (
		round      model.Round
		rType      string
		status     string
		winnerID   *string
		endTime    *time.Time
		startBlock int64
	)
	err := row.Scan(&round.ID, &round.JobID, &rType, &round.Number, &startBlock,
		&round.StartTime, &round.Deadline, &endTime, &status, &winnerID)
	if err != nil {
		return nil, err
	}
	round.Type = model.RoundType(rType)
	round.Status = model.RoundStatus(status)
	round.StartBlock = uint64(startBlock)
	if winnerID != nil {
		round.WinnerID = *winnerID
	}
	if endTime != nil {
		round.EndTime = *endTime
	}
	return &round, nil
}

// CreateRound inserts a round. The unique (job_id, round_type,
// round_number) index makes duplicate creation fail instead of forking
// the sequence.
func (s *Store) CreateRound(ctx context.Context, round model.Round) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rounds (
			round_id, job_id, round_type, round_number, start_block,
			start_time, round_deadline, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`,
		round.ID,
		round.JobID,
		string(round.Type),
		round.Number,
		int64(round.StartBlock),
		round.StartTime,
		round.Deadline,
		string(round.Status),
	)
	return err
}

// CompleteRound marks a round terminal.
func (s *Store) CompleteRound(ctx context.Context, roundID, winnerID string, status model.RoundStatus) error {
	var winner *string
	if winnerID != "" {
		winner = &winnerID
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE rounds
		SET status = $2, winner_id = $3, end_time = now()
		WHERE round_id = $1
	`, roundID, string(status), winner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("round not found: %s", roundID)
	}
	return nil
}

// SavePrediction upserts one agent's decision for a round.
func (s *Store) SavePrediction(ctx context.Context, prediction model.Prediction) error {
	historyJSON, err := json.Marshal(prediction.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	var performanceJSON []byte
	if prediction.Performance != nil {
		performanceJSON, err = json.Marshal(prediction.Performance)
		if err != nil {
			return fmt.Errorf("encode performance: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO predictions (
			round_id, job_id, agent_id, accepted, refusal_reason, response_time_ms,
			rebalance_history, performance, score, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (round_id, agent_id)
		DO UPDATE SET
			accepted = EXCLUDED.accepted,
			refusal_reason = EXCLUDED.refusal_reason,
			response_time_ms = EXCLUDED.response_time_ms,
			rebalance_history = EXCLUDED.rebalance_history,
			performance = EXCLUDED.performance,
			score = EXCLUDED.score,
			submitted_at = now()
	`,
		prediction.RoundID,
		prediction.JobID,
		prediction.AgentID,
		prediction.Accepted,
		nullable(prediction.RefusalReason),
		prediction.ResponseTimeMS,
		historyJSON,
		performanceJSON,
		prediction.Score,
	)
	return err
}

// RoundPredictions returns all predictions saved for a round.
func (s *Store) RoundPredictions(ctx context.Context, roundID string) ([]model.Prediction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round_id, job_id, agent_id, accepted, refusal_reason, response_time_ms,
		       rebalance_history, performance, score, submitted_at
		FROM predictions
		WHERE round_id = $1
		ORDER BY agent_id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]model.Prediction, 0)
	for rows.Next() {
		var (
			prediction      model.Prediction
			refusalReason   *string
			historyJSON     []byte
			performanceJSON []byte
		)
		if err := rows.Scan(
			&prediction.RoundID, &prediction.JobID, &prediction.AgentID,
			&prediction.Accepted, &refusalReason, &prediction.ResponseTimeMS,
			&historyJSON, &performanceJSON, &prediction.Score, &prediction.SubmittedAt,
		); err != nil {
			return nil, err
		}
		if refusalReason != nil {
			prediction.RefusalReason = *refusalReason
		}
		if len(historyJSON) > 0 {
			if err := json.Unmarshal(historyJSON, &prediction.History); err != nil {
				return nil, fmt.Errorf("decode history: %w", err)
			}
		}
		if len(performanceJSON) > 0 {
			prediction.Performance = &model.PerformanceResult{}
			if err := json.Unmarshal(performanceJSON, prediction.Performance); err != nil {
				return nil, fmt.Errorf("decode performance: %w", err)
			}
		}
		predictions = append(predictions, prediction)
	}
	return predictions, rows.Err()
}

// AgentScore returns the persisted reputation, zero-valued if missing.
func (s *Store) AgentScore(ctx context.Context, jobID, agentID string) (model.AgentScore, error) {
	score := model.AgentScore{JobID: jobID, AgentID: agentID}
	row := s.pool.QueryRow(ctx, `
		SELECT evaluation_score, live_score, combined_score,
		       total_evaluations, total_live_rounds, participation_days,
		       eligible_for_live, last_active
		FROM agent_scores
		WHERE job_id = $1 AND agent_id = $2
	`, jobID, agentID)
	err := row.Scan(
		&score.EvaluationScore, &score.LiveScore, &score.CombinedScore,
		&score.TotalEvaluations, &score.TotalLiveRounds, &score.ParticipationDays,
		&score.EligibleForLive, &score.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentScore{JobID: jobID, AgentID: agentID}, nil
		}
		return model.AgentScore{}, err
	}
	return score, nil
}

// SaveAgentScore upserts the reputation record.
func (s *Store) SaveAgentScore(ctx context.Context, score model.AgentScore) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_scores (
			job_id, agent_id, evaluation_score, live_score, combined_score,
			total_evaluations, total_live_rounds, participation_days,
			eligible_for_live, last_active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (job_id, agent_id)
		DO UPDATE SET
			evaluation_score = EXCLUDED.evaluation_score,
			live_score = EXCLUDED.live_score,
			combined_score = EXCLUDED.combined_score,
			total_evaluations = EXCLUDED.total_evaluations,
			total_live_rounds = EXCLUDED.total_live_rounds,
			participation_days = EXCLUDED.participation_days,
			eligible_for_live = EXCLUDED.eligible_for_live,
			last_active = now(),
			updated_at = now()
	`,
		score.JobID,
		score.AgentID,
		score.EvaluationScore,
		score.LiveScore,
		score.CombinedScore,
		score.TotalEvaluations,
		score.TotalLiveRounds,
		score.ParticipationDays,
		score.EligibleForLive,
	)
	return err
}

// HistoricCombinedScores reads the currently persisted combined scores
// for the given agents; agents without a record are simply absent.
func (s *Store) HistoricCombinedScores(ctx context.Context, jobID string, agentIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(agentIDs))
	if len(agentIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT agent_id, combined_score
		FROM agent_scores
		WHERE job_id = $1 AND agent_id = ANY($2)
	`, jobID, agentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			agentID string
			score   float64
		)
		if err := rows.Scan(&agentID, &score); err != nil {
			return nil, err
		}
		out[agentID] = score
	}
	return out, rows.Err()
}

// LiveEligibleAgents returns eligible agents in the documented
// tie-break order.
func (s *Store) LiveEligibleAgents(ctx context.Context, jobID string) ([]model.AgentScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_id, evaluation_score, live_score, combined_score,
		       total_evaluations, total_live_rounds, participation_days,
		       eligible_for_live, last_active
		FROM agent_scores
		WHERE job_id = $1 AND eligible_for_live
		ORDER BY combined_score DESC, total_evaluations DESC, total_live_rounds DESC, agent_id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make([]model.AgentScore, 0)
	for rows.Next() {
		score := model.AgentScore{JobID: jobID}
		if err := rows.Scan(
			&score.AgentID, &score.EvaluationScore, &score.LiveScore, &score.CombinedScore,
			&score.TotalEvaluations, &score.TotalLiveRounds, &score.ParticipationDays,
			&score.EligibleForLive, &score.LastActive,
		); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// PreviousWinner returns the winner of the latest completed round of
// the given type.
func (s *Store) PreviousWinner(ctx context.Context, jobID string, roundType model.RoundType) (string, error) {
	var winner *string
	row := s.pool.QueryRow(ctx, `
		SELECT winner_id
		FROM rounds
		WHERE job_id = $1 AND round_type = $2 AND status = $3 AND winner_id IS NOT NULL
		ORDER BY round_number DESC
		LIMIT 1
	`, jobID, string(roundType), string(model.RoundCompleted))
	if err := row.Scan(&winner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if winner == nil {
		return "", nil
	}
	return *winner, nil
}

// RecordParticipation upserts the daily participation row and counts
// distinct days within the trailing week.
func (s *Store) RecordParticipation(ctx context.Context, jobID, agentID string, day time.Time) (int, error) {
	date := day.UTC().Truncate(24 * time.Hour)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_participation (
			job_id, agent_id, participation_date, rounds_participated, updated_at
		) VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (job_id, agent_id, participation_date)
		DO UPDATE SET
			rounds_participated = agent_participation.rounds_participated + 1,
			updated_at = now()
	`, jobID, agentID, date)
	if err != nil {
		return 0, err
	}

	var days int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT participation_date)
		FROM agent_participation
		WHERE job_id = $1 AND agent_id = $2 AND participation_date >= $3
	`, jobID, agentID, date.AddDate(0, 0, -7))
	if err := row.Scan(&days); err != nil {
		return 0, err
	}
	return days, nil
}

// SaveLiveExecution appends one execution attempt.
func (s *Store) SaveLiveExecution(ctx context.Context, exec model.LiveExecution) error {
	positionsJSON, err := json.Marshal(exec.Positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO live_executions (
			round_id, job_id, agent_id, positions, tx_hash, success, error, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`,
		exec.RoundID,
		exec.JobID,
		exec.AgentID,
		positionsJSON,
		nullable(exec.TxHash),
		exec.Success,
		nullable(exec.Error),
	)
	return err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
