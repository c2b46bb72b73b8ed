// Package memory is an in-process JobStore used by tests and offline
// replay. It mirrors the Postgres store's semantics, including the
// live-eligibility ordering and trailing-window participation count.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"liquidityArena/internal/model"
)

type participationKey struct {
	jobID   string
	agentID string
	day     string
}

type scoreKey struct {
	jobID   string
	agentID string
}

// Store keeps all competition state in maps guarded by one mutex.
type Store struct {
	mu             sync.Mutex
	jobs           map[string]model.Job
	jobOrder       []string
	rounds         map[string]model.Round
	predictions    map[string]model.Prediction // roundID + "\x00" + agentID
	scores         map[scoreKey]model.AgentScore
	participation  map[participationKey]int
	liveExecutions []model.LiveExecution
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		jobs:          make(map[string]model.Job),
		rounds:        make(map[string]model.Round),
		predictions:   make(map[string]model.Prediction),
		scores:        make(map[scoreKey]model.AgentScore),
		participation: make(map[participationKey]int),
	}
}

// PutJob registers a job, used for fixtures and replay setup.
func (s *Store) PutJob(job model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.jobOrder = append(s.jobOrder, job.ID)
	}
	s.jobs[job.ID] = job
}

func (s *Store) ActiveJobs(context.Context) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]model.Job, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		if job := s.jobs[id]; job.IsActive {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return model.Job{}, fmt.Errorf("job not found: %s", jobID)
	}
	return job, nil
}

func (s *Store) NextRoundNumber(_ context.Context, jobID string, roundType model.RoundType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, round := range s.rounds {
		if round.JobID == jobID && round.Type == roundType && round.Number > max {
			max = round.Number
		}
	}
	return max + 1, nil
}

func (s *Store) FindRound(_ context.Context, jobID string, roundType model.RoundType, number int) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, round := range s.rounds {
		if round.JobID == jobID && round.Type == roundType && round.Number == number {
			copied := round
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateRound(_ context.Context, round model.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rounds[round.ID]; exists {
		return fmt.Errorf("round already exists: %s", round.ID)
	}
	s.rounds[round.ID] = round
	return nil
}

func (s *Store) CompleteRound(_ context.Context, roundID, winnerID string, status model.RoundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return fmt.Errorf("round not found: %s", roundID)
	}
	round.Status = status
	round.WinnerID = winnerID
	round.EndTime = time.Now().UTC()
	s.rounds[roundID] = round
	return nil
}

func (s *Store) GetRound(_ context.Context, roundID string) (model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return model.Round{}, fmt.Errorf("round not found: %s", roundID)
	}
	return round, nil
}

func (s *Store) SavePrediction(_ context.Context, prediction model.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions[prediction.RoundID+"\x00"+prediction.AgentID] = prediction
	return nil
}

func (s *Store) RoundPredictions(_ context.Context, roundID string) ([]model.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Prediction, 0)
	for _, prediction := range s.predictions {
		if prediction.RoundID == roundID {
			out = append(out, prediction)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *Store) AgentScore(_ context.Context, jobID, agentID string) (model.AgentScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[scoreKey{jobID, agentID}]
	if !ok {
		return model.AgentScore{JobID: jobID, AgentID: agentID}, nil
	}
	return score, nil
}

func (s *Store) SaveAgentScore(_ context.Context, score model.AgentScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[scoreKey{score.JobID, score.AgentID}] = score
	return nil
}

func (s *Store) HistoricCombinedScores(_ context.Context, jobID string, agentIDs []string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(agentIDs))
	for _, agentID := range agentIDs {
		if score, ok := s.scores[scoreKey{jobID, agentID}]; ok {
			out[agentID] = score.CombinedScore
		}
	}
	return out, nil
}

func (s *Store) LiveEligibleAgents(_ context.Context, jobID string) ([]model.AgentScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AgentScore, 0)
	for key, score := range s.scores {
		if key.jobID == jobID && score.EligibleForLive {
			out = append(out, score)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		if out[i].TotalEvaluations != out[j].TotalEvaluations {
			return out[i].TotalEvaluations > out[j].TotalEvaluations
		}
		if out[i].TotalLiveRounds != out[j].TotalLiveRounds {
			return out[i].TotalLiveRounds > out[j].TotalLiveRounds
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

func (s *Store) PreviousWinner(_ context.Context, jobID string, roundType model.RoundType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	winner := ""
	best := 0
	for _, round := range s.rounds {
		if round.JobID == jobID && round.Type == roundType &&
			round.Status == model.RoundCompleted && round.Number > best && round.WinnerID != "" {
			best = round.Number
			winner = round.WinnerID
		}
	}
	return winner, nil
}

func (s *Store) RecordParticipation(_ context.Context, jobID, agentID string, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dayKey := day.UTC().Format("2006-01-02")
	s.participation[participationKey{jobID, agentID, dayKey}]++

	cutoff := day.UTC().AddDate(0, 0, -7).Format("2006-01-02")
	days := 0
	for key := range s.participation {
		if key.jobID == jobID && key.agentID == agentID && key.day >= cutoff {
			days++
		}
	}
	return days, nil
}

func (s *Store) SaveLiveExecution(_ context.Context, exec model.LiveExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveExecutions = append(s.liveExecutions, exec)
	return nil
}

// LiveExecutions returns recorded executions, for test assertions.
func (s *Store) LiveExecutions() []model.LiveExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LiveExecution, len(s.liveExecutions))
	copy(out, s.liveExecutions)
	return out
}
