// Package artifact writes winning-strategy snapshots for completed
// rounds as JSON files, one per round.
package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"liquidityArena/internal/model"
)

// Writer persists one JSON snapshot per completed round under dir,
// named <round_id>.json.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

type snapshotDoc struct {
	Winner   winnerDoc   `json:"winner"`
	Strategy strategyDoc `json:"strategy"`
	Metadata metadataDoc `json:"metadata"`
}

type winnerDoc struct {
	AgentID         string   `json:"agent_id"`
	Score           *float64 `json:"score"`
	ImpermanentLoss *float64 `json:"impermanent_loss,omitempty"`
	InRangeRatio    *float64 `json:"in_range_ratio,omitempty"`
	Rebalances      int      `json:"rebalances"`
}

type strategyDoc struct {
	Positions []positionDoc `json:"positions"`
}

type positionDoc struct {
	TickLower   int    `json:"tick_lower"`
	TickUpper   int    `json:"tick_upper"`
	Allocation0 string `json:"allocation0"`
	Allocation1 string `json:"allocation1"`
}

type metadataDoc struct {
	RoundID     string    `json:"round_id"`
	JobID       string    `json:"job_id"`
	RoundType   string    `json:"round_type"`
	RoundNumber int       `json:"round_number"`
	StartBlock  uint64    `json:"start_block"`
	WrittenAt   time.Time `json:"written_at"`
}

// WriteRound writes the winner's final strategy for a completed round.
// A non-finite score is recorded as null so the file stays valid JSON.
func (w *Writer) WriteRound(round model.Round, winner model.Prediction, positions []model.Position) error {
	doc := snapshotDoc{
		Winner: winnerDoc{
			AgentID:    winner.AgentID,
			Score:      finite(winner.Score),
			Rebalances: len(winner.History),
		},
		Strategy: strategyDoc{Positions: make([]positionDoc, 0, len(positions))},
		Metadata: metadataDoc{
			RoundID:     round.ID,
			JobID:       round.JobID,
			RoundType:   string(round.Type),
			RoundNumber: round.Number,
			StartBlock:  round.StartBlock,
			WrittenAt:   time.Now().UTC(),
		},
	}
	if winner.Performance != nil {
		doc.Winner.ImpermanentLoss = finite(winner.Performance.ImpermanentLoss)
		doc.Winner.InRangeRatio = finite(winner.Performance.InRangeRatio)
	}
	for _, position := range positions {
		doc.Strategy.Positions = append(doc.Strategy.Positions, positionDoc{
			TickLower:   position.TickLower,
			TickUpper:   position.TickUpper,
			Allocation0: position.Allocation0.String(),
			Allocation1: position.Allocation1.String(),
		})
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal round snapshot: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, round.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write round snapshot: %w", err)
	}
	return nil
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
