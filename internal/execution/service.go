// Package execution relays accepted live-round rebalances to an
// external executor bot. Submission failures are returned as data so a
// live round can keep going.
package execution

import (
	"context"

	"liquidityArena/internal/model"
)

// Result is the outcome of one submission attempt.
type Result struct {
	Success bool
	TxHash  string
	Error   string
}

// Service submits a position set for on-chain execution. The error
// return covers transport-level problems only: a rejected strategy
// comes back as Result{Success: false}.
type Service interface {
	Submit(ctx context.Context, jobID, roundID, agentID string, positions []model.Position) (Result, error)
}
