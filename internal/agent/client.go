// Package agent defines how the evaluator talks to remote strategy
// agents and provides the JSON-over-HTTP implementation.
package agent

import (
	"context"
	"math/big"

	"liquidityArena/internal/model"
)

// Request is one rebalance query sent to an agent at a checkpoint.
type Request struct {
	JobID              string
	PairAddress        string
	RoundID            string
	RoundType          model.RoundType
	BlockNumber        uint64
	CurrentPrice       *big.Int
	CurrentPositions   []model.Position
	InventoryRemaining model.Inventory
	RebalancesSoFar    int
}

// Response is the agent's decision. A nil DesiredPositions with
// Accepted=true means "hold", not an error.
type Response struct {
	Accepted         bool
	RefusalReason    string
	DesiredPositions []model.Position
}

// Client queries one agent for a rebalance decision. At most one
// request is in flight per agent per checkpoint; the caller bounds the
// call with the context deadline.
type Client interface {
	Query(ctx context.Context, agentID string, req Request) (*Response, error)
}
