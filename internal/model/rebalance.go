package model

import (
	"math/big"
	"sort"
)

// RebalanceEvent records one accepted rebalance: the block it happened
// at, the positions it replaced and installed, and the idle inventory
// left after deployment. PriceAtQuery is the price the agent decided on;
// PriceAtExecution is the re-sampled price the deployment was costed at.
type RebalanceEvent struct {
	Block            uint64     `json:"block"`
	OldPositions     []Position `json:"old_positions"`
	NewPositions     []Position `json:"new_positions"`
	InventoryAfter   Inventory  `json:"inventory_after"`
	PriceAtQuery     *big.Int   `json:"price_at_query,omitempty"`
	PriceAtExecution *big.Int   `json:"price_at_execution,omitempty"`
}

// RebalanceHistory is the ordered sequence of rebalances within one
// round for one agent.
type RebalanceHistory []RebalanceEvent

// SortedDescending returns a copy ordered by block descending, the
// resolution order used by ActiveAt.
func (h RebalanceHistory) SortedDescending() RebalanceHistory {
	out := make(RebalanceHistory, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Block > out[j].Block })
	return out
}

// ActiveAt resolves the positions active at the given block: those of
// the most recent rebalance strictly before it. A swap before the first
// rebalance has no active positions and the history is invalid for it.
func (h RebalanceHistory) ActiveAt(block uint64) ([]Position, error) {
	for _, ev := range h.SortedDescending() {
		if block > ev.Block {
			return ev.NewPositions, nil
		}
	}
	return nil, ErrInvalidHistory
}

// Final returns the last rebalance by block, or false when empty.
func (h RebalanceHistory) Final() (RebalanceEvent, bool) {
	if len(h) == 0 {
		return RebalanceEvent{}, false
	}
	return h.SortedDescending()[0], true
}
