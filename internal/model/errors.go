package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the evaluation failure taxonomy. Per-agent failures
// wrap one of these so callers can classify with errors.Is.
var (
	// ErrDataUnavailable marks missing required historical data (price or
	// swap history). It fails the affected agent's simulation only.
	ErrDataUnavailable = errors.New("required historical data unavailable")

	// ErrInsufficientInventory marks a proposal that consumes more tokens
	// than the agent's remaining ledger. Treated as an implicit refusal.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrInvalidHistory marks a rebalance history that cannot resolve the
	// active positions for a swap block.
	ErrInvalidHistory = errors.New("invalid rebalance history")
)

// ValidationError reports a malformed input such as an inverted tick
// range or a negative allocation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ConstraintViolation reports a strategy that broke a round constraint.
// Violations zero the strategy's score; they never abort the round.
type ConstraintViolation struct {
	Violations []string
}

func (e *ConstraintViolation) Error() string {
	if len(e.Violations) == 1 {
		return "constraint violated: " + e.Violations[0]
	}
	return fmt.Sprintf("%d constraints violated", len(e.Violations))
}
