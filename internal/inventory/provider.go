// Package inventory resolves the token balance a round starts from.
package inventory

import (
	"context"

	"liquidityArena/internal/model"
)

// Provider returns the deployable starting inventory for a pair.
type Provider interface {
	Inventory(ctx context.Context, pairAddress string) (model.Inventory, error)
}

// StaticProvider returns a fixed inventory, used for replay and tests.
type StaticProvider struct {
	Amounts model.Inventory
}

func (p StaticProvider) Inventory(context.Context, string) (model.Inventory, error) {
	return p.Amounts.Clone(), nil
}
