package inventory

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"liquidityArena/internal/chain"
	"liquidityArena/internal/dex"
	"liquidityArena/internal/model"
)

// VaultProvider reads the vault's spendable balances of the pool's two
// tokens at the chain head.
type VaultProvider struct {
	client *chain.Client
	vault  common.Address
}

// NewVaultProvider builds a provider for the vault address holding the
// deployable inventory.
func NewVaultProvider(client *chain.Client, vaultAddress string) (*VaultProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("invalid vault address: %s", vaultAddress)
	}
	return &VaultProvider{client: client, vault: common.HexToAddress(vaultAddress)}, nil
}

// Inventory resolves the pool's token pair and reads the vault's
// balance of each.
func (p *VaultProvider) Inventory(ctx context.Context, pairAddress string) (model.Inventory, error) {
	if !common.IsHexAddress(pairAddress) {
		return model.Inventory{}, fmt.Errorf("invalid pair address: %s", pairAddress)
	}
	pool := common.HexToAddress(pairAddress)

	token0, err := p.poolToken(ctx, pool, "token0")
	if err != nil {
		return model.Inventory{}, err
	}
	token1, err := p.poolToken(ctx, pool, "token1")
	if err != nil {
		return model.Inventory{}, err
	}

	amount0, err := p.balanceOf(ctx, token0)
	if err != nil {
		return model.Inventory{}, err
	}
	amount1, err := p.balanceOf(ctx, token1)
	if err != nil {
		return model.Inventory{}, err
	}

	return model.Inventory{Amount0: amount0, Amount1: amount1}, nil
}

func (p *VaultProvider) poolToken(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return common.Address{}, err
	}

	callData, err := poolABI.Pack(method)
	if err != nil {
		return common.Address{}, err
	}
	output, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s call: %v", model.ErrDataUnavailable, method, err)
	}

	values, err := poolABI.Unpack(method, output)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	token, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s result type %T", method, values[0])
	}
	return token, nil
}

func (p *VaultProvider) balanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return nil, err
	}

	callData, err := erc20.Pack("balanceOf", p.vault)
	if err != nil {
		return nil, err
	}
	output, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balanceOf %s: %v", model.ErrDataUnavailable, token.Hex(), err)
	}

	values, err := erc20.Unpack("balanceOf", output)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return balance, nil
}
